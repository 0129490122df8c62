package ledger

import "github.com/mmdatafocus/admission_billing/utils"

var (
	ErrInvalidAmount = utils.ErrorInvalidAmount
	ErrInvalidInput  = utils.ErrorInvalidInput
	ErrNotFound      = utils.ErrorRecordNotFound
)
