package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound    = errors.New("record not found")
	ErrorInvalidAmount     = errors.New("invalid amount")
	ErrorInvalidInput      = errors.New("invalid input")
	ErrorAllocationFailure = errors.New("sequence allocation failed")
	ErrorStoreIO           = errors.New("store unavailable")
	ErrorLedgerConflict    = errors.New("ledger was modified concurrently")

	ErrorHospitalRequired = fmt.Errorf("%w: hospital id is required", ErrorInvalidInput)
)
