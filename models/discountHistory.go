package models

import (
	"time"

	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountHistory keeps discounts the ledger replaced. It is written only when
// DISCOUNT_AUDIT_TRAIL is on and is never read by the summary.
type DiscountHistory struct {
	ID            int             `gorm:"primary_key" json:"id"`
	HospitalId    string          `gorm:"size:64;not null;index" json:"hospital_id"`
	AdmissionId   int             `gorm:"not null;index" json:"admission_id"`
	TransactionId string          `gorm:"size:36;not null" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	AttributedTo  string          `gorm:"size:100" json:"attributed_to"`
	Note          string          `gorm:"type:text" json:"note"`
	OccurredAt    time.Time       `json:"occurred_at"`
	// ReplacedBy is empty when the discount was removed rather than superseded.
	ReplacedBy   string    `gorm:"size:36" json:"replaced_by"`
	SupersededBy string    `gorm:"size:100" json:"superseded_by"`
	SupersededAt time.Time `gorm:"autoCreateTime" json:"superseded_at"`
}

func recordDiscountHistory(tx *gorm.DB, hospitalId string, admissionId int, old ledger.Transaction, replacedBy string, username string) error {
	return tx.Create(&DiscountHistory{
		HospitalId:    hospitalId,
		AdmissionId:   admissionId,
		TransactionId: old.ID,
		Amount:        old.Amount,
		AttributedTo:  old.AttributedTo,
		Note:          old.Note,
		OccurredAt:    old.OccurredAt,
		ReplacedBy:    replacedBy,
		SupersededBy:  username,
	}).Error
}
