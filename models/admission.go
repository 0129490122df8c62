package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Admission struct {
	ID              int        `gorm:"primary_key" json:"id"`
	HospitalId      string     `gorm:"size:64;not null;index;uniqueIndex:uniq_admission_number,priority:1" json:"hospital_id"`
	AdmissionNumber string     `gorm:"size:32;not null;uniqueIndex:uniq_admission_number,priority:2" json:"admission_number"`
	SequenceNo      int64      `gorm:"not null" json:"sequence_no"`
	SequenceDate    string     `gorm:"size:10;not null;index" json:"sequence_date"`
	PatientName     string     `gorm:"size:150;not null" json:"patient_name"`
	ContactPhone    string     `gorm:"size:20" json:"contact_phone"`
	AdmittedAt      time.Time  `gorm:"not null" json:"admitted_at"`
	DischargedAt    *time.Time `json:"discharged_at"`
	// LedgerVersion is bumped by every ledger write; writers compare-and-swap on it.
	LedgerVersion int64              `gorm:"not null;default:0" json:"ledger_version"`
	Services      []AdmissionService `gorm:"foreignKey:AdmissionId" json:"services,omitempty"`
	CreatedBy     string             `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdmission struct {
	PatientName  string     `json:"patient_name" validate:"required,max=150"`
	ContactPhone string     `json:"contact_phone" validate:"omitempty,max=20"`
	AdmittedAt   *time.Time `json:"admitted_at"`
}

func hospitalTimezone() string {
	return strings.TrimSpace(os.Getenv("HOSPITAL_TIMEZONE"))
}

func (input *NewAdmission) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return errors.Join(utils.ErrorInvalidInput, err)
	}
	if input.ContactPhone != "" {
		phone, err := utils.NormalizePhoneNumber(input.ContactPhone, utils.CountryCode)
		if err != nil {
			return fmt.Errorf("contact phone: %v: %w", err, utils.ErrorInvalidInput)
		}
		input.ContactPhone = phone
	}
	return nil
}

// BillSubtotal sums the loaded service lines.
func (a *Admission) BillSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Services {
		total = total.Add(s.Amount)
	}
	return total
}

// CreateAdmission issues the admission number and stores the record. A nil
// allocator uses the configured backend.
func CreateAdmission(ctx context.Context, input *NewAdmission, allocator SequenceAllocator) (*Admission, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	admittedAt := time.Now().UTC()
	if input.AdmittedAt != nil {
		admittedAt = input.AdmittedAt.UTC()
	}

	db := config.GetDB()
	issued, err := issueNumber(ctx, db, allocator, hospitalId, NumberSeriesModuleAdmission, admittedAt)
	if err != nil {
		return nil, err
	}

	username, _ := utils.GetUsernameFromContext(ctx)
	admission := Admission{
		HospitalId:      hospitalId,
		AdmissionNumber: issued.Number,
		SequenceNo:      issued.SequenceNo,
		SequenceDate:    issued.SequenceDate,
		PatientName:     strings.TrimSpace(input.PatientName),
		ContactPhone:    input.ContactPhone,
		AdmittedAt:      admittedAt,
		CreatedBy:       username,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admission).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("%w: admission number %s already issued", utils.ErrorAllocationFailure, issued.Number)
			}
			return err
		}
		return EnqueueBillingEvent(ctx, tx, hospitalId, OutboxReferenceAdmission, admission.ID, OutboxActionAdmissionCreated, admission)
	})
	if err != nil {
		return nil, storeError(err)
	}
	return &admission, nil
}

func GetAdmission(ctx context.Context, id int) (*Admission, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	return utils.FetchModel[Admission](ctx, hospitalId, id, "Services")
}

// admissionsByIds loads several admissions of one hospital; unknown ids
// are skipped.
func admissionsByIds(ctx context.Context, db *gorm.DB, hospitalId string, ids []int) ([]*Admission, error) {
	var results []*Admission
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND id IN ?", hospitalId, ids).
		Find(&results).Error
	if err != nil {
		return nil, storeError(err)
	}
	return results, nil
}

func DischargeAdmission(ctx context.Context, id int, at time.Time) (*Admission, error) {
	admission, err := GetAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	at = at.UTC()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(admission).Update("discharged_at", &at).Error; err != nil {
		return nil, storeError(err)
	}
	admission.DischargedAt = &at
	return admission, nil
}
