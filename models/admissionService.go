package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdmissionService is one billable line of an admission. The bill subtotal fed
// to the ledger summary is the sum of Amount.
type AdmissionService struct {
	ID          int             `gorm:"primary_key" json:"id"`
	HospitalId  string          `gorm:"size:64;not null;index" json:"hospital_id"`
	AdmissionId int             `gorm:"not null;index" json:"admission_id"`
	Name        string          `gorm:"size:150;not null" json:"name"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ServiceDate time.Time       `json:"service_date"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewAdmissionService struct {
	Name        string          `json:"name" validate:"required,max=150"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	ServiceDate *time.Time      `json:"service_date"`
}

func (input *NewAdmissionService) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return errors.Join(utils.ErrorInvalidInput, err)
	}
	if !input.Quantity.IsPositive() {
		return errors.Join(utils.ErrorInvalidAmount, errors.New("quantity must be greater than zero"))
	}
	if input.Rate.IsNegative() {
		return errors.Join(utils.ErrorInvalidAmount, errors.New("rate must not be negative"))
	}
	if err := utils.CheckStoredDecimal(input.Quantity); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	if err := utils.CheckStoredDecimal(input.Rate); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if err := utils.CheckStoredDecimal(input.Quantity.Mul(input.Rate).Round(utils.StoredDecimalScale)); err != nil {
		return fmt.Errorf("line amount: %w", err)
	}
	return nil
}

func AddAdmissionService(ctx context.Context, admissionId int, input *NewAdmissionService) (*AdmissionService, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Admission](ctx, hospitalId, admissionId); err != nil {
		return nil, storeError(err)
	}

	serviceDate := time.Now().UTC()
	if input.ServiceDate != nil {
		serviceDate = input.ServiceDate.UTC()
	}
	service := AdmissionService{
		HospitalId:  hospitalId,
		AdmissionId: admissionId,
		Name:        input.Name,
		Quantity:    input.Quantity,
		Rate:        input.Rate,
		Amount:      input.Quantity.Mul(input.Rate).Round(utils.StoredDecimalScale),
		ServiceDate: serviceDate,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&service).Error; err != nil {
		return nil, storeError(err)
	}
	return &service, nil
}

func RemoveAdmissionService(ctx context.Context, admissionId int, serviceId int) (*AdmissionService, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	db := config.GetDB()
	var service AdmissionService
	if err := db.WithContext(ctx).
		Where("hospital_id = ? AND admission_id = ?", hospitalId, admissionId).
		First(&service, serviceId).Error; err != nil {
		return nil, storeError(err)
	}
	if err := db.WithContext(ctx).Delete(&service).Error; err != nil {
		return nil, storeError(err)
	}
	return &service, nil
}

// billSubtotals returns the service totals of several admissions; ids with
// no services map to zero.
func billSubtotals(ctx context.Context, db *gorm.DB, hospitalId string, admissionIds []int) (map[int]decimal.Decimal, error) {
	type row struct {
		AdmissionId int
		Total       decimal.Decimal
	}
	var rows []row
	err := db.WithContext(ctx).Model(&AdmissionService{}).
		Select("admission_id, COALESCE(SUM(amount), 0) AS total").
		Where("hospital_id = ? AND admission_id IN ?", hospitalId, admissionIds).
		Group("admission_id").
		Scan(&rows).Error
	if err != nil {
		return nil, storeError(err)
	}
	totals := make(map[int]decimal.Decimal, len(admissionIds))
	for _, id := range admissionIds {
		totals[id] = decimal.Zero
	}
	for _, r := range rows {
		totals[r.AdmissionId] = r.Total
	}
	return totals, nil
}
