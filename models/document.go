package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
)

// Document is one stored file that belongs to another record.
type Document struct {
	ID            int       `gorm:"primary_key" json:"id"`
	HospitalId    string    `gorm:"size:64;not null;index" json:"hospital_id"`
	ReferenceType string    `gorm:"size:50;index:idx_document_reference,priority:1" json:"reference_type"`
	ReferenceID   int       `gorm:"index:idx_document_reference,priority:2" json:"reference_id"`
	PageNo        int       `json:"page_no"`
	ObjectKey     string    `gorm:"size:255;not null" json:"object_key"`
	DocumentUrl   string    `gorm:"size:512" json:"document_url"`
	ContentType   string    `gorm:"size:50" json:"content_type"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// InvoiceExport is one paginated invoice handed to the upload facility.
type InvoiceExport struct {
	ID            int    `gorm:"primary_key" json:"id"`
	HospitalId    string `gorm:"size:64;not null;index;uniqueIndex:uniq_invoice_number,priority:1" json:"hospital_id"`
	AdmissionId   int    `gorm:"not null;index" json:"admission_id"`
	ExportId      string `gorm:"size:36;not null;uniqueIndex" json:"export_id"`
	InvoiceNumber string `gorm:"size:32;not null;uniqueIndex:uniq_invoice_number,priority:2" json:"invoice_number"`
	SequenceNo    int64  `gorm:"not null" json:"sequence_no"`
	SequenceDate  string `gorm:"size:10;not null;index" json:"sequence_date"`
	PageCount     int    `gorm:"not null" json:"page_count"`
	// LedgerVersion is the ledger state the invoice was rendered from.
	LedgerVersion int64      `json:"ledger_version"`
	Documents     []Document `gorm:"polymorphic:Reference;polymorphicValue:InvoiceExport" json:"documents"`
	CreatedBy     string     `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func GetInvoiceExports(ctx context.Context, admissionId int) ([]*InvoiceExport, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	var results []*InvoiceExport
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND admission_id = ?", hospitalId, admissionId).
		Preload("Documents").
		Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, storeError(err)
	}
	return results, nil
}
