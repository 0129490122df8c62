package models

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/document"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const pageContentType = "image/png"

// InvoiceExporter paginates a rendered invoice and hands the pages to Store.
type InvoiceExporter struct {
	Paginator *document.Paginator
	Store     utils.ObjectStore
	// Allocator issues the invoice number; nil uses the configured backend.
	Allocator SequenceAllocator
	Now       func() time.Time
}

// NewInvoiceExporter wires the configured layout, header and object store.
func NewInvoiceExporter() (*InvoiceExporter, error) {
	layout := config.GetInvoiceLayout()
	header, err := document.LoadHeader(layout.HeaderPath)
	if err != nil {
		return nil, fmt.Errorf("load invoice header %s: %w", layout.HeaderPath, err)
	}
	geometry := document.Geometry{
		PageWidth:    layout.PageWidth,
		PageHeight:   layout.PageHeight,
		MarginTop:    layout.MarginTop,
		MarginBottom: layout.MarginBottom,
		MarginSide:   layout.MarginSide,
	}
	return &InvoiceExporter{
		Paginator: document.NewPaginator(geometry, layout.RenderScale, header),
		Store:     utils.NewObjectStore(),
	}, nil
}

func (e *InvoiceExporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Export produces the whole page set or nothing: on any failure the pages
// already uploaded are deleted and no rows are written.
func (e *InvoiceExporter) Export(ctx context.Context, admissionId int, rendered image.Image) (result *InvoiceExport, err error) {
	ctx, span := tracer.Start(ctx, "invoice.export", trace.WithAttributes(attribute.Int("admission.id", admissionId)))
	defer func() { endSpan(span, err) }()

	admission, err := GetAdmission(ctx, admissionId)
	if err != nil {
		return nil, err
	}

	pages, err := e.Paginator.Paginate(ctx, rendered)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("invoice.pages", len(pages)))

	exportId := uuid.NewString()
	uploaded := make([]string, 0, len(pages))
	defer func() {
		if err != nil {
			e.cleanup(admission.HospitalId, uploaded)
		}
	}()

	documents := make([]Document, 0, len(pages))
	for _, page := range pages {
		data, err := document.EncodePNG(page)
		if err != nil {
			return nil, err
		}
		key := utils.InvoicePageObjectKey(admission.HospitalId, admission.ID, exportId, page.Number)
		if err := e.Store.Put(ctx, key, data, pageContentType); err != nil {
			return nil, fmt.Errorf("%w: upload page %d: %v", utils.ErrorStoreIO, page.Number, err)
		}
		uploaded = append(uploaded, key)
		documents = append(documents, Document{
			HospitalId:  admission.HospitalId,
			PageNo:      page.Number,
			ObjectKey:   key,
			DocumentUrl: utils.BuildObjectAccessURL(key),
			ContentType: pageContentType,
		})
	}

	db := config.GetDB()
	issued, err := issueNumber(ctx, db, e.Allocator, admission.HospitalId, NumberSeriesModuleInvoice, e.now())
	if err != nil {
		return nil, err
	}

	username, _ := utils.GetUsernameFromContext(ctx)
	export := InvoiceExport{
		HospitalId:    admission.HospitalId,
		AdmissionId:   admission.ID,
		ExportId:      exportId,
		InvoiceNumber: issued.Number,
		SequenceNo:    issued.SequenceNo,
		SequenceDate:  issued.SequenceDate,
		PageCount:     len(pages),
		LedgerVersion: admission.LedgerVersion,
		Documents:     documents,
		CreatedBy:     username,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&export).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("%w: invoice number %s already issued", utils.ErrorAllocationFailure, issued.Number)
			}
			return err
		}
		return EnqueueBillingEvent(ctx, tx, admission.HospitalId, OutboxReferenceInvoiceExport, export.ID, OutboxActionInvoiceExported, map[string]any{
			"admission_id":     admission.ID,
			"admission_number": admission.AdmissionNumber,
			"invoice_number":   export.InvoiceNumber,
			"export_id":        exportId,
			"pages":            uploaded,
		})
	})
	if err != nil {
		return nil, storeError(err)
	}
	return &export, nil
}

func (e *InvoiceExporter) cleanup(hospitalId string, keys []string) {
	if len(keys) == 0 {
		return
	}
	// the request context may be what failed
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var errs []error
	for _, key := range keys {
		if err := e.Store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		config.GetLogger().WithFields(logrus.Fields{
			"field":       "InvoiceExport",
			"hospital_id": hospitalId,
			"objects":     keys,
		}).Error("failed to delete uploaded invoice pages: " + errors.Join(errs...).Error())
	}
}
