package middlewares

import (
	"context"
	"fmt"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
)

type ledgerViewReader struct{}

// GetLedgerViews builds the summaries of every requested admission from one
// read snapshot.
func (r *ledgerViewReader) GetLedgerViews(ctx context.Context, ids []int) []*dataloader.Result[*models.AdmissionLedgerView] {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return handleError[*models.AdmissionLedgerView](len(ids), utils.ErrorHospitalRequired)
	}
	snapshot, err := models.ReadLedgerSnapshot(ctx, hospitalId, ids)
	if err != nil {
		return handleError[*models.AdmissionLedgerView](len(ids), err)
	}
	return buildLedgerViewResults(ids, snapshot.Admissions, snapshot.Ledgers, snapshot.Subtotals)
}

// buildLedgerViewResults answers ids in order; ids with no admission get
// ErrorRecordNotFound.
func buildLedgerViewResults(ids []int, admissions []*models.Admission, ledgers map[int][]ledger.Transaction, subtotals map[int]decimal.Decimal) []*dataloader.Result[*models.AdmissionLedgerView] {
	byId := make(map[int]*models.Admission, len(admissions))
	for _, a := range admissions {
		byId[a.ID] = a
	}
	loaderResults := make([]*dataloader.Result[*models.AdmissionLedgerView], 0, len(ids))
	for _, id := range ids {
		admission, ok := byId[id]
		if !ok {
			loaderResults = append(loaderResults, &dataloader.Result[*models.AdmissionLedgerView]{Error: utils.ErrorRecordNotFound})
			continue
		}
		view, err := models.NewAdmissionLedgerView(admission, ledgers[id], subtotals[id])
		loaderResults = append(loaderResults, &dataloader.Result[*models.AdmissionLedgerView]{Data: view, Error: err})
	}
	return loaderResults
}

func GetAdmissionLedgerView(ctx context.Context, admissionId int) (*models.AdmissionLedgerView, error) {
	loaders := For(ctx)
	return loaders.ledgerViewLoader.Load(ctx, admissionId)()
}

// GetAdmissionLedgerViews loads several summaries in one batch; results keep
// the order of ids.
func GetAdmissionLedgerViews(ctx context.Context, admissionIds []int) ([]*models.AdmissionLedgerView, error) {
	loaders := For(ctx)
	views, errs := loaders.ledgerViewLoader.LoadMany(ctx, admissionIds)()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("admission %d: %w", admissionIds[i], err)
		}
	}
	return views, nil
}
