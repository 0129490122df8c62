package models

import (
	"context"
	"database/sql"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdmissionLedgerView is what billing screens and statements read. The
// summary is recomputed on every read.
type AdmissionLedgerView struct {
	Admission     *Admission           `json:"admission"`
	Transactions  []ledger.Transaction `json:"transactions"`
	Summary       ledger.Summary       `json:"summary"`
	DueInWords    string               `json:"due_in_words"`
	RefundOwed    bool                 `json:"refund_owed"`
	LedgerVersion int64                `json:"ledger_version"`
}

func billSubtotalTx(ctx context.Context, db *gorm.DB, hospitalId string, admissionId int) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&AdmissionService{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("hospital_id = ? AND admission_id = ?", hospitalId, admissionId).
		Scan(&row).Error
	return row.Total, err
}

// NewAdmissionLedgerView summarizes a loaded admission and its ledger.
func NewAdmissionLedgerView(admission *Admission, txs []ledger.Transaction, billSubtotal decimal.Decimal) (*AdmissionLedgerView, error) {
	summary, err := ledger.SummarizeTransactions(txs, billSubtotal)
	if err != nil {
		return nil, err
	}
	words, err := summary.DueInWords()
	if err != nil {
		return nil, err
	}
	return &AdmissionLedgerView{
		Admission:     admission,
		Transactions:  txs,
		Summary:       summary,
		DueInWords:    words,
		RefundOwed:    summary.RefundOwed(),
		LedgerVersion: admission.LedgerVersion,
	}, nil
}

// readSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// query inside it sees the same committed ledger_version.
func readSnapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func GetAdmissionLedgerView(ctx context.Context, admissionId int) (*AdmissionLedgerView, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	var admission Admission
	var txs []ledger.Transaction
	err := readSnapshot(ctx, func(tx *gorm.DB) error {
		err := tx.Where("hospital_id = ?", hospitalId).Preload("Services").First(&admission, admissionId).Error
		if err != nil {
			return err
		}
		txs, err = loadLedgerRows(ctx, tx, hospitalId, admission.ID)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	return NewAdmissionLedgerView(&admission, ledger.FromTransactions(txs).List(), admission.BillSubtotal())
}

// LedgerSnapshot is a batch of admissions with their ledgers and bill
// subtotals, all read from one snapshot.
type LedgerSnapshot struct {
	Admissions []*Admission
	Ledgers    map[int][]ledger.Transaction
	Subtotals  map[int]decimal.Decimal
}

// ReadLedgerSnapshot loads every admission in ids with three queries inside
// one read transaction. Unknown ids are skipped.
func ReadLedgerSnapshot(ctx context.Context, hospitalId string, ids []int) (*LedgerSnapshot, error) {
	snapshot := &LedgerSnapshot{}
	err := readSnapshot(ctx, func(tx *gorm.DB) error {
		var err error
		if snapshot.Admissions, err = admissionsByIds(ctx, tx, hospitalId, ids); err != nil {
			return err
		}
		if snapshot.Ledgers, err = ledgersByAdmissionIds(ctx, tx, hospitalId, ids); err != nil {
			return err
		}
		snapshot.Subtotals, err = billSubtotals(ctx, tx, hospitalId, ids)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	return snapshot, nil
}
