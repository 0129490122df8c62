package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdmissionTransaction is the stored form of one ledger entry.
type AdmissionTransaction struct {
	ID            int             `gorm:"primary_key" json:"id"`
	HospitalId    string          `gorm:"size:64;not null;index" json:"hospital_id"`
	AdmissionId   int             `gorm:"not null;index:idx_admission_ledger,priority:1" json:"admission_id"`
	TransactionId string          `gorm:"size:36;not null;uniqueIndex" json:"transaction_id"`
	Kind          ledger.Kind     `gorm:"size:20;not null" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Channel       string          `gorm:"size:50" json:"channel"`
	OccurredAt    time.Time       `gorm:"not null" json:"occurred_at"`
	Note          string          `gorm:"type:text" json:"note"`
	AttributedTo  string          `gorm:"size:100" json:"attributed_to"`
	Position      int64           `gorm:"not null;index:idx_admission_ledger,priority:2" json:"position"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (row AdmissionTransaction) toLedger() ledger.Transaction {
	return ledger.Transaction{
		ID:           row.TransactionId,
		Kind:         row.Kind,
		Amount:       row.Amount,
		Channel:      row.Channel,
		OccurredAt:   row.OccurredAt,
		Note:         row.Note,
		AttributedTo: row.AttributedTo,
		Position:     row.Position,
	}
}

func admissionTransactionRow(hospitalId string, admissionId int, tx ledger.Transaction) AdmissionTransaction {
	return AdmissionTransaction{
		HospitalId:    hospitalId,
		AdmissionId:   admissionId,
		TransactionId: tx.ID,
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		Channel:       tx.Channel,
		OccurredAt:    tx.OccurredAt.UTC(),
		Note:          tx.Note,
		AttributedTo:  tx.AttributedTo,
		Position:      tx.Position,
	}
}

func loadLedgerRows(ctx context.Context, db *gorm.DB, hospitalId string, admissionId int) ([]ledger.Transaction, error) {
	var rows []AdmissionTransaction
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND admission_id = ?", hospitalId, admissionId).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	txs := make([]ledger.Transaction, len(rows))
	for i, row := range rows {
		txs[i] = row.toLedger()
	}
	return txs, nil
}

// GetLedgerTransactions lists an admission's ledger in display order.
func GetLedgerTransactions(ctx context.Context, admissionId int) ([]ledger.Transaction, error) {
	admission, err := GetAdmission(ctx, admissionId)
	if err != nil {
		return nil, err
	}
	txs, err := loadLedgerRows(ctx, config.GetDB(), admission.HospitalId, admission.ID)
	if err != nil {
		return nil, storeError(err)
	}
	return ledger.FromTransactions(txs).List(), nil
}

// ledgersByAdmissionIds loads several ledgers in one query,
// each in display order. Unknown ids map to an empty ledger.
func ledgersByAdmissionIds(ctx context.Context, db *gorm.DB, hospitalId string, admissionIds []int) (map[int][]ledger.Transaction, error) {
	var rows []AdmissionTransaction
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND admission_id IN ?", hospitalId, admissionIds).
		Order("admission_id, position").
		Find(&rows).Error
	if err != nil {
		return nil, storeError(err)
	}
	grouped := make(map[int][]ledger.Transaction, len(admissionIds))
	for _, row := range rows {
		grouped[row.AdmissionId] = append(grouped[row.AdmissionId], row.toLedger())
	}
	results := make(map[int][]ledger.Transaction, len(admissionIds))
	for _, id := range admissionIds {
		results[id] = ledger.FromTransactions(grouped[id]).List()
	}
	return results, nil
}
