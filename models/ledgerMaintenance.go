package models

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetAdmissionIdsWithStaleDiscounts lists admissions whose stored ledger still
// holds more than one discount row.
func GetAdmissionIdsWithStaleDiscounts(ctx context.Context, db *gorm.DB, hospitalId string) ([]int, error) {
	var ids []int
	err := db.WithContext(ctx).Model(&AdmissionTransaction{}).
		Select("admission_id").
		Where("hospital_id = ? AND kind = ?", hospitalId, ledger.KindDiscount).
		Group("admission_id").
		Having("COUNT(*) > 1").
		Order("admission_id").
		Pluck("admission_id", &ids).Error
	return ids, err
}

// GetAdmissionIds lists every admission of a hospital, oldest first.
func GetAdmissionIds(ctx context.Context, db *gorm.DB, hospitalId string) ([]int, error) {
	var ids []int
	err := db.WithContext(ctx).Model(&Admission{}).
		Where("hospital_id = ?", hospitalId).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// StaleDiscounts returns the discounts that DropStaleDiscounts would remove.
func StaleDiscounts(ctx context.Context, hospitalId string, admissionId int) ([]ledger.Transaction, error) {
	rows, err := loadLedgerRows(ctx, config.GetDB(), hospitalId, admissionId)
	if err != nil {
		return nil, storeError(err)
	}
	_, removed := ledger.FromTransactions(rows).DropStaleDiscounts()
	return removed, nil
}

// DropStaleDiscounts rewrites a legacy ledger so only the active discount
// remains. It goes through MutateLedger, so the audit trail and outbox see it
// like any other write.
func DropStaleDiscounts(ctx context.Context, hospitalId string, admissionId int) (*LedgerMutation, []ledger.Transaction, error) {
	var removed []ledger.Transaction
	result, err := MutateLedger(ctx, hospitalId, admissionId, OutboxActionDiscountsCleaned, "", func(l *ledger.Ledger) (ledger.Transaction, error) {
		active, dropped := l.DropStaleDiscounts()
		if len(dropped) == 0 {
			return ledger.Transaction{}, fmt.Errorf("admission %d has no stale discounts: %w", admissionId, utils.ErrorInvalidInput)
		}
		removed = dropped
		return active, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, removed, nil
}

// LedgerCheck is the outcome of VerifyAdmissionLedger. Problems is empty for a
// healthy ledger.
type LedgerCheck struct {
	AdmissionId     int            `json:"admission_id"`
	AdmissionNumber string         `json:"admission_number"`
	LedgerVersion   int64          `json:"ledger_version"`
	Transactions    int            `json:"transactions"`
	Summary         ledger.Summary `json:"summary"`
	Problems        []string       `json:"problems,omitempty"`
}

// VerifyAdmissionLedger reloads an admission's ledger and recomputes its
// summary, reporting every stored row that a ledger write could not have
// produced.
func VerifyAdmissionLedger(ctx context.Context, hospitalId string, admissionId int) (*LedgerCheck, error) {
	db := config.GetDB()
	var admission Admission
	if err := db.WithContext(ctx).Where("hospital_id = ?", hospitalId).First(&admission, admissionId).Error; err != nil {
		return nil, storeError(err)
	}
	rows, err := loadLedgerRows(ctx, db, hospitalId, admissionId)
	if err != nil {
		return nil, storeError(err)
	}
	subtotal, err := billSubtotalTx(ctx, db, hospitalId, admissionId)
	if err != nil {
		return nil, storeError(err)
	}

	check := &LedgerCheck{
		AdmissionId:     admission.ID,
		AdmissionNumber: admission.AdmissionNumber,
		LedgerVersion:   admission.LedgerVersion,
		Transactions:    len(rows),
		Problems:        ledgerProblems(rows),
	}
	if len(rows) > 0 && admission.LedgerVersion == 0 {
		check.Problems = append(check.Problems, "ledger has rows but ledger_version is 0")
	}

	l := ledger.FromTransactions(rows)
	summary, err := ledger.Summarize(l, subtotal)
	if err != nil {
		check.Problems = append(check.Problems, err.Error())
		return check, nil
	}
	check.Summary = summary
	return check, nil
}

func ledgerProblems(rows []ledger.Transaction) []string {
	var problems []string
	positions := make(map[int64]string, len(rows))
	discounts := 0
	for _, tx := range rows {
		if !tx.Kind.IsValid() {
			problems = append(problems, fmt.Sprintf("%s: unknown kind %q", tx.ID, tx.Kind))
		}
		if tx.Amount.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s: negative amount %s", tx.ID, tx.Amount))
		}
		if tx.Amount.Equal(decimal.Zero) && tx.Kind != ledger.KindDiscount {
			problems = append(problems, fmt.Sprintf("%s: zero %s", tx.ID, tx.Kind))
		}
		if other, ok := positions[tx.Position]; ok {
			problems = append(problems, fmt.Sprintf("%s: position %d already used by %s", tx.ID, tx.Position, other))
		}
		positions[tx.Position] = tx.ID
		if tx.Kind == ledger.KindDiscount {
			discounts++
		}
	}
	if discounts > 1 {
		problems = append(problems, fmt.Sprintf("%d discounts stored, expected at most one", discounts))
	}
	return problems
}
