package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ledger writes retry this many times when another writer won the version check
const ledgerConflictRetries = 3

const idempotencyScopeLedgerAppend = "ledger.append"

// LedgerOp applies one change to a freshly loaded ledger.
type LedgerOp func(l *ledger.Ledger) (ledger.Transaction, error)

// LedgerMutation is the outcome of a committed ledger write.
type LedgerMutation struct {
	AdmissionId   int                  `json:"admission_id"`
	Transaction   ledger.Transaction   `json:"transaction"`
	Transactions  []ledger.Transaction `json:"transactions"`
	Summary       ledger.Summary       `json:"summary"`
	LedgerVersion int64                `json:"ledger_version"`
	// Replayed is true when an idempotency key matched an earlier append.
	Replayed bool `json:"replayed"`
}

type NewLedgerEntry struct {
	Kind         string     `json:"kind" validate:"required,oneof=advance deposit settlement refund discount"`
	Amount       string     `json:"amount"`
	Channel      string     `json:"channel" validate:"max=50"`
	OccurredAt   *time.Time `json:"occurred_at"`
	Note         string     `json:"note" validate:"max=1000"`
	AttributedTo string     `json:"attributed_to" validate:"max=100"`
}

func (input *NewLedgerEntry) toEntry(ctx context.Context) (ledger.Entry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return ledger.Entry{}, errors.Join(utils.ErrorInvalidInput, err)
	}
	kind, err := ledger.ParseKind(input.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := utils.ParseDecimal(input.Amount)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("amount %q: %v: %w", input.Amount, err, utils.ErrorInvalidAmount)
	}
	if err := utils.CheckStoredDecimal(amount); err != nil {
		return ledger.Entry{}, fmt.Errorf("amount: %w", err)
	}
	entry := ledger.Entry{
		Kind:         kind,
		Amount:       amount,
		Channel:      strings.TrimSpace(input.Channel),
		Note:         input.Note,
		AttributedTo: strings.TrimSpace(input.AttributedTo),
	}
	if input.OccurredAt != nil {
		entry.OccurredAt = input.OccurredAt.UTC()
	}
	// discounts always name who granted them
	if entry.Kind == ledger.KindDiscount && entry.AttributedTo == "" {
		if username, ok := utils.GetUsernameFromContext(ctx); ok {
			entry.AttributedTo = username
		}
	}
	return entry, nil
}

var errDuplicateRequest = errors.New("duplicate request")

// AppendLedgerEntry appends one entry to an admission's ledger. A non-empty
// requestKey makes retries of the same request return the first result.
func AppendLedgerEntry(ctx context.Context, admissionId int, input *NewLedgerEntry, requestKey string) (*LedgerMutation, error) {
	entry, err := input.toEntry(ctx)
	if err != nil {
		return nil, err
	}
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}

	result, err := mutateLedgerWithRetry(ctx, admissionId, OutboxActionTransactionAdded, requestKey, func(l *ledger.Ledger) (ledger.Transaction, error) {
		return l.Append(entry)
	})
	if errors.Is(err, errDuplicateRequest) {
		return replayAppend(ctx, hospitalId, admissionId, requestKey)
	}
	return result, err
}

// RemoveLedgerEntry deletes one transaction from an admission's ledger.
func RemoveLedgerEntry(ctx context.Context, admissionId int, transactionId string) (*LedgerMutation, error) {
	return mutateLedgerWithRetry(ctx, admissionId, OutboxActionTransactionRemoved, "", func(l *ledger.Ledger) (ledger.Transaction, error) {
		return l.Remove(transactionId)
	})
}

func replayAppend(ctx context.Context, hospitalId string, admissionId int, requestKey string) (*LedgerMutation, error) {
	db := config.GetDB()
	transactionId, err := lookupIdempotencyKey(ctx, db, hospitalId, idempotencyScopeLedgerAppend, ledgerRequestKey(admissionId, requestKey))
	if err != nil {
		return nil, storeError(err)
	}
	view, err := GetAdmissionLedgerView(ctx, admissionId)
	if err != nil {
		return nil, err
	}
	result := &LedgerMutation{
		AdmissionId:   admissionId,
		Transactions:  view.Transactions,
		Summary:       view.Summary,
		LedgerVersion: view.LedgerVersion,
		Replayed:      true,
	}
	for _, tx := range view.Transactions {
		if tx.ID == transactionId {
			result.Transaction = tx
		}
	}
	return result, nil
}

func ledgerRequestKey(admissionId int, requestKey string) string {
	return strconv.Itoa(admissionId) + ":" + requestKey
}

// mutateLedgerWithRetry serializes writers of one admission with a redis lock
// when available, and re-applies op when the version check still loses.
func mutateLedgerWithRetry(ctx context.Context, admissionId int, action OutboxAction, requestKey string, op LedgerOp) (*LedgerMutation, error) {
	logger := config.GetLogger()
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}

	// The lock only cuts down on conflicts; the version check is what keeps writes safe.
	release, lockErr := utils.ObtainLock(ctx, "lock:admission", strconv.Itoa(admissionId), "AdmissionLedger", "mutateLedgerWithRetry")
	if lockErr == nil {
		defer release()
	} else {
		logger.WithFields(logrus.Fields{
			"field":        "AdmissionLedger",
			"admission_id": admissionId,
		}).Warn("ledger lock unavailable, relying on version check: " + lockErr.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= ledgerConflictRetries; attempt++ {
		result, err := MutateLedger(ctx, hospitalId, admissionId, action, requestKey, op)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, utils.ErrorLedgerConflict) {
			return nil, err
		}
		lastErr = err
		logger.WithFields(logrus.Fields{
			"field":        "AdmissionLedger",
			"admission_id": admissionId,
			"attempt":      attempt,
		}).Info("ledger version conflict, retrying")
	}
	return nil, lastErr
}

// MutateLedger loads the ledger, applies op and writes the difference in one
// DB transaction. The write only commits if ledger_version is unchanged since
// the read; otherwise ErrorLedgerConflict is returned and nothing is written.
func MutateLedger(ctx context.Context, hospitalId string, admissionId int, action OutboxAction, requestKey string, op LedgerOp) (result *LedgerMutation, err error) {
	ctx, span := tracer.Start(ctx, "ledger.mutate", trace.WithAttributes(
		attribute.String("hospital.id", hospitalId),
		attribute.Int("admission.id", admissionId),
		attribute.String("ledger.action", string(action)),
	))
	defer func() { endSpan(span, err) }()

	username, _ := utils.GetUsernameFromContext(ctx)
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admission Admission
		if err := tx.Where("hospital_id = ?", hospitalId).First(&admission, admissionId).Error; err != nil {
			return err
		}
		rows, err := loadLedgerRows(ctx, tx, hospitalId, admissionId)
		if err != nil {
			return err
		}

		l := ledger.FromTransactions(rows)
		before := l.List()
		changed, err := op(l)
		if err != nil {
			return err
		}
		after := l.List()
		added, removed := diffLedger(before, after)

		if requestKey != "" {
			duplicate, err := claimIdempotencyKey(ctx, tx, hospitalId, idempotencyScopeLedgerAppend, ledgerRequestKey(admissionId, requestKey), changed.ID)
			if err != nil {
				return err
			}
			if duplicate {
				return errDuplicateRequest
			}
		}

		if len(removed) > 0 {
			ids := make([]string, len(removed))
			for i, r := range removed {
				ids[i] = r.ID
			}
			if err := tx.Where("hospital_id = ? AND admission_id = ? AND transaction_id IN ?", hospitalId, admissionId, ids).
				Delete(&AdmissionTransaction{}).Error; err != nil {
				return err
			}
			if config.DiscountAuditTrail() {
				for _, r := range removed {
					if r.Kind != ledger.KindDiscount {
						continue
					}
					replacedBy := ""
					if changed.Kind == ledger.KindDiscount && changed.ID != r.ID {
						replacedBy = changed.ID
					}
					if err := recordDiscountHistory(tx, hospitalId, admissionId, r, replacedBy, username); err != nil {
						return err
					}
				}
			}
		}
		for _, a := range added {
			row := admissionTransactionRow(hospitalId, admissionId, a)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&Admission{}).
			Where("hospital_id = ? AND id = ? AND ledger_version = ?", hospitalId, admissionId, admission.LedgerVersion).
			Update("ledger_version", gorm.Expr("ledger_version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("admission %d: %w", admissionId, utils.ErrorLedgerConflict)
		}

		subtotals, err := billSubtotalTx(ctx, tx, hospitalId, admissionId)
		if err != nil {
			return err
		}
		summary, err := ledger.Summarize(l, subtotals)
		if err != nil {
			return err
		}

		result = &LedgerMutation{
			AdmissionId:   admissionId,
			Transaction:   changed,
			Transactions:  after,
			Summary:       summary,
			LedgerVersion: admission.LedgerVersion + 1,
		}
		return EnqueueBillingEvent(ctx, tx, hospitalId, OutboxReferenceLedger, admissionId, action, map[string]any{
			"admission_id":     admissionId,
			"admission_number": admission.AdmissionNumber,
			"transaction":      changed,
			"ledger_version":   result.LedgerVersion,
		})
	})
	if err != nil {
		if errors.Is(err, errDuplicateRequest) {
			return nil, err
		}
		return nil, storeError(err)
	}
	return result, nil
}

// diffLedger compares two snapshots by transaction id.
func diffLedger(before, after []ledger.Transaction) (added, removed []ledger.Transaction) {
	beforeIds := make(map[string]struct{}, len(before))
	for _, tx := range before {
		beforeIds[tx.ID] = struct{}{}
	}
	afterIds := make(map[string]struct{}, len(after))
	for _, tx := range after {
		afterIds[tx.ID] = struct{}{}
		if _, ok := beforeIds[tx.ID]; !ok {
			added = append(added, tx)
		}
	}
	for _, tx := range before {
		if _, ok := afterIds[tx.ID]; !ok {
			removed = append(removed, tx)
		}
	}
	return added, removed
}
