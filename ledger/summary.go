package ledger

import (
	"fmt"

	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
)

// Summary is derived from a ledger snapshot and is never stored.
type Summary struct {
	BillSubtotal   decimal.Decimal `json:"billSubtotal"`
	Collected      decimal.Decimal `json:"collected"`
	Refunded       decimal.Decimal `json:"refunded"`
	TotalCollected decimal.Decimal `json:"totalCollected"`
	ActiveDiscount decimal.Decimal `json:"activeDiscount"`
	NetTotal       decimal.Decimal `json:"netTotal"`
	// Due is negative when the hospital owes the patient a refund.
	Due decimal.Decimal `json:"due"`
}

// Summarize recomputes the totals of l against the admission's bill subtotal.
func Summarize(l *Ledger, billSubtotal decimal.Decimal) (Summary, error) {
	if l == nil {
		return SummarizeTransactions(nil, billSubtotal)
	}
	return SummarizeTransactions(l.txs, billSubtotal)
}

// SummarizeTransactions is Summarize over an ordered transaction slice.
// If legacy data holds several discounts the last one in order is active.
func SummarizeTransactions(txs []Transaction, billSubtotal decimal.Decimal) (Summary, error) {
	if billSubtotal.IsNegative() {
		return Summary{}, fmt.Errorf("bill subtotal %s is negative: %w", billSubtotal, ErrInvalidInput)
	}
	collected := decimal.Zero
	refunded := decimal.Zero
	discount := decimal.Zero
	for _, tx := range txs {
		switch {
		case tx.Kind.IsCollection():
			collected = collected.Add(tx.Amount)
		case tx.Kind == KindRefund:
			refunded = refunded.Add(tx.Amount)
		case tx.Kind == KindDiscount:
			discount = tx.Amount
		}
	}
	totalCollected := collected.Sub(refunded)
	netTotal := billSubtotal.Sub(discount)
	return Summary{
		BillSubtotal:   billSubtotal,
		Collected:      collected,
		Refunded:       refunded,
		TotalCollected: totalCollected,
		ActiveDiscount: discount,
		NetTotal:       netTotal,
		Due:            netTotal.Sub(totalCollected),
	}, nil
}

func (s Summary) RefundOwed() bool { return s.Due.IsNegative() }

// DueInWords spells the whole-unit magnitude of Due for printed statements.
func (s Summary) DueInWords() (string, error) {
	return utils.ToWords(s.Due.Abs().IntPart())
}
