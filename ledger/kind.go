package ledger

import (
	"fmt"
	"strings"
)

// Kind is the single classification of a ledger entry; it alone decides how
// the entry moves the totals.
type Kind string

const (
	KindAdvance    Kind = "advance"
	KindDeposit    Kind = "deposit"
	KindSettlement Kind = "settlement"
	KindRefund     Kind = "refund"
	KindDiscount   Kind = "discount"
)

var AllKinds = []Kind{KindAdvance, KindDeposit, KindSettlement, KindRefund, KindDiscount}

func (k Kind) IsValid() bool {
	switch k {
	case KindAdvance, KindDeposit, KindSettlement, KindRefund, KindDiscount:
		return true
	}
	return false
}

// IsCollection reports whether money was received from the patient.
func (k Kind) IsCollection() bool {
	return k == KindAdvance || k == KindDeposit || k == KindSettlement
}

func (k Kind) String() string { return string(k) }

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown transaction kind %q: %w", s, ErrInvalidInput)
	}
	return k, nil
}
