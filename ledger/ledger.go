package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one ledger entry.
type Transaction struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Channel      string          `json:"channel"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Note         string          `json:"note,omitempty"`
	AttributedTo string          `json:"attributedTo,omitempty"`
	// Position is the insertion sequence; it breaks OccurredAt ties.
	Position int64 `json:"position"`
}

// Entry is the input to Append. A zero OccurredAt means now.
type Entry struct {
	Kind         Kind
	Amount       decimal.Decimal
	Channel      string
	OccurredAt   time.Time
	Note         string
	AttributedTo string
}

// Ledger is the ordered set of transactions of one admission.
// It is not safe for concurrent use; persistence serializes writers.
type Ledger struct {
	txs     []Transaction
	nextPos int64
	now     func() time.Time
	newID   func() string
}

type Option func(*Ledger)

// WithClock overrides time.Now for entries appended without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDFunc overrides the uuid generator.
func WithIDFunc(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromTransactions restores a persisted ledger. Positions are kept, and new
// entries continue after the highest one.
func FromTransactions(txs []Transaction, opts ...Option) *Ledger {
	l := New(opts...)
	l.txs = make([]Transaction, len(txs))
	copy(l.txs, txs)
	for _, tx := range l.txs {
		if tx.Position >= l.nextPos {
			l.nextPos = tx.Position + 1
		}
	}
	l.sort()
	return l
}

func validateEntry(e Entry) error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("unknown transaction kind %q: %w", e.Kind, ErrInvalidInput)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%s amount %s is negative: %w", e.Kind, e.Amount, ErrInvalidAmount)
	}
	// a zero discount clears the discount; any other zero entry is meaningless
	if e.Amount.IsZero() && e.Kind != KindDiscount {
		return fmt.Errorf("%s amount must be greater than zero: %w", e.Kind, ErrInvalidAmount)
	}
	return nil
}

// Append records an entry. A discount replaces the active discount, so the
// ledger never holds more than one. Nothing changes when validation fails.
func (l *Ledger) Append(e Entry) (Transaction, error) {
	if err := validateEntry(e); err != nil {
		return Transaction{}, err
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = l.now()
	}
	tx := Transaction{
		ID:           l.newID(),
		Kind:         e.Kind,
		Amount:       e.Amount,
		Channel:      e.Channel,
		OccurredAt:   occurredAt,
		Note:         e.Note,
		AttributedTo: e.AttributedTo,
		Position:     l.nextPos,
	}

	kept := l.txs
	if e.Kind == KindDiscount {
		kept = make([]Transaction, 0, len(l.txs)+1)
		for _, existing := range l.txs {
			if existing.Kind != KindDiscount {
				kept = append(kept, existing)
			}
		}
	}
	l.txs = append(kept, tx)
	l.nextPos++
	l.sort()
	return tx, nil
}

// Remove deletes the transaction with the given id.
func (l *Ledger) Remove(id string) (Transaction, error) {
	for i, tx := range l.txs {
		if tx.ID == id {
			l.txs = append(l.txs[:i:i], l.txs[i+1:]...)
			return tx, nil
		}
	}
	return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
}

// List returns a copy ordered by OccurredAt, then insertion order.
func (l *Ledger) List() []Transaction {
	out := make([]Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// Discount returns the active discount entry, if any.
func (l *Ledger) Discount() (Transaction, bool) {
	for i := len(l.txs) - 1; i >= 0; i-- {
		if l.txs[i].Kind == KindDiscount {
			return l.txs[i], true
		}
	}
	return Transaction{}, false
}

func (l *Ledger) Len() int { return len(l.txs) }

func (l *Ledger) sort() {
	sort.SliceStable(l.txs, func(i, j int) bool {
		a, b := l.txs[i], l.txs[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.Position < b.Position
	})
}

// DropStaleDiscounts removes every discount except the active one and returns
// the removed entries. Only legacy data can hold more than one.
func (l *Ledger) DropStaleDiscounts() (active Transaction, removed []Transaction) {
	active, ok := l.Discount()
	if !ok {
		return Transaction{}, nil
	}
	kept := make([]Transaction, 0, len(l.txs))
	for _, tx := range l.txs {
		if tx.Kind == KindDiscount && tx.ID != active.ID {
			removed = append(removed, tx)
			continue
		}
		kept = append(kept, tx)
	}
	l.txs = kept
	return active, removed
}
