package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger() *Ledger {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var n int
	return New(
		WithClock(func() time.Time { return base }),
		WithIDFunc(func() string { n++; return fmt.Sprintf("tx-%d", n) }),
	)
}

func countDiscounts(l *Ledger) int {
	var n int
	for _, tx := range l.List() {
		if tx.Kind == KindDiscount {
			n++
		}
	}
	return n
}

func TestAppend_Validation(t *testing.T) {
	cases := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{"negative", Entry{Kind: KindAdvance, Amount: dec("-1")}, ErrInvalidAmount},
		{"zero advance", Entry{Kind: KindAdvance, Amount: decimal.Zero}, ErrInvalidAmount},
		{"zero refund", Entry{Kind: KindRefund, Amount: decimal.Zero}, ErrInvalidAmount},
		{"negative discount", Entry{Kind: KindDiscount, Amount: dec("-5")}, ErrInvalidAmount},
		{"unknown kind", Entry{Kind: Kind("writeoff"), Amount: dec("10")}, ErrInvalidInput},
		{"zero discount", Entry{Kind: KindDiscount, Amount: decimal.Zero}, nil},
		{"fractional deposit", Entry{Kind: KindDeposit, Amount: dec("10.25")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger()
			_, err := l.Append(tc.entry)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if l.Len() != 0 {
				t.Fatalf("failed append must not change the ledger")
			}
		})
	}
}

func TestAppend_DiscountReplaces(t *testing.T) {
	l := newTestLedger()
	if _, err := l.Append(Entry{Kind: KindDiscount, Amount: dec("1000"), AttributedTo: "Self"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(Entry{Kind: KindAdvance, Amount: dec("200")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := l.Append(Entry{Kind: KindDiscount, Amount: dec("1500")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := countDiscounts(l); got != 1 {
		t.Fatalf("expected 1 discount, got %d", got)
	}
	active, ok := l.Discount()
	if !ok || active.ID != second.ID || !active.Amount.Equal(dec("1500")) {
		t.Fatalf("unexpected active discount %+v", active)
	}
	if l.Len() != 2 {
		t.Fatalf("expected advance + discount, got %d entries", l.Len())
	}

	// a failed discount append keeps the current one
	if _, err := l.Append(Entry{Kind: KindDiscount, Amount: dec("-1")}); err == nil {
		t.Fatalf("expected error")
	}
	if active, _ := l.Discount(); active.ID != second.ID {
		t.Fatalf("failed append replaced the discount")
	}
}

func TestRemove(t *testing.T) {
	l := newTestLedger()
	tx, _ := l.Append(Entry{Kind: KindDeposit, Amount: dec("50")})
	if _, err := l.Remove("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	removed, err := l.Remove(tx.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.ID != tx.ID || l.Len() != 0 {
		t.Fatalf("remove did not delete %s", tx.ID)
	}
	if _, err := l.Remove(tx.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove should be ErrNotFound, got %v", err)
	}
}

func TestList_OrderAndCopy(t *testing.T) {
	l := newTestLedger()
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	late, _ := l.Append(Entry{Kind: KindAdvance, Amount: dec("1"), OccurredAt: t0.Add(time.Hour)})
	tieA, _ := l.Append(Entry{Kind: KindDeposit, Amount: dec("2"), OccurredAt: t0})
	tieB, _ := l.Append(Entry{Kind: KindSettlement, Amount: dec("3"), OccurredAt: t0})

	got := l.List()
	want := []string{tieA.ID, tieB.ID, late.ID}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}

	got[0].Amount = dec("999")
	if l.List()[0].Amount.Equal(dec("999")) {
		t.Fatalf("List must return a copy")
	}
}

func TestFromTransactions_ContinuesPositions(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	l := FromTransactions([]Transaction{
		{ID: "b", Kind: KindDeposit, Amount: dec("5"), OccurredAt: at, Position: 7},
		{ID: "a", Kind: KindAdvance, Amount: dec("5"), OccurredAt: at, Position: 3},
	}, WithIDFunc(func() string { return "c" }), WithClock(func() time.Time { return at }))

	tx, err := l.Append(Entry{Kind: KindRefund, Amount: dec("1")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if tx.Position != 8 {
		t.Fatalf("expected position 8, got %d", tx.Position)
	}
	ids := ""
	for _, tx := range l.List() {
		ids += tx.ID
	}
	if ids != "abc" {
		t.Fatalf("unexpected order %q", ids)
	}
}

func TestDropStaleDiscounts(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	l := FromTransactions([]Transaction{
		{ID: "d1", Kind: KindDiscount, Amount: dec("100"), OccurredAt: at, Position: 1},
		{ID: "a", Kind: KindAdvance, Amount: dec("500"), OccurredAt: at, Position: 2},
		{ID: "d2", Kind: KindDiscount, Amount: dec("250"), OccurredAt: at.Add(time.Hour), Position: 3},
	})

	active, removed := l.DropStaleDiscounts()
	if active.ID != "d2" {
		t.Fatalf("expected d2 to stay active, got %q", active.ID)
	}
	if len(removed) != 1 || removed[0].ID != "d1" {
		t.Fatalf("unexpected removed %+v", removed)
	}
	if countDiscounts(l) != 1 || l.Len() != 2 {
		t.Fatalf("expected one discount and two entries, got %d/%d", countDiscounts(l), l.Len())
	}

	empty := New()
	if _, removed := empty.DropStaleDiscounts(); removed != nil {
		t.Fatalf("expected nothing removed from an empty ledger")
	}
}

// Random append/remove sequences never leave more than one discount and keep
// the collected identity.
func TestLedger_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := newTestLedger()
	for step := 0; step < 500; step++ {
		if l.Len() > 0 && rng.Intn(4) == 0 {
			txs := l.List()
			if _, err := l.Remove(txs[rng.Intn(len(txs))].ID); err != nil {
				t.Fatalf("step %d remove: %v", step, err)
			}
		} else {
			kind := AllKinds[rng.Intn(len(AllKinds))]
			amount := decimal.NewFromInt(int64(rng.Intn(5000)))
			_, err := l.Append(Entry{Kind: kind, Amount: amount})
			if err != nil && !(amount.IsZero() && errors.Is(err, ErrInvalidAmount)) {
				t.Fatalf("step %d append: %v", step, err)
			}
		}

		if n := countDiscounts(l); n > 1 {
			t.Fatalf("step %d: %d discounts", step, n)
		}

		s, err := Summarize(l, dec("10000"))
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		want := decimal.Zero
		for _, tx := range l.List() {
			switch tx.Kind {
			case KindAdvance, KindDeposit, KindSettlement:
				want = want.Add(tx.Amount)
			case KindRefund:
				want = want.Sub(tx.Amount)
			}
		}
		if !s.TotalCollected.Equal(want) {
			t.Fatalf("step %d: totalCollected %s want %s", step, s.TotalCollected, want)
		}
	}
}
