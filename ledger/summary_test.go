package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSummarize_RejectsNegativeSubtotal(t *testing.T) {
	if _, err := Summarize(newTestLedger(), dec("-1")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSummarize_EmptyLedger(t *testing.T) {
	s, err := Summarize(nil, dec("250"))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !s.Due.Equal(dec("250")) || !s.TotalCollected.IsZero() || !s.NetTotal.Equal(dec("250")) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	l := newTestLedger()
	l.Append(Entry{Kind: KindAdvance, Amount: dec("100.50")})
	l.Append(Entry{Kind: KindRefund, Amount: dec("20.25")})
	l.Append(Entry{Kind: KindDiscount, Amount: dec("10")})

	a, err := Summarize(l, dec("500"))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	b, _ := Summarize(l, dec("500"))
	if !a.Due.Equal(b.Due) || !a.TotalCollected.Equal(b.TotalCollected) || !a.NetTotal.Equal(b.NetTotal) {
		t.Fatalf("summaries differ: %+v vs %+v", a, b)
	}
	if !a.TotalCollected.Equal(dec("80.25")) || !a.Due.Equal(dec("409.75")) {
		t.Fatalf("unexpected summary %+v", a)
	}
}

func TestSummarize_RefundOwed(t *testing.T) {
	l := newTestLedger()
	l.Append(Entry{Kind: KindDeposit, Amount: dec("3000")})
	s, err := Summarize(l, dec("1800"))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !s.RefundOwed() || !s.Due.Equal(dec("-1200")) {
		t.Fatalf("expected refund of 1200, got due %s", s.Due)
	}
	words, err := s.DueInWords()
	if err != nil {
		t.Fatalf("words: %v", err)
	}
	if words != "One Thousand Two Hundred" {
		t.Fatalf("unexpected words %q", words)
	}
}

func TestSummarize_AdmissionScenario(t *testing.T) {
	l := newTestLedger()
	subtotal := dec("10000")
	steps := []Entry{
		{Kind: KindAdvance, Amount: dec("5000"), Channel: "cash"},
		{Kind: KindSettlement, Amount: dec("3000"), Channel: "upi"},
		{Kind: KindDiscount, Amount: dec("1000"), AttributedTo: "Self"},
		{Kind: KindRefund, Amount: dec("500"), Channel: "cash"},
	}
	for _, e := range steps {
		if _, err := l.Append(e); err != nil {
			t.Fatalf("append %s: %v", e.Kind, err)
		}
	}
	s, err := Summarize(l, subtotal)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	expect := func(name string, got decimal.Decimal, want string) {
		t.Helper()
		if !got.Equal(dec(want)) {
			t.Fatalf("%s=%s want %s", name, got, want)
		}
	}
	expect("totalCollected", s.TotalCollected, "7500")
	expect("activeDiscount", s.ActiveDiscount, "1000")
	expect("netTotal", s.NetTotal, "9000")
	expect("due", s.Due, "1500")

	if _, err := l.Append(Entry{Kind: KindDiscount, Amount: dec("1500")}); err != nil {
		t.Fatalf("append discount: %v", err)
	}
	if n := countDiscounts(l); n != 1 {
		t.Fatalf("expected exactly one discount, got %d", n)
	}
	if d, _ := l.Discount(); !d.Amount.Equal(dec("1500")) {
		t.Fatalf("expected discount 1500, got %s", d.Amount)
	}
	s, _ = Summarize(l, subtotal)
	expect("netTotal", s.NetTotal, "8500")
	expect("due", s.Due, "1000")
}
