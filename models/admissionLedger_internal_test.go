package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestDiffLedger(t *testing.T) {
	a := ledger.Transaction{ID: "a", Kind: ledger.KindAdvance, Amount: decimal.NewFromInt(1)}
	b := ledger.Transaction{ID: "b", Kind: ledger.KindDiscount, Amount: decimal.NewFromInt(2)}
	c := ledger.Transaction{ID: "c", Kind: ledger.KindDiscount, Amount: decimal.NewFromInt(3)}

	added, removed := diffLedger([]ledger.Transaction{a, b}, []ledger.Transaction{a, c})
	if len(added) != 1 || added[0].ID != "c" {
		t.Fatalf("unexpected added %+v", added)
	}
	if len(removed) != 1 || removed[0].ID != "b" {
		t.Fatalf("unexpected removed %+v", removed)
	}

	added, removed = diffLedger(nil, nil)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("expected no changes")
	}
}

func TestStoreError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", gorm.ErrRecordNotFound, utils.ErrorRecordNotFound},
		{"conflict", fmt.Errorf("admission 1: %w", utils.ErrorLedgerConflict), utils.ErrorLedgerConflict},
		{"invalid amount", fmt.Errorf("x: %w", utils.ErrorInvalidAmount), utils.ErrorInvalidAmount},
		{"driver", errors.New("connection refused"), utils.ErrorStoreIO},
		{"other hospital", config.ErrTenantMismatch, utils.ErrorInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := storeError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("storeError(%v)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
	if storeError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestNewLedgerEntry_ToEntry(t *testing.T) {
	ctx := utils.SetUsernameInContext(t.Context(), "cashier@ward")
	entry, err := (&NewLedgerEntry{Kind: "discount", Amount: "150.50"}).toEntry(ctx)
	if err != nil {
		t.Fatalf("toEntry: %v", err)
	}
	if entry.AttributedTo != "cashier@ward" {
		t.Fatalf("discount should default attribution to the user, got %q", entry.AttributedTo)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("150.50")) {
		t.Fatalf("unexpected amount %s", entry.Amount)
	}

	cases := []struct {
		name  string
		input NewLedgerEntry
		want  error
	}{
		{"unknown kind", NewLedgerEntry{Kind: "credit", Amount: "1"}, utils.ErrorInvalidInput},
		{"not a number", NewLedgerEntry{Kind: "advance", Amount: "ten"}, utils.ErrorInvalidAmount},
		{"missing amount", NewLedgerEntry{Kind: "advance"}, utils.ErrorInvalidAmount},
		{"fifth decimal place", NewLedgerEntry{Kind: "advance", Amount: "0.00001"}, utils.ErrorInvalidAmount},
		{"seventeen integer digits", NewLedgerEntry{Kind: "advance", Amount: "10000000000000000"}, utils.ErrorInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.input.toEntry(ctx); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewLedgerEntry_ToEntryKeepsTrailingZeros(t *testing.T) {
	entry, err := (&NewLedgerEntry{Kind: "advance", Amount: "9999999999999999.99990"}).toEntry(t.Context())
	if err != nil {
		t.Fatalf("toEntry: %v", err)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("9999999999999999.9999")) {
		t.Fatalf("unexpected amount %s", entry.Amount)
	}
}

func TestNewAdmissionService_Validate(t *testing.T) {
	valid := NewAdmissionService{Name: "Ward bed", Quantity: decimal.RequireFromString("2.5"), Rate: decimal.RequireFromString("1200.1250")}
	if err := valid.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cases := []struct {
		name  string
		input NewAdmissionService
		want  error
	}{
		{"missing name", NewAdmissionService{Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1)}, utils.ErrorInvalidInput},
		{"zero quantity", NewAdmissionService{Name: "x", Rate: decimal.NewFromInt(1)}, utils.ErrorInvalidAmount},
		{"negative rate", NewAdmissionService{Name: "x", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(-1)}, utils.ErrorInvalidAmount},
		{"quantity scale", NewAdmissionService{Name: "x", Quantity: decimal.RequireFromString("0.00001"), Rate: decimal.NewFromInt(1)}, utils.ErrorInvalidAmount},
		{"rate scale", NewAdmissionService{Name: "x", Quantity: decimal.NewFromInt(1), Rate: decimal.RequireFromString("10.12345")}, utils.ErrorInvalidAmount},
		{"line amount overflow", NewAdmissionService{Name: "x", Quantity: decimal.NewFromInt(100000000), Rate: decimal.NewFromInt(100000000)}, utils.ErrorInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.input.validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLedgerProblems(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	healthy := []ledger.Transaction{
		{ID: "a", Kind: ledger.KindAdvance, Amount: decimal.NewFromInt(500), OccurredAt: at, Position: 1},
		{ID: "d", Kind: ledger.KindDiscount, Amount: decimal.Zero, OccurredAt: at, Position: 2},
	}
	if got := ledgerProblems(healthy); len(got) != 0 {
		t.Fatalf("expected no problems, got %v", got)
	}

	broken := []ledger.Transaction{
		{ID: "a", Kind: ledger.KindAdvance, Amount: decimal.Zero, OccurredAt: at, Position: 1},
		{ID: "b", Kind: "TIP", Amount: decimal.NewFromInt(5), OccurredAt: at, Position: 1},
		{ID: "c", Kind: ledger.KindRefund, Amount: decimal.NewFromInt(-5), OccurredAt: at, Position: 2},
		{ID: "d1", Kind: ledger.KindDiscount, Amount: decimal.NewFromInt(10), OccurredAt: at, Position: 3},
		{ID: "d2", Kind: ledger.KindDiscount, Amount: decimal.NewFromInt(20), OccurredAt: at, Position: 4},
	}
	if got := ledgerProblems(broken); len(got) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(got), got)
	}
}
