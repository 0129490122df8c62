package ledger

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	for _, in := range []string{"advance", " Deposit ", "SETTLEMENT", "refund", "discount"} {
		if _, err := ParseKind(in); err != nil {
			t.Fatalf("ParseKind(%q): %v", in, err)
		}
	}
	if _, err := ParseKind("credit"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
