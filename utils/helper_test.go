package utils

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckStoredDecimal(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"150.5", false},
		{"0.0001", false},
		{"1.50000", false},
		{"-9999999999999999.9999", false},
		{"0.00001", true},
		{"12.34567", true},
		{"10000000000000000", true},
		{"-10000000000000000", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			err := CheckStoredDecimal(decimal.RequireFromString(tc.in))
			if tc.wantErr && !errors.Is(err, ErrorInvalidAmount) {
				t.Fatalf("expected ErrorInvalidAmount, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}
