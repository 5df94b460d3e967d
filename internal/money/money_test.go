package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.50", true},
		{"0.005", "0.01", true}, // half-up on round
		{"0.004", "0.00", true},
		{"-3.50", "-3.50", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in, "EUR")
		if tc.ok {
			if err != nil {
				t.Fatalf("%q unexpected error: %v", tc.in, err)
			}
			if s := got.Round().Amount().StringFixed(2); s != tc.out {
				t.Fatalf("%q expected %s, got %s", tc.in, tc.out, s)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in       string
		currency string
		out      string
	}{
		{"83.333333", "EUR", "83.33"},
		{"83.335", "EUR", "83.34"},
		{"83.334999", "EUR", "83.33"},
		{"1234.5", "JPY", "1235"}, // zero minor-unit currency
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		got := New(d, tc.currency).Round()
		if s := got.Amount().StringFixed(MinorUnitScale(tc.currency)); s != tc.out {
			t.Fatalf("%s %s: expected %s, got %s", tc.in, tc.currency, tc.out, s)
		}
	}
}

func TestAddSubCurrencyMismatch(t *testing.T) {
	a := New(decimal.NewFromInt(10), "EUR")
	b := New(decimal.NewFromInt(3), "USD")

	if _, err := a.Add(b); err == nil {
		t.Fatal("Add across currencies should fail")
	}
	if _, err := a.Sub(b); err == nil {
		t.Fatal("Sub across currencies should fail")
	}

	c := New(decimal.NewFromInt(3), "EUR")
	sum, err := a.Add(c)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !sum.Equal(New(decimal.NewFromInt(13), "EUR")) {
		t.Fatalf("expected 13 EUR, got %s", sum)
	}
}

func TestNegAndSign(t *testing.T) {
	m, err := Parse("250.00", "EUR")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsPositive() {
		t.Fatal("250.00 should be positive")
	}
	n := m.Neg()
	if !n.IsNegative() {
		t.Fatal("negated amount should be negative")
	}
	sum, err := m.Add(n)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Amount().IsZero() {
		t.Fatalf("m + (-m) should be zero, got %s", sum)
	}
}

func TestMinorUnitScale(t *testing.T) {
	if s := MinorUnitScale("EUR"); s != 2 {
		t.Fatalf("EUR scale: expected 2, got %d", s)
	}
	if s := MinorUnitScale("JPY"); s != 0 {
		t.Fatalf("JPY scale: expected 0, got %d", s)
	}
	if s := MinorUnitScale("XXX-UNKNOWN"); s != 2 {
		t.Fatalf("unknown code should default to 2, got %d", s)
	}
}
