package money

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type staticRates struct {
	rates map[string]map[string]decimal.Decimal
	err   error
}

func (s *staticRates) GetRates(_ context.Context, base string) (map[string]decimal.Decimal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rates[base], nil
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestConvert(t *testing.T) {
	// 1 EUR = 1.25 USD, expressed in both bases.
	provider := &staticRates{rates: map[string]map[string]decimal.Decimal{
		"EUR": {"USD": mustDecimal(t, "1.25")},
		"USD": {"EUR": mustDecimal(t, "0.8")},
	}}
	conv := NewConverter(provider)

	usd, err := Parse("100.00", "USD")
	if err != nil {
		t.Fatal(err)
	}
	got, err := conv.Convert(context.Background(), usd, "EUR")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want, _ := Parse("80.00", "EUR")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestConvertSameCurrency(t *testing.T) {
	conv := NewConverter(&staticRates{err: errors.New("should not be called")})
	m, _ := Parse("42.10", "EUR")
	got, err := conv.Convert(context.Background(), m, "EUR")
	if err != nil {
		t.Fatalf("same-currency conversion should not touch the provider: %v", err)
	}
	if !got.Equal(m) {
		t.Fatalf("expected %s, got %s", m, got)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	provider := &staticRates{rates: map[string]map[string]decimal.Decimal{
		"EUR": {"USD": mustDecimal(t, "1.093217")},
		"USD": {"EUR": mustDecimal(t, "0.914735")},
	}}
	conv := NewConverter(provider)

	orig, _ := Parse("137.42", "USD")
	eur, err := conv.Convert(context.Background(), orig, "EUR")
	if err != nil {
		t.Fatal(err)
	}
	back, err := conv.Convert(context.Background(), eur, "USD")
	if err != nil {
		t.Fatal(err)
	}

	diff := back.Amount().Sub(orig.Amount()).Abs()
	if diff.GreaterThan(mustDecimal(t, "0.01")) {
		t.Fatalf("round trip drifted by %s: %s -> %s -> %s", diff, orig, eur, back)
	}
}

func TestConvertRateUnavailable(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		conv := NewConverter(&staticRates{err: errors.New("network down")})
		m, _ := Parse("10.00", "USD")
		_, err := conv.Convert(context.Background(), m, "EUR")
		var rateErr *RateUnavailableError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateUnavailableError, got %v", err)
		}
	})

	t.Run("unknown currency", func(t *testing.T) {
		conv := NewConverter(&staticRates{rates: map[string]map[string]decimal.Decimal{
			"EUR": {"USD": mustDecimal(t, "1.25")},
		}})
		m, _ := Parse("10.00", "GBP")
		_, err := conv.Convert(context.Background(), m, "EUR")
		var rateErr *RateUnavailableError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateUnavailableError, got %v", err)
		}
	})

	t.Run("zero rate", func(t *testing.T) {
		conv := NewConverter(&staticRates{rates: map[string]map[string]decimal.Decimal{
			"EUR": {"USD": decimal.Zero},
		}})
		m, _ := Parse("10.00", "USD")
		_, err := conv.Convert(context.Background(), m, "EUR")
		var rateErr *RateUnavailableError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateUnavailableError, got %v", err)
		}
	})
}
