package money

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateProvider supplies exchange rates for a base currency. The returned
// map is keyed by currency code; each rate is the number of units of that
// currency per one unit of the base.
type RateProvider interface {
	GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// RateUnavailableError reports that a conversion rate could not be
// obtained for a currency pair. Callers must surface it rather than fall
// back to an unconverted amount.
type RateUnavailableError struct {
	From string
	To   string
	Err  error
}

func (e *RateUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate unavailable for %s->%s: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("rate unavailable for %s->%s", e.From, e.To)
}

func (e *RateUnavailableError) Unwrap() error { return e.Err }

// Converter converts amounts between currencies using an injected rate
// provider.
type Converter struct {
	provider RateProvider
}

func NewConverter(provider RateProvider) *Converter {
	return &Converter{provider: provider}
}

// Convert converts m into the target currency.
//
// Rates are fetched with the target as base, so rates[m.Currency()] is
// "source units per one target unit" and the converted amount is
// amount / rate. The result is rounded half-up to the target currency's
// minor unit; converting A->B then B->A returns the original amount
// within one minor unit.
func (c *Converter) Convert(ctx context.Context, m Money, target string) (Money, error) {
	if m.Currency() == target {
		return m.Round(), nil
	}
	rates, err := c.provider.GetRates(ctx, target)
	if err != nil {
		return Money{}, &RateUnavailableError{From: m.Currency(), To: target, Err: err}
	}
	rate, ok := rates[m.Currency()]
	if !ok || rate.IsZero() || rate.IsNegative() {
		return Money{}, &RateUnavailableError{From: m.Currency(), To: target}
	}
	return New(m.Amount().Div(rate), target).Round(), nil
}
