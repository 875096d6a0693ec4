package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/pricing"
)

var (
	// ErrRateMissing is returned when no shipping rate exists for a tier.
	ErrRateMissing = errors.New("shipping: rate missing for tier")
	// ErrRateOutOfRange is returned when a rate falls outside [0, 1) as a fraction or [0, 100) as a percent.
	ErrRateOutOfRange = errors.New("shipping: rate out of range")
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Rates maps each tier to its shipping surcharge as a fraction of the subtotal.
type Rates map[pricing.Tier]decimal.Decimal

// RateSource loads the current shipping rates.
type RateSource interface {
	ShippingRates(ctx context.Context) (Rates, error)
}

// Percentage returns the tier's shipping fraction, halved for a customer's first order.
func Percentage(rates Rates, tier pricing.Tier, firstOrder bool) (decimal.Decimal, error) {
	rate, ok := rates[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateMissing, tier)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("%w: %s=%s", ErrRateOutOfRange, tier, rate)
	}
	if firstOrder {
		return rate.Div(two), nil
	}
	return rate, nil
}

// Calculator resolves shipping fractions from a RateSource.
type Calculator struct {
	Source RateSource
}

// Percentage loads the rates and applies Percentage.
func (c Calculator) Percentage(ctx context.Context, tier pricing.Tier, firstOrder bool) (decimal.Decimal, error) {
	if c.Source == nil {
		return decimal.Zero, errors.New("shipping: rate source not configured")
	}
	rates, err := c.Source.ShippingRates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Percentage(rates, tier, firstOrder)
}

// FractionFromPercent converts a stored percent such as 10 into 0.10.
func FractionFromPercent(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThan(hundred)
}
