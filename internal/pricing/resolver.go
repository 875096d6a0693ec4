package pricing

import "errors"

var (
	// ErrPriceUnavailable means the presentation is not offered to the requested tier.
	ErrPriceUnavailable = errors.New("pricing: price unavailable for tier")
	// ErrNoTierPrice means a presentation has no positive price for any tier.
	ErrNoTierPrice = errors.New("pricing: presentation has no tier price")
	// ErrNegativePrice means a presentation carries a negative price.
	ErrNegativePrice = errors.New("pricing: negative price")
)

// TierPrices holds the four parallel prices of a presentation. Zero means not offered.
type TierPrices struct {
	Home        Money `json:"priceHome"`
	Supermarket Money `json:"priceSupermarket"`
	Restaurant  Money `json:"priceRestaurant"`
	Fruver      Money `json:"priceFruver"`
}

var accessors = map[Tier]func(TierPrices) Money{
	TierHome:        func(p TierPrices) Money { return p.Home },
	TierSupermarket: func(p TierPrices) Money { return p.Supermarket },
	TierRestaurant:  func(p TierPrices) Money { return p.Restaurant },
	TierFruver:      func(p TierPrices) Money { return p.Fruver },
}

// Resolve returns the unit price of prices for tier.
func Resolve(prices TierPrices, tier Tier) (Money, error) {
	get, ok := accessors[tier]
	if !ok {
		return 0, ErrUnknownTier
	}
	price := get(prices)
	if price <= 0 {
		return 0, ErrPriceUnavailable
	}
	return price, nil
}

// OfferedTo reports whether the presentation can be bought by tier.
func (p TierPrices) OfferedTo(tier Tier) bool {
	_, err := Resolve(p, tier)
	return err == nil
}

// Validate enforces that prices are non-negative and at least one tier is offered.
func (p TierPrices) Validate() error {
	offered := false
	for _, tier := range Tiers() {
		price := accessors[tier](p)
		if price < 0 {
			return ErrNegativePrice
		}
		if price > 0 {
			offered = true
		}
	}
	if !offered {
		return ErrNoTierPrice
	}
	return nil
}
