package cache

import (
	"strconv"

	"github.com/noah-isme/backend-fruver/internal/pricing"
)

const (
	catalogPrefix  = "catalog:"
	shippingRates  = "shipping:rates"
	minimumsPrefix = "checkout:minimums"
)

// CatalogPrefix is the namespace of every catalog entry.
func CatalogPrefix() string { return catalogPrefix }

// KeyCatalogList returns the key of the tier-filtered product list.
func KeyCatalogList(tier pricing.Tier) string {
	return catalogPrefix + "products:" + tier.String()
}

// KeyProduct returns the key of a single product priced for tier.
func KeyProduct(id int64, tier pricing.Tier) string {
	return catalogPrefix + "product:" + strconv.FormatInt(id, 10) + ":" + tier.String()
}

// KeyShippingRates returns the key of the per-tier shipping rate table.
func KeyShippingRates() string { return shippingRates }

// KeyMinimumOrders returns the key of the minimum order override table.
func KeyMinimumOrders() string { return minimumsPrefix }
