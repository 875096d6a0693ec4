package pricing

import (
	"errors"
	"strings"
)

// ErrUnknownTier is returned for account types that do not map to a pricing tier.
var ErrUnknownTier = errors.New("pricing: unknown tier")

// Tier identifies which of the four parallel presentation prices applies to a customer.
type Tier string

const (
	TierHome        Tier = "home"
	TierSupermarket Tier = "supermarket"
	TierRestaurant  Tier = "restaurant"
	TierFruver      Tier = "fruver"
)

// AccountAdmin is the account type of back-office users. Admins buy at fruver prices.
const AccountAdmin = "admin"

var tierAliases = map[string]Tier{
	"home":         TierHome,
	"hogar":        TierHome,
	"supermarket":  TierSupermarket,
	"supermercado": TierSupermarket,
	"restaurant":   TierRestaurant,
	"restaurante":  TierRestaurant,
	"fruver":       TierFruver,
	AccountAdmin:   TierFruver,
}

// ParseTier maps an account type to its pricing tier.
func ParseTier(accountType string) (Tier, error) {
	tier, ok := tierAliases[strings.ToLower(strings.TrimSpace(accountType))]
	if !ok {
		return "", ErrUnknownTier
	}
	return tier, nil
}

// Tiers returns every tier in canonical order.
func Tiers() []Tier {
	return []Tier{TierHome, TierSupermarket, TierRestaurant, TierFruver}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := accessors[t]
	return ok
}

func (t Tier) String() string { return string(t) }
