package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/noah-isme/backend-fruver/internal/cache"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

const (
	// DefaultHomeMinimum is the minimum subtotal for home customers.
	DefaultHomeMinimum pricing.Money = 50000
	// DefaultMinimum applies to every other tier.
	DefaultMinimum pricing.Money = 100000
)

// ErrInvalidMinimum is returned for non-positive overrides.
var ErrInvalidMinimum = errors.New("checkout: minimum must be greater than zero")

// ErrMinimumNotOverridden is returned when resetting a tier without an override.
var ErrMinimumNotOverridden = errors.New("checkout: tier has no minimum override")

var printer = message.NewPrinter(language.MustParse("es-CO"))

// DefaultMinimumFor returns the built-in floor of a tier.
func DefaultMinimumFor(tier pricing.Tier) pricing.Money {
	if tier == pricing.TierHome {
		return DefaultHomeMinimum
	}
	return DefaultMinimum
}

// MeetsMinimum reports whether subtotal reaches the floor.
func MeetsMinimum(subtotal, minimum pricing.Money) bool {
	return subtotal >= minimum
}

// MinimumMessage renders the customer-facing notice, e.g. "a minimum order of $50.000 is required".
func MinimumMessage(minimum pricing.Money) string {
	return printer.Sprintf("a minimum order of $%d is required", minimum)
}

// Minimum is a tier floor as exposed to administrators.
type Minimum struct {
	Tier       pricing.Tier  `json:"tier"`
	Amount     pricing.Money `json:"amount"`
	Default    pricing.Money `json:"default"`
	Overridden bool          `json:"overridden"`
	UpdatedAt  *time.Time    `json:"updatedAt,omitempty"`
}

type minimumQueries interface {
	ListMinimumOrders(ctx context.Context) ([]dbgen.MinimumOrder, error)
	UpsertMinimumOrder(ctx context.Context, arg dbgen.UpsertMinimumOrderParams) (dbgen.MinimumOrder, error)
	DeleteMinimumOrder(ctx context.Context, tier string) (int64, error)
}

// MinimumPolicy resolves tier floors from defaults and the minimum_orders overrides.
type MinimumPolicy struct {
	Queries minimumQueries
	Cache   *cache.JSON
	Logger  zerolog.Logger
}

type override struct {
	Amount    pricing.Money `json:"amount"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Minimum returns the floor that applies to tier.
func (p *MinimumPolicy) Minimum(ctx context.Context, tier pricing.Tier) (pricing.Money, error) {
	overrides, err := p.overrides(ctx)
	if err != nil {
		return 0, err
	}
	if o, ok := overrides[tier]; ok {
		return o.Amount, nil
	}
	return DefaultMinimumFor(tier), nil
}

// List returns the effective floor of every tier.
func (p *MinimumPolicy) List(ctx context.Context) ([]Minimum, error) {
	overrides, err := p.overrides(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Minimum, 0, len(pricing.Tiers()))
	for _, tier := range pricing.Tiers() {
		m := Minimum{Tier: tier, Amount: DefaultMinimumFor(tier), Default: DefaultMinimumFor(tier)}
		if o, ok := overrides[tier]; ok {
			at := o.UpdatedAt
			m.Amount = o.Amount
			m.Overridden = true
			m.UpdatedAt = &at
		}
		out = append(out, m)
	}
	return out, nil
}

// Set stores an override for tier.
func (p *MinimumPolicy) Set(ctx context.Context, tier pricing.Tier, amount pricing.Money) (Minimum, error) {
	if p == nil || p.Queries == nil {
		return Minimum{}, errors.New("minimum policy not configured")
	}
	if !tier.Valid() {
		return Minimum{}, fmt.Errorf("%w: %q", pricing.ErrUnknownTier, tier)
	}
	if amount <= 0 {
		return Minimum{}, ErrInvalidMinimum
	}
	row, err := p.Queries.UpsertMinimumOrder(ctx, dbgen.UpsertMinimumOrderParams{Tier: tier.String(), Amount: amount})
	if err != nil {
		return Minimum{}, fmt.Errorf("upsert minimum order: %w", err)
	}
	p.invalidate(ctx)
	m := Minimum{Tier: tier, Amount: row.Amount, Default: DefaultMinimumFor(tier), Overridden: true}
	if row.UpdatedAt.Valid {
		at := row.UpdatedAt.Time
		m.UpdatedAt = &at
	}
	return m, nil
}

// Reset removes the override of tier so the default applies again.
func (p *MinimumPolicy) Reset(ctx context.Context, tier pricing.Tier) error {
	if p == nil || p.Queries == nil {
		return errors.New("minimum policy not configured")
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %q", pricing.ErrUnknownTier, tier)
	}
	n, err := p.Queries.DeleteMinimumOrder(ctx, tier.String())
	if err != nil {
		return fmt.Errorf("delete minimum order: %w", err)
	}
	if n == 0 {
		return ErrMinimumNotOverridden
	}
	p.invalidate(ctx)
	return nil
}

func (p *MinimumPolicy) overrides(ctx context.Context) (map[pricing.Tier]override, error) {
	if p == nil || p.Queries == nil {
		return map[pricing.Tier]override{}, nil
	}
	var cached map[pricing.Tier]override
	if ok, err := p.Cache.GetJSON(ctx, cache.KeyMinimumOrders(), &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := p.Queries.ListMinimumOrders(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("list minimum orders: %w", err)
	}
	out := make(map[pricing.Tier]override, len(rows))
	for _, row := range rows {
		tier, err := pricing.ParseTier(row.Tier)
		if err != nil || row.Amount <= 0 {
			p.Logger.Warn().Str("tier", row.Tier).Int64("amount", row.Amount).Msg("ignoring invalid minimum override")
			continue
		}
		out[tier] = override{Amount: row.Amount, UpdatedAt: row.UpdatedAt.Time}
	}
	if err := p.Cache.SetJSON(ctx, cache.KeyMinimumOrders(), out); err != nil {
		p.Logger.Warn().Err(err).Msg("minimum orders cache write failed")
	}
	return out, nil
}

func (p *MinimumPolicy) invalidate(ctx context.Context) {
	if err := p.Cache.Delete(ctx, cache.KeyMinimumOrders()); err != nil {
		p.Logger.Warn().Err(err).Msg("minimum orders cache invalidation failed")
	}
}
