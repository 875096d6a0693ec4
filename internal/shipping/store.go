package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/cache"
	"github.com/noah-isme/backend-fruver/internal/db"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// ErrNoRates is returned when an update carries no tiers.
var ErrNoRates = errors.New("shipping: no rates provided")

type rateReader interface {
	ListCustomerTypes(ctx context.Context) ([]dbgen.CustomerType, error)
}

// RateWriter is the transaction-bound query set used by UpdateRates.
type RateWriter interface {
	UpdateShippingCost(ctx context.Context, arg dbgen.UpdateShippingCostParams) (dbgen.CustomerType, error)
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

// TierRate is one row of the customer types table.
type TierRate struct {
	Tier      pricing.Tier    `json:"tier"`
	Name      string          `json:"name"`
	Percent   decimal.Decimal `json:"percent"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store reads and updates shipping percentages kept on customer types.
type Store struct {
	Queries   rateReader
	Pool      db.TxBeginner
	TxQueries func(pgx.Tx) RateWriter
	Cache     *cache.JSON
	Events    *events.Bus
	Logger    zerolog.Logger
}

// List returns every tier's shipping percent, served from cache when possible.
func (s *Store) List(ctx context.Context) ([]TierRate, error) {
	if s == nil || s.Queries == nil {
		return nil, errors.New("shipping store not configured")
	}
	var cached []TierRate
	if ok, err := s.Cache.GetJSON(ctx, cache.KeyShippingRates(), &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.Queries.ListCustomerTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customer types: %w", err)
	}
	out := make([]TierRate, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTierRate(row))
	}
	if err := s.Cache.SetJSON(ctx, cache.KeyShippingRates(), out); err != nil {
		s.Logger.Warn().Err(err).Msg("shipping rates cache write failed")
	}
	return out, nil
}

// ShippingRates implements RateSource.
func (s *Store) ShippingRates(ctx context.Context) (Rates, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	rates := make(Rates, len(list))
	for _, r := range list {
		if !r.Tier.Valid() {
			continue
		}
		rates[r.Tier] = FractionFromPercent(r.Percent)
	}
	return rates, nil
}

// UpdateRates sets the shipping percent of every given tier in one transaction.
func (s *Store) UpdateRates(ctx context.Context, percents map[pricing.Tier]decimal.Decimal) ([]TierRate, error) {
	if s == nil || s.Pool == nil || s.TxQueries == nil {
		return nil, errors.New("shipping store not configured")
	}
	if len(percents) == 0 {
		return nil, ErrNoRates
	}
	for tier, p := range percents {
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: %q", pricing.ErrUnknownTier, tier)
		}
		if !validPercent(p) {
			return nil, fmt.Errorf("%w: %s=%s", ErrRateOutOfRange, tier, p)
		}
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.TxQueries(tx)

	updated := make([]TierRate, 0, len(percents))
	for _, tier := range pricing.Tiers() {
		p, ok := percents[tier]
		if !ok {
			continue
		}
		row, err := qtx.UpdateShippingCost(ctx, dbgen.UpdateShippingCostParams{Tier: tier.String(), ShippingCost: p})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrRateMissing, tier)
			}
			return nil, fmt.Errorf("update shipping cost: %w", err)
		}
		updated = append(updated, toTierRate(row))
	}
	if s.Events != nil {
		if _, err := s.Events.WithStore(qtx).Emit(ctx, events.TopicShippingRatesUpdated, 0, map[string]any{"rates": updated}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := s.Cache.Delete(ctx, cache.KeyShippingRates()); err != nil {
		s.Logger.Warn().Err(err).Msg("shipping rates cache invalidation failed")
	}
	s.Logger.Info().Int("tiers", len(updated)).Msg("shipping rates updated")
	return updated, nil
}

func toTierRate(row dbgen.CustomerType) TierRate {
	tr := TierRate{
		Tier:    pricing.Tier(row.Tier),
		Name:    row.Name,
		Percent: row.ShippingCost,
	}
	if row.UpdatedAt.Valid {
		tr.UpdatedAt = row.UpdatedAt.Time
	}
	return tr
}
