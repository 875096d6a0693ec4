package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-fruver/internal/cache"
	"github.com/noah-isme/backend-fruver/internal/common"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

var (
	// ErrProductNotFound is returned when a product does not exist or is inactive.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrSelectionNotFound is returned when a product/variation/presentation triple does not resolve.
	ErrSelectionNotFound = errors.New("catalog: selection not found")
	// ErrSelectionInactive is returned when the product or variation is no longer sold.
	ErrSelectionInactive = errors.New("catalog: selection inactive")
)

type queryProvider interface {
	GetProduct(ctx context.Context, id int64) (dbgen.Product, error)
	ListActiveProducts(ctx context.Context) ([]dbgen.Product, error)
	ListCatalogRows(ctx context.Context, productIds []int64) ([]dbgen.ListCatalogRowsRow, error)
	GetSelection(ctx context.Context, arg dbgen.GetSelectionParams) (dbgen.GetSelectionRow, error)
}

// Service serves catalog reads. Tier views are cached, live reads are not.
type Service struct {
	queries queryProvider
	cache   *cache.JSON
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries queryProvider
	Cache   *cache.JSON
	Logger  zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	return &Service{queries: cfg.Queries, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// Variations returns the live variations of a product, bypassing the cache.
func (s *Service) Variations(ctx context.Context, productID int64) ([]Variation, error) {
	rows, err := s.queries.ListCatalogRows(ctx, []int64{productID})
	if err != nil {
		return nil, fmt.Errorf("list catalog rows: %w", err)
	}
	return GroupRows(rows)[productID], nil
}

// Selection resolves the live state of one presentation.
func (s *Service) Selection(ctx context.Context, productID, variationID, presentationID int64) (Selection, error) {
	row, err := s.queries.GetSelection(ctx, dbgen.GetSelectionParams{
		ProductID:      productID,
		VariationID:    variationID,
		PresentationID: presentationID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Selection{}, ErrSelectionNotFound
		}
		return Selection{}, fmt.Errorf("get selection: %w", err)
	}
	if !row.ProductActive || !row.VariationActive {
		return Selection{}, ErrSelectionInactive
	}
	return Selection{
		ProductID:      row.ProductID,
		ProductName:    row.ProductName,
		VariationID:    row.VariationID,
		Quality:        row.Quality,
		PresentationID: row.PresentationID,
		Presentation:   row.Label,
		Stock:          row.Stock,
		Prices:         tierPrices(row.PriceHome, row.PriceSupermarket, row.PriceRestaurant, row.PriceFruver),
	}, nil
}

// ProductForTier returns a product with only the presentations offered to tier.
func (s *Service) ProductForTier(ctx context.Context, id int64, tier pricing.Tier) (TierProduct, error) {
	key := cache.KeyProduct(id, tier)
	var cached TierProduct
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.queries.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TierProduct{}, notFound(err)
		}
		return TierProduct{}, fmt.Errorf("get product: %w", err)
	}
	if !product.Active {
		return TierProduct{}, notFound(ErrProductNotFound)
	}
	variations, err := s.Variations(ctx, id)
	if err != nil {
		return TierProduct{}, err
	}
	view := forTier(product, variations, tier)
	if err := s.cache.SetJSON(ctx, key, view); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return view, nil
}

// ValidProducts lists the active products that have at least one presentation offered to tier.
func (s *Service) ValidProducts(ctx context.Context, tier pricing.Tier) ([]TierProduct, error) {
	key := cache.KeyCatalogList(tier)
	var cached []TierProduct
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	products, err := s.queries.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	rows, err := s.queries.ListCatalogRows(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list catalog rows: %w", err)
	}
	grouped := GroupRows(rows)
	out := make([]TierProduct, 0, len(products))
	for _, p := range products {
		view := forTier(p, grouped[p.ID], tier)
		if len(view.Variations) == 0 {
			continue
		}
		out = append(out, view)
	}
	if err := s.cache.SetJSON(ctx, key, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return out, nil
}

// Invalidate drops every cached catalog view.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.DeletePrefix(ctx, cache.CatalogPrefix())
}

func forTier(p dbgen.Product, variations []Variation, tier pricing.Tier) TierProduct {
	view := TierProduct{
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Promotion:  p.Promotion,
		Tier:       tier,
		Variations: []TierVariation{},
	}
	for _, v := range variations {
		if !v.Active {
			continue
		}
		tv := TierVariation{ID: v.ID, Quality: v.Quality}
		for _, pres := range v.Presentations {
			price, err := pricing.Resolve(pres.Prices, tier)
			if err != nil {
				continue
			}
			tv.Presentations = append(tv.Presentations, TierPresentation{
				ID:    pres.ID,
				Label: pres.Label,
				Stock: pres.Stock,
				Price: price,
			})
		}
		if len(tv.Presentations) > 0 {
			view.Variations = append(view.Variations, tv)
		}
	}
	return view
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}
