package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-fruver/internal/cache"
	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/common"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

type fakeCatalogQueries struct {
	products map[int64]dbgen.Product
	rows     []dbgen.ListCatalogRowsRow
	rowCalls int
}

func price(v int64) pgtype.Int8 {
	if v == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: v, Valid: true}
}

func newFakeCatalogQueries() *fakeCatalogQueries {
	return &fakeCatalogQueries{
		products: map[int64]dbgen.Product{
			1: {ID: 1, Name: "Mango Tommy", Category: "fruit", Active: true},
			2: {ID: 2, Name: "Lulo", Category: "fruit", Active: true},
			3: {ID: 3, Name: "Retired", Category: "fruit", Active: false},
		},
		rows: []dbgen.ListCatalogRowsRow{
			{ProductID: 1, VariationID: 10, Quality: "Primera", VariationActive: true,
				PresentationID: pgtype.Int8{Int64: 100, Valid: true}, Label: pgtype.Text{String: "kg", Valid: true},
				Stock: pgtype.Int4{Int32: 40, Valid: true}, PriceHome: price(4000), PriceFruver: price(3500)},
			{ProductID: 1, VariationID: 10, Quality: "Primera", VariationActive: true,
				PresentationID: pgtype.Int8{Int64: 101, Valid: true}, Label: pgtype.Text{String: "caja", Valid: true},
				Stock: pgtype.Int4{Int32: 5, Valid: true}, PriceRestaurant: price(60000)},
			{ProductID: 1, VariationID: 11, Quality: "Segunda", VariationActive: false,
				PresentationID: pgtype.Int8{Int64: 110, Valid: true}, Label: pgtype.Text{String: "kg", Valid: true},
				PriceHome: price(2500)},
			{ProductID: 2, VariationID: 20, Quality: "Única", VariationActive: true,
				PresentationID: pgtype.Int8{Int64: 200, Valid: true}, Label: pgtype.Text{String: "kg", Valid: true},
				PriceRestaurant: price(5000)},
		},
	}
}

func (f *fakeCatalogQueries) GetProduct(_ context.Context, id int64) (dbgen.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return dbgen.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeCatalogQueries) ListActiveProducts(context.Context) ([]dbgen.Product, error) {
	var out []dbgen.Product
	for _, id := range []int64{1, 2, 3} {
		if p := f.products[id]; p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalogQueries) ListCatalogRows(_ context.Context, ids []int64) ([]dbgen.ListCatalogRowsRow, error) {
	f.rowCalls++
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []dbgen.ListCatalogRowsRow
	for _, r := range f.rows {
		if want[r.ProductID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalogQueries) GetSelection(_ context.Context, arg dbgen.GetSelectionParams) (dbgen.GetSelectionRow, error) {
	for _, r := range f.rows {
		if r.ProductID == arg.ProductID && r.VariationID == arg.VariationID && r.PresentationID.Int64 == arg.PresentationID {
			p := f.products[r.ProductID]
			return dbgen.GetSelectionRow{
				ProductID: p.ID, ProductName: p.Name, ProductActive: p.Active,
				VariationID: r.VariationID, Quality: r.Quality, VariationActive: r.VariationActive,
				PresentationID: r.PresentationID.Int64, Label: r.Label.String, Stock: r.Stock.Int32,
				PriceHome: r.PriceHome, PriceSupermarket: r.PriceSupermarket,
				PriceRestaurant: r.PriceRestaurant, PriceFruver: r.PriceFruver,
			}, nil
		}
	}
	return dbgen.GetSelectionRow{}, pgx.ErrNoRows
}

func newService(t *testing.T, q *fakeCatalogQueries) *catalog.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: q, Cache: cache.NewJSON(client, time.Minute)})
	require.NoError(t, err)
	return svc
}

func TestProductsAreFilteredByCallerTier(t *testing.T) {
	svc := newService(t, newFakeCatalogQueries())
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	var resp struct {
		Data []catalog.TierProduct `json:"data"`
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.Products(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1, "anonymous callers see home prices only")
	require.Equal(t, int64(1), resp.Data[0].ID)
	require.Len(t, resp.Data[0].Variations, 1)
	require.Equal(t, []catalog.TierPresentation{{ID: 100, Label: "kg", Stock: 40, Price: 4000}}, resp.Data[0].Variations[0].Presentations)

	ctx := common.WithIdentity(context.Background(), common.Identity{UserID: 9, AccountType: "restaurant", Tier: pricing.TierRestaurant})
	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	handler.Products(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
}

func TestValidProductsServedFromCache(t *testing.T) {
	q := newFakeCatalogQueries()
	svc := newService(t, q)
	ctx := context.Background()

	_, err := svc.ValidProducts(ctx, pricing.TierFruver)
	require.NoError(t, err)
	_, err = svc.ValidProducts(ctx, pricing.TierFruver)
	require.NoError(t, err)
	require.Equal(t, 1, q.rowCalls)

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.ValidProducts(ctx, pricing.TierFruver)
	require.NoError(t, err)
	require.Equal(t, 2, q.rowCalls)
}

func TestProductHandler(t *testing.T) {
	svc := newService(t, newFakeCatalogQueries())
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	router := chi.NewRouter()
	router.Get("/api/v1/products/{id}", handler.Product)

	cases := []struct {
		path   string
		status int
	}{
		{"/api/v1/products/1", http.StatusOK},
		{"/api/v1/products/3", http.StatusNotFound},
		{"/api/v1/products/99", http.StatusNotFound},
		{"/api/v1/products/abc", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.Equal(t, tc.status, rec.Code, tc.path)
	}
}

func TestSelectionReflectsLiveState(t *testing.T) {
	q := newFakeCatalogQueries()
	svc := newService(t, q)
	ctx := context.Background()

	sel, err := svc.Selection(ctx, 1, 10, 100)
	require.NoError(t, err)
	require.Equal(t, "Mango Tommy", sel.ProductName)
	require.Equal(t, pricing.Money(3500), sel.Prices.Fruver)

	_, err = svc.Selection(ctx, 1, 11, 110)
	require.ErrorIs(t, err, catalog.ErrSelectionInactive)

	_, err = svc.Selection(ctx, 1, 10, 999)
	require.ErrorIs(t, err, catalog.ErrSelectionNotFound)

	vars, err := svc.Variations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	_, pres, ok := catalog.FindPresentation(vars, 10, 101)
	require.True(t, ok)
	require.Equal(t, "caja", pres.Label)
}
