package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/cache"
	"github.com/noah-isme/backend-fruver/internal/cart"
	"github.com/noah-isme/backend-fruver/internal/checkout"
	"github.com/noah-isme/backend-fruver/internal/db/dbtest"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/pricing"
	"github.com/noah-isme/backend-fruver/internal/shipping"
)

type stubCustomers struct {
	mu     sync.Mutex
	users  map[int64]dbgen.User
	orders map[int64]int64
	counts int
}

func (s *stubCustomers) GetUser(_ context.Context, id int64) (dbgen.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return dbgen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubCustomers) CountOrdersByUserExcludingStatus(_ context.Context, arg dbgen.CountOrdersByUserExcludingStatusParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	return s.orders[arg.UserID], nil
}

func (s *stubCustomers) setOrders(userID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[userID] = n
}

type stubWriter struct {
	mu       sync.Mutex
	products map[int64]bool
	orders   []dbgen.CreateOrderParams
	items    []dbgen.CreateOrderItemParams
	events   []dbgen.InsertDomainEventParams
	nextID   int64
}

func (w *stubWriter) ListExistingProductIDs(_ context.Context, ids []int64) ([]int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int64
	for _, id := range ids {
		if w.products[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (w *stubWriter) CreateOrder(_ context.Context, arg dbgen.CreateOrderParams) (dbgen.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	w.orders = append(w.orders, arg)
	return dbgen.Order{
		ID:                        w.nextID,
		UserID:                    arg.UserID,
		StatusID:                  arg.StatusID,
		Tier:                      arg.Tier,
		Total:                     arg.Total,
		ShippingCost:              arg.ShippingCost,
		ShippingRate:              arg.ShippingRate,
		RequiresElectronicInvoice: arg.RequiresElectronicInvoice,
		OrderDate:                 pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

func (w *stubWriter) CreateOrderItem(_ context.Context, arg dbgen.CreateOrderItemParams) (dbgen.OrderItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, arg)
	return dbgen.OrderItem{ID: int64(len(w.items)), OrderID: arg.OrderID, ProductID: arg.ProductID, Quantity: arg.Quantity, Price: arg.Price}, nil
}

func (w *stubWriter) InsertDomainEvent(_ context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, arg)
	return dbgen.DomainEvent{ID: int64(len(w.events)), Topic: arg.Topic, AggregateID: arg.AggregateID, Payload: arg.Payload}, nil
}

type stubCarts struct {
	mu      sync.Mutex
	lines   map[string][]cart.Line
	cleared []string
}

func (c *stubCarts) Lines(_ context.Context, sessionID string, _ pricing.Tier) ([]cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Line(nil), c.lines[sessionID]...), nil
}

func (c *stubCarts) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, sessionID)
	c.cleared = append(c.cleared, sessionID)
	return nil
}

func (c *stubCarts) set(userID int64, lines ...cart.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[cart.UserSession(userID)] = lines
}

type staticRates shipping.Rates

func (r staticRates) ShippingRates(context.Context) (shipping.Rates, error) {
	return shipping.Rates(r), nil
}

type stubMinimums struct {
	mu   sync.Mutex
	rows []dbgen.MinimumOrder
	list int
}

func (m *stubMinimums) ListMinimumOrders(context.Context) ([]dbgen.MinimumOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list++
	return append([]dbgen.MinimumOrder(nil), m.rows...), nil
}

func (m *stubMinimums) UpsertMinimumOrder(_ context.Context, arg dbgen.UpsertMinimumOrderParams) (dbgen.MinimumOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := dbgen.MinimumOrder{Tier: arg.Tier, Amount: arg.Amount, UpdatedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true}}
	for i := range m.rows {
		if m.rows[i].Tier == arg.Tier {
			m.rows[i] = row
			return row, nil
		}
	}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *stubMinimums) DeleteMinimumOrder(_ context.Context, tier string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Tier == tier {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type fixture struct {
	svc       *checkout.Service
	customers *stubCustomers
	writer    *stubWriter
	carts     *stubCarts
	minimums  *stubMinimums
	pool      *dbtest.Beginner
	redis     *miniredis.Miniredis
}

const (
	homeCustomer       int64 = 1
	restaurantCustomer int64 = 2
	fruverAdmin        int64 = 3
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		customers: &stubCustomers{
			users: map[int64]dbgen.User{
				homeCustomer:       {ID: homeCustomer, Name: "Ana", UserType: "home"},
				restaurantCustomer: {ID: restaurantCustomer, Name: "La Olla", UserType: "restaurant", CompanyName: pgtype.Text{String: "La Olla SAS", Valid: true}, CompanyNit: pgtype.Text{String: "900123", Valid: true}},
				fruverAdmin:        {ID: fruverAdmin, Name: "Ops", UserType: "admin"},
			},
			orders: map[int64]int64{},
		},
		writer:   &stubWriter{products: map[int64]bool{1: true, 2: true, 3: true}},
		carts:    &stubCarts{lines: map[string][]cart.Line{}},
		minimums: &stubMinimums{},
		pool:     &dbtest.Beginner{},
		redis:    mr,
	}
	writer := f.writer
	f.svc = &checkout.Service{
		Queries:   f.customers,
		Pool:      f.pool,
		TxQueries: func(pgx.Tx) checkout.OrderWriter { return writer },
		Sessions:  checkout.RedisSessions{Client: client, TTL: time.Minute},
		Carts:     f.carts,
		Shipping: shipping.Calculator{Source: staticRates{
			pricing.TierHome:        decimal.RequireFromString("0.03"),
			pricing.TierSupermarket: decimal.RequireFromString("0.05"),
			pricing.TierRestaurant:  decimal.RequireFromString("0.10"),
			pricing.TierFruver:      decimal.RequireFromString("0.05"),
		}},
		Minimums: &checkout.MinimumPolicy{Queries: f.minimums, Cache: cache.NewJSON(client, time.Minute)},
		Events:   &events.Bus{},
	}
	return f
}

func line(productID, variationID, presentationID int64, label string, qty int, price pricing.Money) cart.Line {
	return cart.Line{
		Key:            cart.Key(productID, variationID, label),
		ProductID:      productID,
		VariationID:    variationID,
		PresentationID: presentationID,
		ProductName:    "Producto",
		Quality:        "Primera",
		Presentation:   label,
		Quantity:       qty,
		UnitPrice:      price,
	}
}
