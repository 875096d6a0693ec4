package order_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-fruver/internal/db/dbtest"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
)

// fakeDB is an in-memory stand-in for the order tables. Writes made through txQueries are
// buffered and applied only when the fake transaction commits.
type fakeDB struct {
	mu       sync.Mutex
	orders   map[int64]dbgen.Order
	items    []dbgen.OrderItem
	catalog  []dbgen.ListCatalogRowsRow
	events   []dbgen.InsertDomainEventParams
	statuses []int16

	updateErr    error
	failUpdateAt int
	updateCalls  int
	beforeUpdate func()
	block        chan struct{}
	started      chan struct{}
}

func newFakeDB() *fakeDB {
	return &fakeDB{orders: map[int64]dbgen.Order{}}
}

func (f *fakeDB) addOrder(id, userID int64, status int16, tier string, items ...dbgen.OrderItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id] = dbgen.Order{
		ID:        id,
		UserID:    pgtype.Int8{Int64: userID, Valid: userID > 0},
		StatusID:  status,
		Tier:      tier,
		OrderDate: pgtype.Timestamptz{Time: time.Date(2024, 5, int(id), 10, 0, 0, 0, time.UTC), Valid: true},
	}
	for _, it := range items {
		it.OrderID = id
		if it.ID == 0 {
			it.ID = int64(len(f.items) + 1)
		}
		o := f.orders[id]
		o.Total += it.Price * int64(it.Quantity)
		f.orders[id] = o
		f.items = append(f.items, it)
	}
}

func (f *fakeDB) price(itemID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == itemID {
			return it.Price
		}
	}
	return -1
}

func presentationRow(productID, variationID int64, active bool, presentationID int64, label string, home, supermarket, restaurant, fruver int64) dbgen.ListCatalogRowsRow {
	price := func(v int64) pgtype.Int8 { return pgtype.Int8{Int64: v, Valid: v != 0} }
	return dbgen.ListCatalogRowsRow{
		ProductID:        productID,
		VariationID:      variationID,
		Quality:          "Primera",
		VariationActive:  active,
		PresentationID:   pgtype.Int8{Int64: presentationID, Valid: true},
		Label:            pgtype.Text{String: label, Valid: true},
		Stock:            pgtype.Int4{Int32: 10, Valid: true},
		PriceHome:        price(home),
		PriceSupermarket: price(supermarket),
		PriceRestaurant:  price(restaurant),
		PriceFruver:      price(fruver),
	}
}

func (f *fakeDB) GetOrder(_ context.Context, id int64) (dbgen.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return dbgen.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeDB) sortedOrders(match func(dbgen.Order) bool) []dbgen.Order {
	var out []dbgen.Order
	for _, o := range f.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func page(orders []dbgen.Order, limit, offset int32) []dbgen.Order {
	if int(offset) >= len(orders) {
		return nil
	}
	end := int(offset + limit)
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end]
}

func (f *fakeDB) ListOrdersByUser(_ context.Context, arg dbgen.ListOrdersByUserParams) ([]dbgen.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sortedOrders(func(o dbgen.Order) bool { return o.UserID.Valid && o.UserID.Int64 == arg.UserID })
	return page(all, arg.Limit, arg.Offset), nil
}

func (f *fakeDB) CountOrdersByUser(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sortedOrders(func(o dbgen.Order) bool { return o.UserID.Valid && o.UserID.Int64 == userID }))), nil
}

func (f *fakeDB) ListOrders(_ context.Context, arg dbgen.ListOrdersParams) ([]dbgen.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sortedOrders(func(o dbgen.Order) bool { return !arg.StatusID.Valid || o.StatusID == arg.StatusID.Int16 })
	return page(all, arg.Limit, arg.Offset), nil
}

func (f *fakeDB) CountOrders(_ context.Context, statusID pgtype.Int2) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sortedOrders(func(o dbgen.Order) bool { return !statusID.Valid || o.StatusID == statusID.Int16 }))), nil
}

func (f *fakeDB) ListOrderItemsByOrders(_ context.Context, ids []int64) ([]dbgen.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []dbgen.OrderItem
	for _, it := range f.items {
		if want[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

// txQueries binds the fake to one fake transaction.
type txQueries struct {
	*fakeDB
	tx *dbtest.Tx

	mu       sync.Mutex
	prices   map[int64]int64
	status   map[int64]int16
	inserted []dbgen.InsertDomainEventParams
}

func (f *fakeDB) bind(tx pgx.Tx) *txQueries {
	return &txQueries{fakeDB: f, tx: tx.(*dbtest.Tx), prices: map[int64]int64{}, status: map[int64]int16{}}
}

func (q *txQueries) ListOrdersByStatus(ctx context.Context, statusID int16) ([]dbgen.Order, error) {
	if q.started != nil {
		close(q.started)
	}
	if q.block != nil {
		select {
		case <-q.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	q.fakeDB.mu.Lock()
	defer q.fakeDB.mu.Unlock()
	q.statuses = append(q.statuses, statusID)
	var out []dbgen.Order
	for _, o := range q.orders {
		if o.StatusID == statusID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *txQueries) ListCatalogRows(_ context.Context, ids []int64) ([]dbgen.ListCatalogRowsRow, error) {
	q.fakeDB.mu.Lock()
	defer q.fakeDB.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []dbgen.ListCatalogRowsRow
	for _, row := range q.catalog {
		if want[row.ProductID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (q *txQueries) UpdatePendingOrderItemPrice(_ context.Context, arg dbgen.UpdatePendingOrderItemPriceParams) (int64, error) {
	q.fakeDB.mu.Lock()
	defer q.fakeDB.mu.Unlock()
	q.updateCalls++
	if q.updateErr != nil && (q.failUpdateAt == 0 || q.updateCalls == q.failUpdateAt) {
		return 0, q.updateErr
	}
	o, ok := q.orders[arg.OrderID]
	if !ok || o.StatusID != 1 {
		return 0, nil
	}
	for _, it := range q.items {
		if it.ID == arg.ID && it.OrderID == arg.OrderID && it.ProductID == arg.ProductID &&
			it.VariationID == arg.VariationID && it.PresentationID == arg.PresentationID {
			q.mu.Lock()
			q.prices[it.ID] = arg.Price
			q.mu.Unlock()
			return 1, nil
		}
	}
	return 0, nil
}

func (q *txQueries) UpdateOrderStatus(_ context.Context, arg dbgen.UpdateOrderStatusParams) (dbgen.Order, error) {
	if q.beforeUpdate != nil {
		q.beforeUpdate()
	}
	q.fakeDB.mu.Lock()
	defer q.fakeDB.mu.Unlock()
	o, ok := q.orders[arg.ID]
	if !ok || o.StatusID != arg.FromStatus {
		return dbgen.Order{}, pgx.ErrNoRows
	}
	q.mu.Lock()
	q.status[arg.ID] = arg.ToStatus
	q.mu.Unlock()
	o.StatusID = arg.ToStatus
	return o, nil
}

func (q *txQueries) InsertDomainEvent(_ context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inserted = append(q.inserted, arg)
	return dbgen.DomainEvent{ID: int64(len(q.inserted)), Topic: arg.Topic, AggregateID: arg.AggregateID}, nil
}

// flush applies buffered writes when the transaction committed.
func (q *txQueries) flush() {
	if !q.tx.Committed() {
		return
	}
	q.fakeDB.mu.Lock()
	defer q.fakeDB.mu.Unlock()
	for i := range q.items {
		if p, ok := q.prices[q.items[i].ID]; ok {
			q.items[i].Price = p
		}
	}
	for id, st := range q.status {
		o := q.orders[id]
		o.StatusID = st
		q.orders[id] = o
	}
	q.events = append(q.events, q.inserted...)
}

// recorder keeps every query set handed out so tests can flush them.
type recorder struct {
	db  *fakeDB
	mu  sync.Mutex
	all []*txQueries
}

func (r *recorder) bind(tx pgx.Tx) *txQueries {
	q := r.db.bind(tx)
	r.mu.Lock()
	r.all = append(r.all, q)
	r.mu.Unlock()
	return q
}

// flush applies committed transactions and drops closed ones. Open transactions are kept.
func (r *recorder) flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []*txQueries
	for _, q := range r.all {
		switch {
		case q.tx.Committed():
			q.flush()
		case q.tx.RolledBack():
		default:
			open = append(open, q)
		}
	}
	r.all = open
	if len(open) > 0 {
		return errors.New("transaction still open")
	}
	return nil
}
