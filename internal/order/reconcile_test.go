package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-fruver/internal/db/dbtest"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/lock"
	"github.com/noah-isme/backend-fruver/internal/order"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

func seedReconcile(f *fakeDB) {
	pending := int16(order.StatusPending)
	f.addOrder(1, 11, pending, "restaurant",
		dbgen.OrderItem{ID: 1, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 2, Price: 9000},
		dbgen.OrderItem{ID: 2, ProductID: 1, VariationID: 10, PresentationID: 101, Quantity: 1, Price: 4000},
	)
	f.addOrder(2, 12, pending, "home",
		dbgen.OrderItem{ID: 3, ProductID: 2, VariationID: 20, PresentationID: 200, Quantity: 1, Price: 5000},
		dbgen.OrderItem{ID: 4, ProductID: 3, VariationID: 30, PresentationID: 300, Quantity: 1, Price: 3000},
		dbgen.OrderItem{ID: 5, ProductID: 4, VariationID: 40, PresentationID: 400, Quantity: 1, Price: 1000},
	)
	f.addOrder(3, 13, pending, "home",
		dbgen.OrderItem{ID: 6, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 10000},
		dbgen.OrderItem{ID: 7, ProductID: 1, VariationID: 10, PresentationID: 101, Quantity: 1, Price: 4000},
	)
	f.addOrder(4, 14, pending, "wholesale",
		dbgen.OrderItem{ID: 8, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 7000},
	)
	f.addOrder(5, 15, int16(order.StatusDelivered), "home",
		dbgen.OrderItem{ID: 9, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 1},
	)
	f.catalog = []dbgen.ListCatalogRowsRow{
		presentationRow(1, 10, true, 100, "1kg", 10000, 0, 9500, 0),
		presentationRow(1, 10, true, 101, "500g", 0, 0, 4000, 0),
		presentationRow(2, 20, false, 200, "kg", 5200, 0, 0, 0),
		presentationRow(3, 30, true, 301, "kg", 3000, 0, 0, 0),
	}
}

func newReconciler(f *fakeDB) (*order.Reconciler, *dbtest.Beginner, *recorder) {
	pool := &dbtest.Beginner{}
	rec := &recorder{db: f}
	r := &order.Reconciler{
		Pool:    pool,
		Queries: func(tx pgx.Tx) order.ReconcileQueries { return rec.bind(tx) },
		Events:  &events.Bus{},
	}
	return r, pool, rec
}

func outcomesByItem(report order.Report) map[int64]order.ItemOutcome {
	out := make(map[int64]order.ItemOutcome, len(report.Items))
	for _, it := range report.Items {
		out[it.ItemID] = it
	}
	return out
}

func TestReconcileRepricesPendingItems(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	r, pool, rec := newReconciler(f)

	report, err := r.ReconcilePendingOrders(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.flush())

	require.Equal(t, pgx.RepeatableRead, pool.LastOptions().IsoLevel)
	require.True(t, pool.Last().Committed())
	require.Equal(t, []int16{int16(order.StatusPending)}, f.statuses)

	require.Equal(t, 4, report.OrdersScanned)
	require.Equal(t, 1, report.OrdersTouched)
	require.Equal(t, 1, report.ItemsUpdated)
	require.Equal(t, 2, report.ItemsUnchanged)
	require.Equal(t, 5, report.ItemsSkipped)
	require.Len(t, report.Items, 8)

	byItem := outcomesByItem(report)
	require.Equal(t, order.OutcomeUpdated, byItem[1].Outcome)
	require.Equal(t, pricing.Money(9000), byItem[1].OldPrice)
	require.Equal(t, pricing.Money(9500), byItem[1].NewPrice)
	require.Equal(t, pricing.TierRestaurant, byItem[1].Tier)
	require.Equal(t, order.OutcomeUnchanged, byItem[2].Outcome)
	require.Equal(t, order.OutcomeUnchanged, byItem[6].Outcome)

	reasons := map[int64]string{
		3: order.ReasonVariationInactive,
		4: order.ReasonPresentationMissing,
		5: order.ReasonVariationMissing,
		7: order.ReasonPriceUnavailable,
		8: order.ReasonUnknownTier,
	}
	for id, reason := range reasons {
		require.Equal(t, order.OutcomeSkipped, byItem[id].Outcome, "item %d", id)
		require.Equal(t, reason, byItem[id].Reason, "item %d", id)
	}

	require.Equal(t, int64(9500), f.price(1))
	require.Equal(t, int64(5000), f.price(3))
	require.Equal(t, int64(1), f.price(9), "delivered orders keep their prices")

	require.Len(t, f.events, 1)
	require.Equal(t, events.TopicOrderPricesReconciled, f.events[0].Topic)
	require.Zero(t, f.events[0].AggregateID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	r, _, rec := newReconciler(f)

	_, err := r.ReconcilePendingOrders(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.flush())

	report, err := r.ReconcilePendingOrders(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.flush())
	require.Zero(t, report.ItemsUpdated)
	require.Zero(t, report.OrdersTouched)
	require.Equal(t, 3, report.ItemsUnchanged)
}

func TestReconcileWithoutPendingOrders(t *testing.T) {
	f := newFakeDB()
	f.addOrder(1, 1, int16(order.StatusShipped), "home",
		dbgen.OrderItem{ID: 1, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 1})
	r, pool, rec := newReconciler(f)

	report, err := r.ReconcilePendingOrders(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.flush())
	require.Zero(t, report.OrdersScanned)
	require.Empty(t, report.Items)
	require.True(t, pool.Last().Committed())
	require.Empty(t, f.events)
}

func TestReconcileRollsBackOnWriteFailure(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	f.updateErr = errors.New("connection reset")
	r, pool, rec := newReconciler(f)

	report, err := r.ReconcilePendingOrders(context.Background())
	require.Error(t, err)
	require.Zero(t, report.ItemsUpdated)
	require.NoError(t, rec.flush())

	require.True(t, pool.Last().RolledBack())
	require.False(t, pool.Last().Committed())
	require.Equal(t, int64(9000), f.price(1))
	require.Empty(t, f.events)
}

func TestReconcileDiscardsEarlierWritesWhenLaterWriteFails(t *testing.T) {
	f := newFakeDB()
	pending := int16(order.StatusPending)
	f.addOrder(1, 11, pending, "home",
		dbgen.OrderItem{ID: 1, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 1},
		dbgen.OrderItem{ID: 2, ProductID: 1, VariationID: 10, PresentationID: 101, Quantity: 1, Price: 2},
	)
	f.addOrder(2, 12, pending, "home",
		dbgen.OrderItem{ID: 3, ProductID: 1, VariationID: 10, PresentationID: 100, Quantity: 1, Price: 3},
		dbgen.OrderItem{ID: 4, ProductID: 1, VariationID: 10, PresentationID: 101, Quantity: 1, Price: 4},
	)
	f.catalog = []dbgen.ListCatalogRowsRow{
		presentationRow(1, 10, true, 100, "1kg", 10000, 0, 0, 0),
		presentationRow(1, 10, true, 101, "500g", 5000, 0, 0, 0),
	}
	f.updateErr = errors.New("deadlock detected")
	f.failUpdateAt = 4
	r, pool, rec := newReconciler(f)

	_, err := r.ReconcilePendingOrders(context.Background())
	require.ErrorContains(t, err, "deadlock detected")
	require.NoError(t, rec.flush())

	require.Equal(t, 4, f.updateCalls, "three writes landed in the transaction before the failure")
	require.True(t, pool.Last().RolledBack())
	require.False(t, pool.Last().Committed())
	for id, price := range map[int64]int64{1: 1, 2: 2, 3: 3, 4: 4} {
		require.Equal(t, price, f.price(id), "item %d", id)
	}
	require.Empty(t, f.events)
}

func TestReconcileFailsWhenBeginFails(t *testing.T) {
	f := newFakeDB()
	r, pool, _ := newReconciler(f)
	pool.Err = errors.New("pool closed")

	_, err := r.ReconcilePendingOrders(context.Background())
	require.ErrorContains(t, err, "pool closed")
}

func TestReconcileRejectsOverlappingRuns(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	r, _, _ := newReconciler(f)

	done := make(chan error, 1)
	go func() {
		_, err := r.ReconcilePendingOrders(context.Background())
		done <- err
	}()
	<-f.started

	_, err := r.ReconcilePendingOrders(context.Background())
	require.ErrorIs(t, err, order.ErrReconcileInProgress)

	close(f.block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first reconciliation did not finish")
	}
}

func TestReconcileHonoursDistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFakeDB()
	seedReconcile(f)
	r, pool, rec := newReconciler(f)
	r.Locker = &lock.Locker{R: client}
	r.LockTTL = time.Minute

	require.NoError(t, mr.Set(order.ReconcileLockKey, "another-worker"))
	_, err := r.ReconcilePendingOrders(context.Background())
	require.ErrorIs(t, err, order.ErrReconcileInProgress)
	require.Zero(t, pool.Count())

	mr.Del(order.ReconcileLockKey)
	report, err := r.ReconcilePendingOrders(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.flush())
	require.Equal(t, 1, report.ItemsUpdated)
	require.False(t, mr.Exists(order.ReconcileLockKey), "lock released after the run")
}

func TestReconcileLeaseHeldForWholeRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := &lock.Locker{R: client}
	ttl := 90 * time.Millisecond

	f := newFakeDB()
	seedReconcile(f)
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	api, _, rec := newReconciler(f)
	api.Locker, api.LockTTL, api.Timeout = locker, ttl, 10*time.Second
	worker, workerPool, _ := newReconciler(f)
	worker.Locker, worker.LockTTL = locker, ttl

	done := make(chan error, 1)
	go func() {
		_, err := api.ReconcilePendingOrders(context.Background())
		done <- err
	}()
	<-f.started

	for i := 0; i < 6; i++ {
		mr.FastForward(60 * time.Millisecond)
		time.Sleep(4 * ttl / 3)
	}

	_, err := worker.ReconcilePendingOrders(context.Background())
	require.ErrorIs(t, err, order.ErrReconcileInProgress)
	require.Zero(t, workerPool.Count())

	close(f.block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first reconciliation did not finish")
	}
	require.NoError(t, rec.flush())
	require.Equal(t, int64(9500), f.price(1))
	require.False(t, mr.Exists(order.ReconcileLockKey))
}

func TestReconcileStopsWhenLeaseLost(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFakeDB()
	seedReconcile(f)
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	r, pool, rec := newReconciler(f)
	r.Locker, r.LockTTL = &lock.Locker{R: client}, 60*time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := r.ReconcilePendingOrders(context.Background())
		done <- err
	}()
	<-f.started
	mr.FastForward(time.Minute)

	select {
	case err := <-done:
		require.ErrorIs(t, err, lock.ErrLeaseLost)
	case <-time.After(5 * time.Second):
		t.Fatal("reconciliation kept running without its lease")
	}
	require.NoError(t, rec.flush())
	require.True(t, pool.Last().RolledBack())
	require.Equal(t, int64(9000), f.price(1))
}

func TestReconcileRunIsBoundedByTimeout(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	f.block = make(chan struct{})
	r, pool, rec := newReconciler(f)
	r.Timeout = 20 * time.Millisecond

	_, err := r.ReconcilePendingOrders(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, rec.flush())
	require.True(t, pool.Last().RolledBack())
	require.Equal(t, order.DefaultReconcileTimeout, (&order.Reconciler{}).RunTimeout())
}

type zeroRows struct{}

func (zeroRows) UpdatePendingOrderItemPrice(context.Context, dbgen.UpdatePendingOrderItemPriceParams) (int64, error) {
	return 0, nil
}

func TestUpdateOrderItemPriceRequiresPendingOrder(t *testing.T) {
	err := order.UpdateOrderItemPrice(context.Background(), zeroRows{}, dbgen.OrderItem{ID: 1, OrderID: 2}, 500)
	require.ErrorIs(t, err, order.ErrOrderNotPending)
}

func TestReconcileTaskHandler(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	r, _, rec := newReconciler(f)

	task := order.NewReconcileTask(time.Minute)
	require.Equal(t, order.TaskReconcilePrices, task.Type())
	require.NoError(t, order.ReconcileTaskHandler(r)(context.Background(), task))
	require.NoError(t, rec.flush())
	require.Equal(t, int64(9500), f.price(1))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r.Locker = &lock.Locker{R: client}
	require.NoError(t, mr.Set(order.ReconcileLockKey, "busy"))

	err := order.ReconcileTaskHandler(r)(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
