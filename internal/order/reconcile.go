package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/db"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/lock"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// ReconcileLockKey guards price reconciliation across every process.
const ReconcileLockKey = "order:reconcile-prices"

var (
	// ErrReconcileInProgress is returned when another reconciliation holds the guard.
	ErrReconcileInProgress = errors.New("order: price reconciliation already running")
	// ErrOrderNotPending is returned when an item price is written after its order left pending.
	ErrOrderNotPending = errors.New("order: order is not pending")
)

// Outcome classifies what happened to one order item.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// Skip reasons recorded on skipped items.
const (
	ReasonUnknownTier         = "unknown_tier"
	ReasonVariationMissing    = "variation_missing"
	ReasonVariationInactive   = "variation_inactive"
	ReasonPresentationMissing = "presentation_missing"
	ReasonPriceUnavailable    = "price_unavailable"
	ReasonOrderNotPending     = "order_not_pending"
)

// ItemOutcome is the per-item line of a Report.
type ItemOutcome struct {
	OrderID        int64         `json:"orderId"`
	ItemID         int64         `json:"itemId"`
	ProductID      int64         `json:"productId"`
	VariationID    int64         `json:"variationId"`
	PresentationID int64         `json:"presentationId"`
	Tier           pricing.Tier  `json:"tier"`
	OldPrice       pricing.Money `json:"oldPrice"`
	NewPrice       pricing.Money `json:"newPrice"`
	Outcome        Outcome       `json:"outcome"`
	Reason         string        `json:"reason,omitempty"`
}

// Report summarises a reconciliation run.
type Report struct {
	OrdersScanned  int           `json:"ordersScanned"`
	OrdersTouched  int           `json:"ordersTouched"`
	ItemsUpdated   int           `json:"itemsUpdated"`
	ItemsUnchanged int           `json:"itemsUnchanged"`
	ItemsSkipped   int           `json:"itemsSkipped"`
	Items          []ItemOutcome `json:"items"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"durationNs"`
}

func (r *Report) record(o ItemOutcome) {
	switch o.Outcome {
	case OutcomeUpdated:
		r.ItemsUpdated++
	case OutcomeUnchanged:
		r.ItemsUnchanged++
	case OutcomeSkipped:
		r.ItemsSkipped++
	}
	r.Items = append(r.Items, o)
}

// ItemPriceWriter updates the frozen price of a pending order item.
type ItemPriceWriter interface {
	UpdatePendingOrderItemPrice(ctx context.Context, arg dbgen.UpdatePendingOrderItemPriceParams) (int64, error)
}

// ReconcileQueries is the transaction-bound query set used by the reconciler.
type ReconcileQueries interface {
	ItemPriceWriter
	ListOrdersByStatus(ctx context.Context, statusID int16) ([]dbgen.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIds []int64) ([]dbgen.OrderItem, error)
	ListCatalogRows(ctx context.Context, productIds []int64) ([]dbgen.ListCatalogRowsRow, error)
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

// UpdateOrderItemPrice rewrites an item's price. It fails with ErrOrderNotPending once the
// order has left the pending state.
func UpdateOrderItemPrice(ctx context.Context, q ItemPriceWriter, item dbgen.OrderItem, price pricing.Money) error {
	n, err := q.UpdatePendingOrderItemPrice(ctx, dbgen.UpdatePendingOrderItemPriceParams{
		ID:             item.ID,
		OrderID:        item.OrderID,
		ProductID:      item.ProductID,
		VariationID:    item.VariationID,
		PresentationID: item.PresentationID,
		Price:          price,
	})
	if err != nil {
		return fmt.Errorf("update order item %d: %w", item.ID, err)
	}
	if n == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// Reconciler re-prices every pending order item from the live catalog.
type Reconciler struct {
	Pool    db.TxBeginner
	Queries func(pgx.Tx) ReconcileQueries
	Locker  *lock.Locker
	LockTTL time.Duration
	// Timeout bounds one run, including the transaction. Zero means DefaultReconcileTimeout.
	Timeout time.Duration
	Events  *events.Bus
	Logger  zerolog.Logger

	mu sync.Mutex
}

// DefaultReconcileTimeout bounds a run when Reconciler.Timeout is unset.
const DefaultReconcileTimeout = 90 * time.Second

// RunTimeout reports how long a single run may take.
func (r *Reconciler) RunTimeout() time.Duration {
	if r == nil || r.Timeout <= 0 {
		return DefaultReconcileTimeout
	}
	return r.Timeout
}

// ReconcilePendingOrders runs one all-or-nothing reconciliation. Overlapping calls fail
// fast with ErrReconcileInProgress.
func (r *Reconciler) ReconcilePendingOrders(ctx context.Context) (Report, error) {
	if r == nil || r.Pool == nil || r.Queries == nil {
		return Report{}, errors.New("reconciler not configured")
	}
	if !r.mu.TryLock() {
		obs.ObserveReconcile("busy", 0, 0, 0, 0)
		return Report{}, ErrReconcileInProgress
	}
	defer r.mu.Unlock()

	var report Report
	run := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.RunTimeout())
		defer cancel()
		var err error
		report, err = r.run(ctx)
		return err
	}
	var err error
	if r.Locker != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		err = r.Locker.TryWithLease(ctx, ReconcileLockKey, ttl, run)
		if errors.Is(err, lock.ErrNotAcquired) {
			obs.ObserveReconcile("busy", 0, 0, 0, 0)
			return Report{}, ErrReconcileInProgress
		}
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.ObserveReconcile("error", 0, 0, 0, report.Duration)
		r.Logger.Error().Err(err).Str("component", "reconciler").Msg("price reconciliation rolled back")
		return Report{}, err
	}
	obs.ObserveReconcile("ok", report.ItemsUpdated, report.ItemsUnchanged, report.ItemsSkipped, report.Duration)
	r.Logger.Info().
		Str("component", "reconciler").
		Int("orders_scanned", report.OrdersScanned).
		Int("orders_touched", report.OrdersTouched).
		Int("items_updated", report.ItemsUpdated).
		Int("items_unchanged", report.ItemsUnchanged).
		Int("items_skipped", report.ItemsSkipped).
		Dur("took", report.Duration).
		Msg("price reconciliation committed")
	return report, nil
}

func (r *Reconciler) run(ctx context.Context) (report Report, err error) {
	report.StartedAt = time.Now().UTC()
	defer func() {
		report.Duration = time.Since(report.StartedAt)
	}()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return report, err
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()
	q := r.Queries(tx)

	orders, err := q.ListOrdersByStatus(ctx, int16(StatusPending))
	if err != nil {
		return report, fmt.Errorf("list pending orders: %w", err)
	}
	report.OrdersScanned = len(orders)
	report.Items = []ItemOutcome{}
	if len(orders) == 0 {
		return report, tx.Commit(ctx)
	}

	tiers := make(map[int64]string, len(orders))
	orderIDs := make([]int64, 0, len(orders))
	for _, o := range orders {
		tiers[o.ID] = o.Tier
		orderIDs = append(orderIDs, o.ID)
	}
	items, err := q.ListOrderItemsByOrders(ctx, orderIDs)
	if err != nil {
		return report, fmt.Errorf("list order items: %w", err)
	}

	productIDs := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		productIDs = append(productIDs, it.ProductID)
	}
	var catalogRows []dbgen.ListCatalogRowsRow
	if len(productIDs) > 0 {
		catalogRows, err = q.ListCatalogRows(ctx, productIDs)
		if err != nil {
			return report, fmt.Errorf("list catalog rows: %w", err)
		}
	}
	live := catalog.GroupRows(catalogRows)

	touched := make(map[int64]struct{})
	for _, it := range items {
		outcome, err := reconcileItem(ctx, q, it, tiers[it.OrderID], live[it.ProductID])
		if err != nil {
			return report, err
		}
		if outcome.Outcome == OutcomeUpdated {
			touched[it.OrderID] = struct{}{}
		}
		report.record(outcome)
	}
	report.OrdersTouched = len(touched)

	if r.Events != nil {
		if _, err := r.Events.WithStore(q).Emit(ctx, events.TopicOrderPricesReconciled, 0, map[string]any{
			"ordersScanned":  report.OrdersScanned,
			"ordersTouched":  report.OrdersTouched,
			"itemsUpdated":   report.ItemsUpdated,
			"itemsUnchanged": report.ItemsUnchanged,
			"itemsSkipped":   report.ItemsSkipped,
		}); err != nil {
			return report, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return report, fmt.Errorf("commit reconciliation: %w", err)
	}
	return report, nil
}

func reconcileItem(ctx context.Context, q ItemPriceWriter, it dbgen.OrderItem, rawTier string, variations []catalog.Variation) (ItemOutcome, error) {
	out := ItemOutcome{
		OrderID:        it.OrderID,
		ItemID:         it.ID,
		ProductID:      it.ProductID,
		VariationID:    it.VariationID,
		PresentationID: it.PresentationID,
		OldPrice:       it.Price,
		NewPrice:       it.Price,
		Outcome:        OutcomeSkipped,
	}
	tier, err := pricing.ParseTier(rawTier)
	if err != nil {
		out.Reason = ReasonUnknownTier
		return out, nil
	}
	out.Tier = tier

	v, p, ok := catalog.FindPresentation(variations, it.VariationID, it.PresentationID)
	switch {
	case v.ID == 0:
		out.Reason = ReasonVariationMissing
		return out, nil
	case !ok:
		out.Reason = ReasonPresentationMissing
		return out, nil
	case !v.Active:
		out.Reason = ReasonVariationInactive
		return out, nil
	}
	price, err := pricing.Resolve(p.Prices, tier)
	if err != nil {
		out.Reason = ReasonPriceUnavailable
		return out, nil
	}
	if price == it.Price {
		out.Outcome = OutcomeUnchanged
		return out, nil
	}
	if err := UpdateOrderItemPrice(ctx, q, it, price); err != nil {
		if errors.Is(err, ErrOrderNotPending) {
			out.Reason = ReasonOrderNotPending
			return out, nil
		}
		return out, err
	}
	out.NewPrice = price
	out.Outcome = OutcomeUpdated
	return out, nil
}
