package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/db"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order: not found")
	// ErrStatusConflict is returned when the order changed status while being updated.
	ErrStatusConflict = errors.New("order: status changed concurrently")
)

// Item is an order line with its frozen price.
type Item struct {
	ID             int64         `json:"id"`
	ProductID      int64         `json:"productId"`
	VariationID    int64         `json:"variationId"`
	PresentationID int64         `json:"presentationId"`
	Presentation   string        `json:"presentation"`
	Quality        string        `json:"quality"`
	Quantity       int           `json:"quantity"`
	Price          pricing.Money `json:"price"`
	Subtotal       pricing.Money `json:"subtotal"`
}

// Order is the API view of an order and its items.
type Order struct {
	ID                        int64           `json:"id"`
	CustomerID                *int64          `json:"customerId,omitempty"`
	OrderDate                 time.Time       `json:"orderDate"`
	Status                    Status          `json:"status"`
	Tier                      pricing.Tier    `json:"tier"`
	Total                     pricing.Money   `json:"total"`
	ShippingCost              pricing.Money   `json:"shippingCost"`
	ShippingRate              decimal.Decimal `json:"shippingRate"`
	RequiresElectronicInvoice bool            `json:"requiresElectronicInvoice"`
	CompanyName               string          `json:"companyName,omitempty"`
	CompanyNit                string          `json:"companyNit,omitempty"`
	CompanyAddress            string          `json:"companyAddress,omitempty"`
	Notes                     string          `json:"notes,omitempty"`
	Items                     []Item          `json:"items"`
}

type queryProvider interface {
	GetOrder(ctx context.Context, id int64) (dbgen.Order, error)
	ListOrdersByUser(ctx context.Context, arg dbgen.ListOrdersByUserParams) ([]dbgen.Order, error)
	CountOrdersByUser(ctx context.Context, userID int64) (int64, error)
	ListOrders(ctx context.Context, arg dbgen.ListOrdersParams) ([]dbgen.Order, error)
	CountOrders(ctx context.Context, statusID pgtype.Int2) (int64, error)
	ListOrderItemsByOrders(ctx context.Context, orderIds []int64) ([]dbgen.OrderItem, error)
}

// StatusWriter is the transaction-bound query set used for status changes.
type StatusWriter interface {
	GetOrder(ctx context.Context, id int64) (dbgen.Order, error)
	UpdateOrderStatus(ctx context.Context, arg dbgen.UpdateOrderStatusParams) (dbgen.Order, error)
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

// Service serves order history and administrative status changes.
type Service struct {
	Queries   queryProvider
	Pool      db.TxBeginner
	TxQueries func(pgx.Tx) StatusWriter
	Events    *events.Bus
	Logger    zerolog.Logger
}

// ListForCustomer returns a page of the customer's orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID int64, page common.Pagination) ([]Order, int64, error) {
	if s == nil || s.Queries == nil {
		return nil, 0, errors.New("order service not configured")
	}
	rows, err := s.Queries.ListOrdersByUser(ctx, dbgen.ListOrdersByUserParams{
		UserID: customerID,
		Limit:  int32(page.PerPage),
		Offset: int32(page.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	total, err := s.Queries.CountOrdersByUser(ctx, customerID)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	out, err := s.withItems(ctx, rows)
	return out, total, err
}

// GetForCustomer returns one of the customer's orders.
func (s *Service) GetForCustomer(ctx context.Context, customerID, id int64) (Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.CustomerID == nil || *o.CustomerID != customerID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// Get returns any order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	if s == nil || s.Queries == nil {
		return Order{}, errors.New("order service not configured")
	}
	row, err := s.Queries.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	out, err := s.withItems(ctx, []dbgen.Order{row})
	if err != nil {
		return Order{}, err
	}
	return out[0], nil
}

// List returns a page of all orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *Status, page common.Pagination) ([]Order, int64, error) {
	if s == nil || s.Queries == nil {
		return nil, 0, errors.New("order service not configured")
	}
	var filter pgtype.Int2
	if status != nil {
		filter = pgtype.Int2{Int16: int16(*status), Valid: true}
	}
	rows, err := s.Queries.ListOrders(ctx, dbgen.ListOrdersParams{
		StatusID: filter,
		Limit:    int32(page.PerPage),
		Offset:   int32(page.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	total, err := s.Queries.CountOrders(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	out, err := s.withItems(ctx, rows)
	return out, total, err
}

// UpdateStatus moves an order to next when the transition is allowed.
func (s *Service) UpdateStatus(ctx context.Context, id int64, next Status) (Order, error) {
	if s == nil || s.Pool == nil || s.TxQueries == nil {
		return Order{}, errors.New("order service not configured")
	}
	if !next.Valid() {
		return Order{}, fmt.Errorf("%w: %d", ErrUnknownStatus, next)
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.TxQueries(tx)

	current, err := qtx.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	from := Status(current.StatusID)
	if !from.CanTransition(next) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	updated, err := qtx.UpdateOrderStatus(ctx, dbgen.UpdateOrderStatusParams{
		ID:         id,
		FromStatus: int16(from),
		ToStatus:   int16(next),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrStatusConflict
		}
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	if s.Events != nil {
		if _, err := s.Events.WithStore(qtx).Emit(ctx, events.TopicOrderStatusChanged, id, map[string]any{
			"orderId": id,
			"from":    from,
			"to":      next,
		}); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	s.Logger.Info().Int64("order_id", id).Str("from", from.String()).Str("to", next.String()).Msg("order status changed")
	return s.Get(ctx, updated.ID)
}

func (s *Service) withItems(ctx context.Context, rows []dbgen.Order) ([]Order, error) {
	out := make([]Order, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	items, err := s.Queries.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	byOrder := make(map[int64][]Item, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], Item{
			ID:             it.ID,
			ProductID:      it.ProductID,
			VariationID:    it.VariationID,
			PresentationID: it.PresentationID,
			Presentation:   it.Presentation,
			Quality:        it.Quality,
			Quantity:       int(it.Quantity),
			Price:          it.Price,
			Subtotal:       it.Price * pricing.Money(it.Quantity),
		})
	}
	for _, r := range rows {
		o := toOrder(r)
		o.Items = byOrder[r.ID]
		if o.Items == nil {
			o.Items = []Item{}
		}
		out = append(out, o)
	}
	return out, nil
}

func toOrder(r dbgen.Order) Order {
	o := Order{
		ID:                        r.ID,
		Status:                    Status(r.StatusID),
		Tier:                      pricing.Tier(r.Tier),
		Total:                     r.Total,
		ShippingCost:              r.ShippingCost,
		ShippingRate:              r.ShippingRate,
		RequiresElectronicInvoice: r.RequiresElectronicInvoice,
		CompanyName:               r.CompanyName.String,
		CompanyNit:                r.CompanyNit.String,
		CompanyAddress:            r.CompanyAddress.String,
		Notes:                     r.Notes.String,
	}
	if r.UserID.Valid {
		id := r.UserID.Int64
		o.CustomerID = &id
	}
	if r.OrderDate.Valid {
		o.OrderDate = r.OrderDate.Time
	}
	return o
}
