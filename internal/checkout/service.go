package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/cart"
	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/db"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/order"
	"github.com/noah-isme/backend-fruver/internal/pricing"
	"github.com/noah-isme/backend-fruver/internal/shipping"
)

var (
	// ErrCustomerNotFound is returned when the customer behind a checkout no longer exists.
	ErrCustomerNotFound = errors.New("checkout: customer not found")
	// ErrEmptyCart is returned when there is nothing to quote or place.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrBelowMinimum is returned when the subtotal does not reach the tier floor.
	ErrBelowMinimum = errors.New("checkout: below minimum order")
	// ErrUnknownProducts is returned when a cart line references a product that no longer exists.
	ErrUnknownProducts = errors.New("checkout: unknown products")
	// ErrInvalidQuantity is returned when an order item quantity cannot be stored.
	ErrInvalidQuantity = errors.New("checkout: invalid item quantity")
)

type customerQueries interface {
	GetUser(ctx context.Context, id int64) (dbgen.User, error)
	CountOrdersByUserExcludingStatus(ctx context.Context, arg dbgen.CountOrdersByUserExcludingStatusParams) (int64, error)
}

// OrderWriter is the transaction-bound query set used to persist an order.
type OrderWriter interface {
	ListExistingProductIDs(ctx context.Context, ids []int64) ([]int64, error)
	CreateOrder(ctx context.Context, arg dbgen.CreateOrderParams) (dbgen.Order, error)
	CreateOrderItem(ctx context.Context, arg dbgen.CreateOrderItemParams) (dbgen.OrderItem, error)
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

// CartSource exposes the customer's cart lines.
type CartSource interface {
	Lines(ctx context.Context, sessionID string, tier pricing.Tier) ([]cart.Line, error)
	Clear(ctx context.Context, sessionID string) error
}

// MinimumSource resolves tier floors.
type MinimumSource interface {
	Minimum(ctx context.Context, tier pricing.Tier) (pricing.Money, error)
}

// Quote is the priced view of a checkout session.
type Quote struct {
	SessionID    string          `json:"sessionId"`
	Tier         pricing.Tier    `json:"tier"`
	FirstOrder   bool            `json:"firstOrder"`
	Lines        []cart.Line     `json:"lines"`
	Subtotal     pricing.Money   `json:"subtotal"`
	ShippingRate decimal.Decimal `json:"shippingRate"`
	Shipping     pricing.Money   `json:"shipping"`
	Total        pricing.Money   `json:"total"`
	Minimum      pricing.Money   `json:"minimum"`
	MeetsMinimum bool            `json:"meetsMinimum"`
	Message      string          `json:"message,omitempty"`
}

// PlaceInput carries the optional billing data of an order.
type PlaceInput struct {
	CompanyName    *string `json:"companyName" validate:"omitempty,max=200"`
	CompanyNit     *string `json:"companyNit" validate:"omitempty,max=40"`
	CompanyAddress *string `json:"companyAddress" validate:"omitempty,max=300"`
	Notes          *string `json:"notes" validate:"omitempty,max=1000"`
}

// Item is one canonical order line.
type Item struct {
	ProductID      int64         `json:"productId"`
	VariationID    int64         `json:"variationId"`
	PresentationID int64         `json:"presentationId"`
	Presentation   string        `json:"presentation"`
	Quality        string        `json:"quality"`
	Quantity       int           `json:"quantity"`
	UnitPrice      pricing.Money `json:"unitPrice"`
}

// Receipt describes a placed order.
type Receipt struct {
	OrderID                   int64           `json:"orderId"`
	Status                    order.Status    `json:"status"`
	Tier                      pricing.Tier    `json:"tier"`
	Subtotal                  pricing.Money   `json:"subtotal"`
	ShippingRate              decimal.Decimal `json:"shippingRate"`
	Shipping                  pricing.Money   `json:"shipping"`
	Total                     pricing.Money   `json:"total"`
	RequiresElectronicInvoice bool            `json:"requiresElectronicInvoice"`
	Items                     []Item          `json:"items"`
}

// Service runs the checkout flow: session, quote and placement.
type Service struct {
	Queries   customerQueries
	Pool      db.TxBeginner
	TxQueries func(pgx.Tx) OrderWriter
	Sessions  SessionRepository
	Carts     CartSource
	Shipping  shipping.Calculator
	Minimums  MinimumSource
	Events    *events.Bus
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Begin opens a checkout session, evaluating the customer's order history once.
func (s *Service) Begin(ctx context.Context, customerID int64) (Session, error) {
	if s == nil || s.Queries == nil || s.Sessions == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	user, tier, err := s.customer(ctx, customerID)
	if err != nil {
		return Session{}, err
	}
	placed, err := s.Queries.CountOrdersByUserExcludingStatus(ctx, dbgen.CountOrdersByUserExcludingStatusParams{
		UserID:   user.ID,
		StatusID: int16(order.StatusCancelled),
	})
	if err != nil {
		return Session{}, fmt.Errorf("count orders: %w", err)
	}
	sess := Session{
		ID:         uuid.NewString(),
		CustomerID: user.ID,
		Tier:       tier,
		FirstOrder: placed == 0,
		CreatedAt:  s.now(),
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Quote prices the customer's cart for the session.
func (s *Service) Quote(ctx context.Context, sessionID string, customerID int64) (Quote, error) {
	sess, err := s.session(ctx, sessionID, customerID)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, sess)
}

// Place persists the quoted cart as a pending order.
func (s *Service) Place(ctx context.Context, sessionID string, customerID int64, in PlaceInput) (Receipt, error) {
	if s == nil || s.Pool == nil || s.TxQueries == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	sess, err := s.session(ctx, sessionID, customerID)
	if err != nil {
		return Receipt{}, err
	}
	user, _, err := s.customer(ctx, sess.CustomerID)
	if err != nil {
		return Receipt{}, err
	}
	q, err := s.quote(ctx, sess)
	if err != nil {
		return Receipt{}, err
	}
	if !q.MeetsMinimum {
		obs.IncCheckoutGate(sess.Tier.String(), "below_minimum")
		return Receipt{}, belowMinimum(q)
	}
	obs.IncCheckoutGate(sess.Tier.String(), "passed")

	items := Aggregate(q.Lines)
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > cart.MaxQuantity {
			return Receipt{}, fmt.Errorf("%w: presentation %d quantity %d", ErrInvalidQuantity, it.PresentationID, it.Quantity)
		}
	}
	invoice := sess.Tier == pricing.TierRestaurant

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.TxQueries(tx)

	if err := verifyProducts(ctx, qtx, items); err != nil {
		return Receipt{}, err
	}
	created, err := qtx.CreateOrder(ctx, dbgen.CreateOrderParams{
		UserID:                    pgtype.Int8{Int64: user.ID, Valid: true},
		StatusID:                  int16(order.StatusPending),
		Tier:                      sess.Tier.String(),
		Total:                     q.Total,
		ShippingCost:              q.Shipping,
		ShippingRate:              q.ShippingRate,
		RequiresElectronicInvoice: invoice,
		CompanyName:               textOr(in.CompanyName, user.CompanyName),
		CompanyNit:                textOr(in.CompanyNit, user.CompanyNit),
		CompanyAddress:            textOr(in.CompanyAddress, user.CompanyAddress),
		Notes:                     textOr(in.Notes, pgtype.Text{}),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("create order: %w", err)
	}
	for _, it := range items {
		if _, err := qtx.CreateOrderItem(ctx, dbgen.CreateOrderItemParams{
			OrderID:        created.ID,
			ProductID:      it.ProductID,
			VariationID:    it.VariationID,
			PresentationID: it.PresentationID,
			Presentation:   it.Presentation,
			Quality:        it.Quality,
			Quantity:       int32(it.Quantity),
			Price:          it.UnitPrice,
		}); err != nil {
			return Receipt{}, fmt.Errorf("create order item: %w", err)
		}
	}
	if s.Events != nil {
		payload := map[string]any{
			"orderId":    created.ID,
			"customerId": user.ID,
			"tier":       sess.Tier,
			"total":      q.Total,
			"items":      len(items),
		}
		if _, err := s.Events.WithStore(qtx).Emit(ctx, events.TopicOrderCreated, created.ID, payload); err != nil {
			return Receipt{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}

	obs.IncOrderPlaced(sess.Tier.String())
	if err := s.Carts.Clear(ctx, cart.UserSession(user.ID)); err != nil {
		s.Logger.Warn().Err(err).Int64("order_id", created.ID).Msg("failed to clear cart after order")
	}
	if err := s.Sessions.Delete(ctx, sess.ID); err != nil {
		s.Logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to drop checkout session")
	}
	s.Logger.Info().
		Int64("order_id", created.ID).
		Int64("customer_id", user.ID).
		Str("tier", sess.Tier.String()).
		Int64("total", q.Total).
		Bool("first_order", sess.FirstOrder).
		Msg("order placed")

	return Receipt{
		OrderID:                   created.ID,
		Status:                    order.StatusPending,
		Tier:                      sess.Tier,
		Subtotal:                  q.Subtotal,
		ShippingRate:              q.ShippingRate,
		Shipping:                  q.Shipping,
		Total:                     q.Total,
		RequiresElectronicInvoice: invoice,
		Items:                     items,
	}, nil
}

// Aggregate merges cart lines sharing a variation and presentation into one order item.
func Aggregate(lines []cart.Line) []Item {
	type key struct{ variation, presentation int64 }
	index := make(map[key]int, len(lines))
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		k := key{l.VariationID, l.PresentationID}
		if i, ok := index[k]; ok {
			items[i].Quantity += l.Quantity
			continue
		}
		index[k] = len(items)
		items = append(items, Item{
			ProductID:      l.ProductID,
			VariationID:    l.VariationID,
			PresentationID: l.PresentationID,
			Presentation:   l.Presentation,
			Quality:        l.Quality,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
		})
	}
	return items
}

func (s *Service) quote(ctx context.Context, sess Session) (Quote, error) {
	if s.Carts == nil || s.Minimums == nil {
		return Quote{}, errors.New("checkout service not configured")
	}
	lines, err := s.Carts.Lines(ctx, cart.UserSession(sess.CustomerID), sess.Tier)
	if err != nil {
		return Quote{}, err
	}
	if len(lines) == 0 {
		return Quote{}, ErrEmptyCart
	}
	rate, err := s.Shipping.Percentage(ctx, sess.Tier, sess.FirstOrder)
	if err != nil {
		return Quote{}, err
	}
	minimum, err := s.Minimums.Minimum(ctx, sess.Tier)
	if err != nil {
		return Quote{}, err
	}
	items := make([]pricing.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, pricing.Item{Qty: l.Quantity, UnitPrice: l.UnitPrice})
	}
	summary := pricing.Compute(items, rate)
	q := Quote{
		SessionID:    sess.ID,
		Tier:         sess.Tier,
		FirstOrder:   sess.FirstOrder,
		Lines:        lines,
		Subtotal:     summary.Subtotal,
		ShippingRate: summary.ShippingRate,
		Shipping:     summary.Shipping,
		Total:        summary.Total,
		Minimum:      minimum,
		MeetsMinimum: MeetsMinimum(summary.Subtotal, minimum),
	}
	if !q.MeetsMinimum {
		q.Message = MinimumMessage(minimum)
	}
	return q, nil
}

func (s *Service) session(ctx context.Context, sessionID string, customerID int64) (Session, error) {
	if s == nil || s.Sessions == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.Sessions.Load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.CustomerID != customerID {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) customer(ctx context.Context, id int64) (dbgen.User, pricing.Tier, error) {
	user, err := s.Queries.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dbgen.User{}, "", ErrCustomerNotFound
		}
		return dbgen.User{}, "", fmt.Errorf("get user: %w", err)
	}
	tier, err := pricing.ParseTier(user.UserType)
	if err != nil {
		return dbgen.User{}, "", fmt.Errorf("user %d: %w", id, err)
	}
	return user, tier, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func verifyProducts(ctx context.Context, q OrderWriter, items []Item) error {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	existing, err := q.ListExistingProductIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("list existing products: %w", err)
	}
	found := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		found[id] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return common.NewAppError("UNKNOWN_PRODUCTS", "some products no longer exist in the catalog", http.StatusUnprocessableEntity, ErrUnknownProducts).
		WithDetails(map[string]any{"invalidProducts": missing})
}

func belowMinimum(q Quote) error {
	return common.NewAppError("MINIMUM_NOT_MET", q.Message, http.StatusUnprocessableEntity, ErrBelowMinimum).
		WithDetails(map[string]any{
			"redirect": "/cart",
			"minimum":  q.Minimum,
			"subtotal": q.Subtotal,
		})
}

func textOr(v *string, fallback pgtype.Text) pgtype.Text {
	if v != nil {
		if s := strings.TrimSpace(*v); s != "" {
			return pgtype.Text{String: s, Valid: true}
		}
	}
	return fallback
}
