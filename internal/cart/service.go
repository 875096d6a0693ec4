package cart

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/lock"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// SnapshotStore loads and persists cart snapshots.
type SnapshotStore interface {
	Store
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// SelectionSource resolves live catalog selections.
type SelectionSource interface {
	Selection(ctx context.Context, productID, variationID, presentationID int64) (catalog.Selection, error)
}

// PickRequest identifies a presentation and quantity by id.
type PickRequest struct {
	ProductID      int64 `json:"productId" validate:"required,gt=0"`
	VariationID    int64 `json:"variationId" validate:"required,gt=0"`
	PresentationID int64 `json:"presentationId" validate:"required,gt=0"`
	Quantity       int   `json:"quantity" validate:"max=10000"`
}

// View is the cart as returned to clients.
type View struct {
	SessionID string        `json:"sessionId"`
	Tier      pricing.Tier  `json:"tier"`
	Lines     []Line        `json:"lines"`
	Subtotal  pricing.Money `json:"subtotal"`
	Items     int           `json:"items"`
}

// Service coordinates cart sessions with the catalog and the snapshot store.
type Service struct {
	Store   SnapshotStore
	Catalog SelectionSource
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// UserSession returns the session id of an authenticated customer's cart.
func UserSession(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Open hydrates the aggregator of a session. Lines priced for another tier are re-priced
// from the live catalog and dropped when no longer available.
func (s *Service) Open(ctx context.Context, sessionID string, tier pricing.Tier) (*Aggregator, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("cart service not configured")
	}
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap.Tier == "" || snap.Tier == tier || len(snap.Lines) == 0 {
		return Restore(sessionID, tier, s.Store, snap), nil
	}
	agg := NewAggregator(sessionID, tier, s.Store)
	picks := make([]Pick, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		sel, err := s.selection(ctx, line.ProductID, line.VariationID, line.PresentationID)
		if err != nil {
			continue
		}
		picks = append(picks, Pick{Selection: sel, Quantity: line.Quantity})
	}
	rejected, err := agg.AddMany(ctx, picks)
	if err != nil {
		return nil, err
	}
	if len(rejected) == len(picks) {
		// AddMany saved nothing, so the old-tier snapshot is still stored.
		if err := s.Store.Save(ctx, sessionID, agg.Snapshot()); err != nil {
			return nil, err
		}
	}
	if dropped := len(snap.Lines) - len(picks) + len(rejected); dropped > 0 {
		s.Logger.Info().Str("session", sessionID).Str("tier", tier.String()).Int("dropped", dropped).Msg("cart re-priced for new tier")
	}
	return agg, nil
}

// View returns the current cart.
func (s *Service) View(ctx context.Context, sessionID string, tier pricing.Tier) (View, error) {
	agg, err := s.Open(ctx, sessionID, tier)
	if err != nil {
		return View{}, err
	}
	return view(sessionID, agg), nil
}

// Add resolves the selection from the catalog and adds it.
func (s *Service) Add(ctx context.Context, sessionID string, tier pricing.Tier, req PickRequest) (View, error) {
	var out View
	err := s.withSession(ctx, sessionID, "add", func(ctx context.Context) error {
		if req.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		sel, err := s.selection(ctx, req.ProductID, req.VariationID, req.PresentationID)
		if err != nil {
			return err
		}
		agg, err := s.Open(ctx, sessionID, tier)
		if err != nil {
			return err
		}
		if _, err := agg.Add(ctx, sel, req.Quantity); err != nil {
			return err
		}
		out = view(sessionID, agg)
		return nil
	})
	return out, err
}

// AddBatch adds every resolvable request and reports the rejected ones.
func (s *Service) AddBatch(ctx context.Context, sessionID string, tier pricing.Tier, reqs []PickRequest) (View, []Rejection, error) {
	var (
		out      View
		rejected []Rejection
	)
	err := s.withSession(ctx, sessionID, "add_batch", func(ctx context.Context) error {
		picks := make([]Pick, 0, len(reqs))
		for _, req := range reqs {
			sel, err := s.selection(ctx, req.ProductID, req.VariationID, req.PresentationID)
			if err != nil {
				rejected = append(rejected, Rejection{
					ProductID:      req.ProductID,
					VariationID:    req.VariationID,
					PresentationID: req.PresentationID,
					Reason:         err.Error(),
					Err:            err,
				})
				continue
			}
			picks = append(picks, Pick{Selection: sel, Quantity: req.Quantity})
		}
		agg, err := s.Open(ctx, sessionID, tier)
		if err != nil {
			return err
		}
		more, err := agg.AddMany(ctx, picks)
		if err != nil {
			return err
		}
		rejected = append(rejected, more...)
		out = view(sessionID, agg)
		return nil
	})
	return out, rejected, err
}

// SetQuantity sets the quantity of an existing line.
func (s *Service) SetQuantity(ctx context.Context, sessionID string, tier pricing.Tier, req PickRequest) (View, error) {
	var out View
	err := s.withSession(ctx, sessionID, "set_quantity", func(ctx context.Context) error {
		sel, err := s.selection(ctx, req.ProductID, req.VariationID, req.PresentationID)
		if err != nil {
			return err
		}
		agg, err := s.Open(ctx, sessionID, tier)
		if err != nil {
			return err
		}
		if err := agg.SetQuantity(ctx, sel, req.Quantity); err != nil {
			return err
		}
		out = view(sessionID, agg)
		return nil
	})
	return out, err
}

// Remove decrements or deletes a line by key.
func (s *Service) Remove(ctx context.Context, sessionID string, tier pricing.Tier, key string, all bool) (View, error) {
	var out View
	err := s.withSession(ctx, sessionID, "remove", func(ctx context.Context) error {
		agg, err := s.Open(ctx, sessionID, tier)
		if err != nil {
			return err
		}
		if err := agg.Remove(ctx, key, all); err != nil {
			return err
		}
		out = view(sessionID, agg)
		return nil
	})
	return out, err
}

// Clear empties the session's cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, "clear", func(ctx context.Context) error {
		return s.Store.Delete(ctx, sessionID)
	})
}

// Lines returns the session's lines for the given tier.
func (s *Service) Lines(ctx context.Context, sessionID string, tier pricing.Tier) ([]Line, error) {
	agg, err := s.Open(ctx, sessionID, tier)
	if err != nil {
		return nil, err
	}
	return agg.Lines(), nil
}

func (s *Service) selection(ctx context.Context, productID, variationID, presentationID int64) (catalog.Selection, error) {
	if s.Catalog == nil {
		return catalog.Selection{}, errors.New("cart catalog not configured")
	}
	return s.Catalog.Selection(ctx, productID, variationID, presentationID)
}

func (s *Service) withSession(ctx context.Context, sessionID, op string, fn func(context.Context) error) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	var err error
	if s.Locker == nil {
		err = fn(ctx)
	} else {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		err = s.Locker.WithLock(ctx, "lock:cart:"+sessionID, ttl, fn)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.IncCartMutation(op, result)
	return err
}

func view(sessionID string, agg *Aggregator) View {
	lines := agg.Lines()
	items := 0
	for _, l := range lines {
		items += l.Quantity
	}
	return View{
		SessionID: sessionID,
		Tier:      agg.Tier(),
		Lines:     lines,
		Subtotal:  agg.Total(),
		Items:     items,
	}
}
