package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// MaxQuantity caps the units of one line.
const MaxQuantity = 10000

var (
	// ErrInvalidQuantity is returned when a quantity is not in 1..MaxQuantity.
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 10000")
	// ErrUnavailableForTier is returned when the presentation has no price for the cart's tier.
	ErrUnavailableForTier = errors.New("cart: presentation not available for tier")
	// ErrLineNotFound is returned when a line key is not in the cart.
	ErrLineNotFound = errors.New("cart: line not found")
)

// Line is one canonical cart entry.
type Line struct {
	Key            string        `json:"key"`
	ProductID      int64         `json:"productId"`
	VariationID    int64         `json:"variationId"`
	PresentationID int64         `json:"presentationId"`
	ProductName    string        `json:"productName"`
	Quality        string        `json:"quality"`
	Presentation   string        `json:"presentation"`
	Quantity       int           `json:"quantity"`
	UnitPrice      pricing.Money `json:"unitPrice"`
	Tier           pricing.Tier  `json:"tier"`
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() pricing.Money {
	return l.UnitPrice * pricing.Money(l.Quantity)
}

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	Tier  pricing.Tier `json:"tier"`
	Lines []Line       `json:"lines"`
}

// Store persists a snapshot after every successful mutation.
type Store interface {
	Save(ctx context.Context, sessionID string, snap Snapshot) error
}

// Pick is a requested selection and quantity.
type Pick struct {
	Selection catalog.Selection
	Quantity  int
}

// Rejection explains why a line of a batch was not added.
type Rejection struct {
	ProductID      int64  `json:"productId"`
	VariationID    int64  `json:"variationId"`
	PresentationID int64  `json:"presentationId"`
	Reason         string `json:"reason"`
	Err            error  `json:"-"`
}

// Key builds the canonical line key "<product>-<variation>-<label>".
func Key(productID, variationID int64, label string) string {
	return fmt.Sprintf("%d-%d-%s", productID, variationID, strings.TrimSpace(label))
}

// Aggregator merges selections into deduplicated lines for one session and tier.
type Aggregator struct {
	mu        sync.Mutex
	sessionID string
	tier      pricing.Tier
	store     Store
	lines     map[string]*Line
	order     []string
}

// NewAggregator returns an empty cart.
func NewAggregator(sessionID string, tier pricing.Tier, store Store) *Aggregator {
	return &Aggregator{
		sessionID: sessionID,
		tier:      tier,
		store:     store,
		lines:     make(map[string]*Line),
	}
}

// Restore rebuilds an aggregator from a snapshot without saving.
func Restore(sessionID string, tier pricing.Tier, store Store, snap Snapshot) *Aggregator {
	a := NewAggregator(sessionID, tier, store)
	a.load(snap.Lines)
	return a
}

// Tier returns the tier the cart is priced for.
func (a *Aggregator) Tier() pricing.Tier { return a.tier }

// Add inserts a selection or increments an existing line, re-snapshotting its unit price.
func (a *Aggregator) Add(ctx context.Context, sel catalog.Selection, qty int) (Line, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var added Line
	err := a.mutate(ctx, func() error {
		line, err := a.add(sel, qty)
		added = line
		return err
	})
	return added, err
}

// AddMany adds every valid pick with a single save and reports the rest.
func (a *Aggregator) AddMany(ctx context.Context, picks []Pick) ([]Rejection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rejected []Rejection
	err := a.mutate(ctx, func() error {
		for _, p := range picks {
			if _, err := a.add(p.Selection, p.Quantity); err != nil {
				rejected = append(rejected, Rejection{
					ProductID:      p.Selection.ProductID,
					VariationID:    p.Selection.VariationID,
					PresentationID: p.Selection.PresentationID,
					Reason:         err.Error(),
					Err:            err,
				})
			}
		}
		if len(rejected) == len(picks) {
			return errNothingChanged
		}
		return nil
	})
	if errors.Is(err, errNothingChanged) {
		err = nil
	}
	return rejected, err
}

// Remove deletes the line when deleteAll is set or its quantity is one, otherwise decrements it.
// The unit price is kept on decrement.
func (a *Aggregator) Remove(ctx context.Context, key string, deleteAll bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.mutate(ctx, func() error {
		line, ok := a.lines[key]
		if !ok {
			return ErrLineNotFound
		}
		if deleteAll || line.Quantity <= 1 {
			a.delete(key)
			return nil
		}
		line.Quantity--
		return nil
	})
}

// SetQuantity sets an existing line's quantity, deleting it when qty <= 0.
func (a *Aggregator) SetQuantity(ctx context.Context, sel catalog.Selection, qty int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := Key(sel.ProductID, sel.VariationID, sel.Presentation)
	return a.mutate(ctx, func() error {
		line, ok := a.lines[key]
		if !ok {
			return ErrLineNotFound
		}
		if qty <= 0 {
			a.delete(key)
			return nil
		}
		if qty > MaxQuantity {
			return ErrInvalidQuantity
		}
		price, err := a.resolve(sel)
		if err != nil {
			return err
		}
		line.Quantity = qty
		line.UnitPrice = price
		return nil
	})
}

// Clear empties the cart.
func (a *Aggregator) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.mutate(ctx, func() error {
		a.lines = make(map[string]*Line)
		a.order = nil
		return nil
	})
}

// Total returns the sum of unit price times quantity over every line.
func (a *Aggregator) Total() pricing.Money {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total pricing.Money
	for _, key := range a.order {
		total += a.lines[key].Subtotal()
	}
	return total
}

// Lines returns a copy of the lines in insertion order.
func (a *Aggregator) Lines() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLines()
}

// Snapshot returns the persisted form of the cart.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{Tier: a.tier, Lines: a.copyLines()}
}

var errNothingChanged = errors.New("cart: nothing changed")

// mutate applies fn and saves, restoring the previous lines when fn or the save fails.
func (a *Aggregator) mutate(ctx context.Context, fn func() error) error {
	before := a.copyLines()
	if err := fn(); err != nil {
		a.load(before)
		return err
	}
	if a.store == nil {
		return nil
	}
	if err := a.store.Save(ctx, a.sessionID, Snapshot{Tier: a.tier, Lines: a.copyLines()}); err != nil {
		a.load(before)
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

func (a *Aggregator) add(sel catalog.Selection, qty int) (Line, error) {
	if qty <= 0 || qty > MaxQuantity {
		return Line{}, ErrInvalidQuantity
	}
	price, err := a.resolve(sel)
	if err != nil {
		return Line{}, err
	}
	key := Key(sel.ProductID, sel.VariationID, sel.Presentation)
	if line, ok := a.lines[key]; ok {
		if line.Quantity > MaxQuantity-qty {
			return Line{}, ErrInvalidQuantity
		}
		line.Quantity += qty
		line.UnitPrice = price
		return *line, nil
	}
	line := &Line{
		Key:            key,
		ProductID:      sel.ProductID,
		VariationID:    sel.VariationID,
		PresentationID: sel.PresentationID,
		ProductName:    sel.ProductName,
		Quality:        sel.Quality,
		Presentation:   sel.Presentation,
		Quantity:       qty,
		UnitPrice:      price,
		Tier:           a.tier,
	}
	a.lines[key] = line
	a.order = append(a.order, key)
	return *line, nil
}

func (a *Aggregator) resolve(sel catalog.Selection) (pricing.Money, error) {
	price, err := pricing.Resolve(sel.Prices, a.tier)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s (%s)", ErrUnavailableForTier, sel.ProductName, sel.Presentation, a.tier)
	}
	return price, nil
}

func (a *Aggregator) delete(key string) {
	delete(a.lines, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Aggregator) copyLines() []Line {
	out := make([]Line, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.lines[key])
	}
	return out
}

func (a *Aggregator) load(lines []Line) {
	a.lines = make(map[string]*Line, len(lines))
	a.order = make([]string, 0, len(lines))
	for _, l := range lines {
		line := l
		if line.Key == "" {
			line.Key = Key(line.ProductID, line.VariationID, line.Presentation)
		}
		if _, dup := a.lines[line.Key]; dup {
			continue
		}
		a.lines[line.Key] = &line
		a.order = append(a.order, line.Key)
	}
}
