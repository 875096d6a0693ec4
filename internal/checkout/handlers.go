package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/pricing"
	"github.com/noah-isme/backend-fruver/internal/shipping"
)

// Handler exposes checkout over HTTP. Every route requires an authenticated customer.
type Handler struct {
	Svc *Service
}

// BeginSession handles POST /checkout/sessions.
func (h *Handler) BeginSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.Begin(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, sess)
}

// Quote handles GET /checkout/sessions/{id}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	q, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// PlaceOrder handles POST /checkout/sessions/{id}/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in PlaceInput
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &in); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	receipt, err := h.Svc.Place(r.Context(), chi.URLParam(r, "id"), id.UserID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, receipt)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Identity, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return common.Identity{}, false
	}
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.Identity{}, false
	}
	return id, true
}

// MinimumHandler exposes minimum order overrides to administrators.
type MinimumHandler struct {
	Policy *MinimumPolicy
}

type setMinimumRequest struct {
	Amount pricing.Money `json:"amount" validate:"required,gt=0"`
}

// List handles GET /admin/minimum-orders.
func (h *MinimumHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Policy.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

// Set handles PUT /admin/minimum-orders/{tier}.
func (h *MinimumHandler) Set(w http.ResponseWriter, r *http.Request) {
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req setMinimumRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.Policy.Set(r.Context(), tier, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, m)
}

// Reset handles DELETE /admin/minimum-orders/{tier}.
func (h *MinimumHandler) Reset(w http.ResponseWriter, r *http.Request) {
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}
	if err := h.Policy.Reset(r.Context(), tier); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tierParam(w http.ResponseWriter, r *http.Request) (pricing.Tier, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "tier"))
	tier := pricing.Tier(strings.ToLower(raw))
	if !tier.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown tier", map[string]any{"tier": raw})
		return "", false
	}
	return tier, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteError(w, err)
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "checkout session not found", nil)
	case errors.Is(err, ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
	case errors.Is(err, ErrMinimumNotOverridden):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_QUANTITY", "an item quantity is out of range", map[string]any{"redirect": "/cart"})
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", map[string]any{"redirect": "/cart"})
	case errors.Is(err, ErrInvalidMinimum), errors.Is(err, pricing.ErrUnknownTier):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_MINIMUM", err.Error(), nil)
	case errors.Is(err, shipping.ErrRateMissing), errors.Is(err, shipping.ErrRateOutOfRange):
		common.JSONError(w, http.StatusServiceUnavailable, "SHIPPING_UNAVAILABLE", "shipping rates are not configured", nil)
	default:
		common.WriteError(w, err)
	}
}
