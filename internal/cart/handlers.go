package cart

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/common"
)

// SessionHeader carries the anonymous cart session id.
const SessionHeader = "X-Cart-Session"

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type batchRequest struct {
	Items []PickRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// Get handles GET /cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.View(r.Context(), sessionID, common.TierOrDefault(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, v)
}

// AddItem handles POST /cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PickRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.Add(r.Context(), sessionID, common.TierOrDefault(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, v)
}

// AddBatch handles POST /cart/items/batch.
func (h *Handler) AddBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, rejected, err := h.Svc.AddBatch(r.Context(), sessionID, common.TierOrDefault(r.Context()), req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	if rejected == nil {
		rejected = []Rejection{}
	}
	status := http.StatusCreated
	if len(rejected) > 0 {
		status = http.StatusMultiStatus
	}
	common.JSON(w, status, map[string]any{"data": v, "rejected": rejected})
}

// SetQuantity handles PUT /cart/items.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PickRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.SetQuantity(r.Context(), sessionID, common.TierOrDefault(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, v)
}

// RemoveItem handles DELETE /cart/items/{key}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	// chi matches on RawPath when the request carries escapes such as %2F, leaving the
	// parameter encoded.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart line key", nil)
			return
		}
		key = unescaped
	}
	key = strings.TrimSpace(key)
	all := r.URL.Query().Get("all") == "true"
	v, err := h.Svc.Remove(r.Context(), sessionID, common.TierOrDefault(r.Context()), key, all)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, v)
}

// Clear handles DELETE /cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the cart session. Anonymous callers without a session get a new one,
// echoed in the response header.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	if id, ok := common.IdentityFrom(r.Context()); ok {
		return UserSession(id.UserID), true
	}
	raw := strings.TrimSpace(r.Header.Get(SessionHeader))
	if raw == "" {
		sid := uuid.NewString()
		w.Header().Set(SessionHeader, sid)
		return sid, true
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart session", map[string]any{"header": SessionHeader})
		return "", false
	}
	sid := parsed.String()
	w.Header().Set(SessionHeader, sid)
	return sid, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrUnavailableForTier):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNAVAILABLE_FOR_TIER", err.Error(), nil)
	case errors.Is(err, catalog.ErrSelectionInactive):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_INACTIVE", "product is no longer available", nil)
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart line not found", nil)
	case errors.Is(err, catalog.ErrSelectionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product selection not found", nil)
	default:
		common.WriteError(w, err)
	}
}
