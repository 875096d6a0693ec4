package shipping

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// Handler exposes shipping rates over HTTP.
type Handler struct {
	Store *Store
}

type updateRatesRequest struct {
	Rates map[pricing.Tier]decimal.Decimal `json:"rates" validate:"required,min=1"`
}

// List handles GET /shipping-rates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rates)
}

// Update handles PUT /admin/shipping-rates.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRatesRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	updated, err := h.Store.UpdateRates(r.Context(), req.Rates)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, updated)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRateOutOfRange), errors.Is(err, pricing.ErrUnknownTier), errors.Is(err, ErrNoRates):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RATE", err.Error(), nil)
	case errors.Is(err, ErrRateMissing):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
