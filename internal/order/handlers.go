package order

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-fruver/internal/common"
)

// Handler exposes customer order history.
type Handler struct {
	Svc *Service
}

// List handles GET /orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page := common.ParsePagination(r, 20)
	orders, total, err := h.Svc.ListForCustomer(r.Context(), id.UserID, page)
	if err != nil {
		writeError(w, err)
		return
	}
	page.TotalItems = int(total)
	common.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": page})
}

// Get handles GET /orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.GetForCustomer(r.Context(), id.UserID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

// AdminHandler exposes back-office order operations.
type AdminHandler struct {
	Svc        *Service
	Reconciler *Reconciler
	Tasks      TaskEnqueuer
}

type statusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// List handles GET /admin/orders?status=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter *Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", map[string]any{"status": raw})
			return
		}
		filter = &st
	}
	page := common.ParsePagination(r, 50)
	orders, total, err := h.Svc.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	page.TotalItems = int(total)
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": page})
}

// Get handles GET /admin/orders/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

// UpdateStatus handles PATCH /admin/orders/{id}/status.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

// ReconcilePrices handles POST /admin/orders/reconcile-prices. With ?async=true the run is
// queued for the worker.
func (h *AdminHandler) ReconcilePrices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		if h.Tasks == nil {
			common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "task queue not configured", nil)
			return
		}
		info, err := h.Tasks.EnqueueContext(r.Context(), NewReconcileTask(h.Reconciler.RunTimeout()))
		if err != nil {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				common.JSONError(w, http.StatusConflict, "RECONCILE_IN_PROGRESS", "a price reconciliation is already queued", nil)
				return
			}
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusAccepted, map[string]any{"taskId": info.ID, "queue": info.Queue})
		return
	}
	report, err := h.Reconciler.ReconcilePendingOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, ErrUnknownStatus):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrStatusConflict):
		common.JSONError(w, http.StatusConflict, "STATUS_CONFLICT", "order status changed, reload and retry", nil)
	case errors.Is(err, ErrReconcileInProgress):
		common.JSONError(w, http.StatusConflict, "RECONCILE_IN_PROGRESS", "a price reconciliation is already running", nil)
	default:
		common.WriteError(w, err)
	}
}
