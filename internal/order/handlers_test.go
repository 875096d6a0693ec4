package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-fruver/internal/common"
	"github.com/noah-isme/backend-fruver/internal/order"
)

type fakeQueue struct {
	err   error
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "default", Type: task.Type()}, nil
}

func newOrderRouter(svc *order.Service, r *order.Reconciler, q order.TaskEnqueuer) http.Handler {
	h := &order.Handler{Svc: svc}
	admin := &order.AdminHandler{Svc: svc, Reconciler: r, Tasks: q}
	router := chi.NewRouter()
	router.Get("/orders", h.List)
	router.Get("/orders/{id}", h.Get)
	router.Get("/admin/orders", admin.List)
	router.Get("/admin/orders/{id}", admin.Get)
	router.Patch("/admin/orders/{id}/status", admin.UpdateStatus)
	router.Post("/admin/orders/reconcile-prices", admin.ReconcilePrices)
	return router
}

func call(ctx context.Context, t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCustomerOrderHandlers(t *testing.T) {
	f := newFakeDB()
	seedHistory(f)
	svc, _ := newOrderService(f)
	h := newOrderRouter(svc, nil, nil)

	rec := call(context.Background(), t, h, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	ctx := common.WithIdentity(context.Background(), common.Identity{UserID: 7, AccountType: "home"})
	rec = call(ctx, t, h, http.MethodGet, "/orders?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data       []order.Order     `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, 2, list.Pagination.TotalItems)
	require.Equal(t, order.StatusDelivered, list.Data[0].Status)

	rec = call(ctx, t, h, http.MethodGet, "/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)

	rec = call(ctx, t, h, http.MethodGet, "/orders/3", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminOrderHandlers(t *testing.T) {
	f := newFakeDB()
	seedHistory(f)
	svc, _ := newOrderService(f)
	h := newOrderRouter(svc, nil, nil)
	ctx := context.Background()

	rec := call(ctx, t, h, http.MethodGet, "/admin/orders?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	rec = call(ctx, t, h, http.MethodGet, "/admin/orders?status=lost", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(ctx, t, h, http.MethodPatch, "/admin/orders/1/status", map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"shipped"`)

	rec = call(ctx, t, h, http.MethodPatch, "/admin/orders/1/status", map[string]any{"status": "pending"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_TRANSITION")

	rec = call(ctx, t, h, http.MethodPatch, "/admin/orders/1/status", map[string]any{"status": "lost"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(ctx, t, h, http.MethodGet, "/admin/orders/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileHandler(t *testing.T) {
	f := newFakeDB()
	seedReconcile(f)
	r, _, _ := newReconciler(f)
	queue := &fakeQueue{}
	svc, _ := newOrderService(f)
	h := newOrderRouter(svc, r, queue)
	ctx := context.Background()

	rec := call(ctx, t, h, http.MethodPost, "/admin/orders/reconcile-prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data order.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.ItemsUpdated)
	require.Equal(t, 4, resp.Data.OrdersScanned)

	rec = call(ctx, t, h, http.MethodPost, "/admin/orders/reconcile-prices?async=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.tasks, 1)
	require.Equal(t, order.TaskReconcilePrices, queue.tasks[0].Type())

	queue.err = asynq.ErrDuplicateTask
	rec = call(ctx, t, h, http.MethodPost, "/admin/orders/reconcile-prices?async=true", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	queue.err = errors.New("redis down")
	rec = call(ctx, t, h, http.MethodPost, "/admin/orders/reconcile-prices?async=true", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	noQueue := newOrderRouter(svc, r, nil)
	rec = call(ctx, t, noQueue, http.MethodPost, "/admin/orders/reconcile-prices?async=true", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
