package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echo(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		*captured = string(data)
		w.WriteHeader(http.StatusOK)
	})
}

func TestBodyLimit(t *testing.T) {
	var captured string
	h := BodyLimit{Max: 16}.Middleware(echo(&captured))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"quantity":2}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"quantity":2}`, captured)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"quantity":2,"notes":"x"}`)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader("{}"))
	req.ContentLength = 100
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "declared length is checked before reading")
}

func TestBodyLimitDisabled(t *testing.T) {
	var captured string
	h := BodyLimit{}.Middleware(echo(&captured))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 1024))))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, captured, 1024)
}
