package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 500 * time.Millisecond

var draining atomic.Bool

// SetReady toggles readiness. Shutdown sets it to false so load balancers drain the instance.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Check is a named dependency probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(ctx context.Context) error
}

// PostgresCheck pings the pool.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "db", Timeout: defaultTimeout, Probe: func(ctx context.Context) error {
		return pool.Ping(ctx)
	}}
}

// RedisCheck pings the client.
func RedisCheck(client *redis.Client) Check {
	return Check{Name: "redis", Timeout: 300 * time.Millisecond, Probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Checks)+1)
	healthy := true
	if draining.Load() {
		status["server"] = "shutting down"
		healthy = false
	}
	for _, check := range h.Checks {
		if check.Probe == nil {
			continue
		}
		timeout := check.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			status[check.Name] = err.Error()
			healthy = false
			continue
		}
		status[check.Name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
