package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes the terminal's dependencies for readiness. Redis is
// optional; a nil probe is reported as skipped.
type Checker interface {
	PingBackend(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	BackendTimeout time.Duration
	RedisTimeout   time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports per-dependency probe status. The response is always 200;
// cart building works without the backend, so a degraded probe is
// informational.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	backendStatus := "ok"
	if err := h.Checker.PingBackend(ctx, h.backendTimeout()); err != nil {
		backendStatus = err.Error()
	}
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	status := map[string]string{
		"backend": backendStatus,
		"redis":   redisStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) backendTimeout() time.Duration {
	if h.BackendTimeout <= 0 {
		return time.Second
	}
	return h.BackendTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
