package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	Store  Pinger
	Logger *zap.Logger
	// Timeout bounds the store round trip; zero means two seconds.
	Timeout time.Duration
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  bool      `json:"database"`
}

// Health reports only whether the store is reachable. Failures are logged,
// never returned.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Timestamp: time.Now().UTC(), Database: true}
	status := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("health check: store unreachable", zap.Error(err))
		}
		resp.Status = "degraded"
		resp.Database = false
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
