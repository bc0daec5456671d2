// Package handler provides the HTTP handlers of the bookstore API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Version is the application version.
const Version = "1.0.0"

// MsgNotReady is reported by /ready when the check fails. The cause is
// only logged.
const MsgNotReady = "data source unavailable"

// readyTimeout bounds one readiness check.
const readyTimeout = 2 * time.Second

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadyFunc reports whether the service can serve traffic.
type ReadyFunc func(ctx context.Context) error

// ProbeHandler serves liveness and readiness probes.
type ProbeHandler struct {
	ready  ReadyFunc
	logger *zap.Logger
}

// NewProbeHandler creates a ProbeHandler. A nil ready func is always ready.
func NewProbeHandler(ready ReadyFunc, logger *zap.Logger) *ProbeHandler {
	return &ProbeHandler{ready: ready, logger: logger}
}

// RegisterRoutes registers /health and /ready.
func (h *ProbeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
}

// Health handles GET /health.
func (h *ProbeHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// Ready handles GET /ready. It fails while the data source is unreadable.
func (h *ProbeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := h.ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, h.logger, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Error: MsgNotReady})
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
