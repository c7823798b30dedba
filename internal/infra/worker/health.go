package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"feedwatch/internal/observability/tracing"
	"feedwatch/internal/usecase/notify"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChannelHealthSource reports notification channel health.
type ChannelHealthSource interface {
	GetChannelHealth() []notify.ChannelHealthStatus
}

// HealthServer serves the worker's operational endpoints:
//   - /health: liveness probe (always 200 OK)
//   - /health/ready: readiness probe (200 if ready, 503 if not)
//   - /health/channels: notification channel health
//   - /metrics: Prometheus exposition
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", logger, notifySvc)
//	go func() {
//	    if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	healthServer.SetReady(true)
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	isReady  *atomic.Bool
	channels ChannelHealthSource
	server   *http.Server
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

type channelsResponse struct {
	Status   string                       `json:"status"`
	Channels []notify.ChannelHealthStatus `json:"channels"`
}

// NewHealthServer creates a health server. channels may be nil.
func NewHealthServer(addr string, logger *slog.Logger, channels ChannelHealthSource) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &HealthServer{
		addr:     addr,
		logger:   logger,
		isReady:  isReady,
		channels: channels,
	}
}

// Handler returns the traced endpoint mux.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/health/channels", h.handleChannels)
	mux.Handle("/metrics", promhttp.Handler())
	return tracing.Middleware(mux)
}

// Start serves until ctx is cancelled, then shuts down with a 5-second
// grace period. It returns http.ErrServerClosed on graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handleChannels reports "degraded" while any enabled channel has an open
// circuit breaker. The status code is always 200.
func (h *HealthServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	resp := channelsResponse{Status: "ok", Channels: []notify.ChannelHealthStatus{}}
	if h.channels != nil {
		resp.Channels = h.channels.GetChannelHealth()
	}
	for _, ch := range resp.Channels {
		if ch.Enabled && ch.CircuitBreakerOpen {
			resp.Status = "degraded"
			break
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}
