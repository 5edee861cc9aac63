// Package handler provides HTTP handlers for the polling control surface.
// Handlers call the lifecycle controller directly; there is no service layer.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/api/respond"
	"github.com/cerberusteck/sirse-watch/internal/cache"
	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
)

// healthKey is read to verify a store without its own health check answers.
const healthKey = "sirse.health"

// healthChecker is implemented by stores that can verify their backend
// directly, such as kv.PGStore.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	ctrl   *lifecycle.Controller
	cache  *cache.Cache
	store  kv.Store
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(ctrl *lifecycle.Controller, c *cache.Cache, store kv.Store, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ctrl:   ctrl,
		cache:  c,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and the polling interval menu.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":             "SIRSE Watch",
		"version":          "1.0.0",
		"status":           "running",
		"docs":             "/docs",
		"stream":           "/ws",
		"interval_minutes": config.IntervalMenuMinutes,
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"polling":   h.ctrl.Status().Active,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckStore verifies the state store is reachable.
// @Summary State store health check
// @Description Pings the persistent state store.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/store [get]
func (h *Handler) HealthCheckStore(w http.ResponseWriter, r *http.Request) {
	if err := h.checkStore(r.Context()); err != nil {
		h.logger.Warn("State store health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"store":     "unreachable",
			"error":     "State store check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"store":     "reachable",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStore(ctx context.Context) error {
	if hc, ok := h.store.(healthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	if _, err := h.store.Get(ctx, healthKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return nil
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys, hits).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
