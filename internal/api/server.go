package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/cerberusteck/sirse-watch/internal/api/handler"
	"github.com/cerberusteck/sirse-watch/internal/cache"
	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/lifecycle"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. stream serves /ws and may be nil.
func NewRouter(ctrl *lifecycle.Controller, appCache *cache.Cache, store kv.Store, stream http.Handler, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The WebSocket upgrade needs the raw connection, so it sits outside
	// the compressing and timing writers.
	if stream != nil {
		r.Handle("/ws", stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware(logger))
		r.Use(TimingMiddleware)
		r.Use(middleware.Compress(5)) // gzip

		// CORS
		c := corslib.New(corslib.Options{
			AllowedOrigins:   cfg.CORSAllowOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
			ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
			AllowCredentials: false,
		})
		r.Use(c.Handler)

		// Rate limiting
		if cfg.RateLimitEnabled {
			r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		// --- Handler dependencies ---
		h := handler.New(ctrl, appCache, store, cfg, logger)

		// --- Routes ---

		// Root
		r.Get("/", h.Root)

		// Health checks
		r.Route("/health", func(r chi.Router) {
			r.Get("/", h.HealthCheck)
			r.Get("/store", h.HealthCheckStore)
			r.Get("/cache", h.HealthCheckCache)
		})

		// Swagger UI
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/docs/doc.json"),
		))

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Polling configuration and manual operations
			r.Route("/polling", func(r chi.Router) {
				r.Get("/", h.GetPolling)
				r.Put("/enabled", h.SetEnabled)
				r.Put("/interval", h.SetInterval)
				r.Post("/check", h.CheckNow)
				r.Post("/reset", h.ResetSeen)
				r.Delete("/counter", h.ClearCounter)
			})

			// Device state
			r.Put("/location", h.SetLocation)
			r.Post("/lifecycle/{state}", h.SetLifecycle)

			// Reports
			r.Get("/reports/nearby", h.GetNearby)
		})
	})

	return r
}
