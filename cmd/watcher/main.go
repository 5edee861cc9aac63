// Command watcher is the SIRSE proximity poller daemon. It polls the report
// API, notifies about new reports near the user and serves the control API.
//
// Usage:
//
//	sirse-watch
//	API_PORT=8080 HOME_LATITUDE=20.14 HOME_LONGITUDE=-98.339 sirse-watch

// @title SIRSE Watch API
// @version 1.0.0
// @description Control surface for the SIRSE proximity poller: polling configuration, manual checks, location and lifecycle updates, and nearby report lookups.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @contact.name SIRSE
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cerberusteck/sirse-watch/internal/api"
	"github.com/cerberusteck/sirse-watch/internal/app"
	"github.com/cerberusteck/sirse-watch/internal/cache"
	"github.com/cerberusteck/sirse-watch/internal/config"
	"github.com/cerberusteck/sirse-watch/internal/hub"
	"github.com/cerberusteck/sirse-watch/internal/listener"

	_ "github.com/cerberusteck/sirse-watch/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Polling stack
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// WebSocket fan-out of new-report batches
	stream := hub.New(cfg.CORSAllowOrigins, logger)
	defer stream.Close()
	a.Controller.SetListener(stream.Broadcast)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Start LISTEN/NOTIFY consumer for out-of-schedule checks
	if cfg.DatabaseURL != "" {
		go listener.Start(ctx, cfg.DatabaseURL, a.Engine, logger)
	} else {
		logger.Info("Report listener disabled (no DATABASE_URL)")
	}

	// A daemon is always in the foreground.
	a.Controller.Foreground(ctx)

	// Pick up polling config written by sirsectl while the API was unreachable.
	if cfg.ConfigReload > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ConfigReload)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.Controller.Reload(ctx)
				}
			}
		}()
	}

	// Create router
	router := api.NewRouter(a.Controller, appCache, a.Store, stream, cfg, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.CheckTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting SIRSE Watch",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Stop polling before draining the server.
	a.Controller.Background()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
