// Package main provides a standalone HTTP server for E2E testing.
// It runs the same routes and handlers as `voicedesk serve`, with every
// vendor answered by an in-process mock, making it suitable for browser tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicedesk/config"
	"voicedesk/internal/api"
	"voicedesk/internal/app"
	"voicedesk/internal/settings"
	"voicedesk/observability"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	vendors := newMockVendors(os.Getenv("E2E_ACCEPTED_KEYS"))
	defer vendors.Close()

	cfg := config.NewTestConfig()
	cfg.Database.URL = os.Getenv("E2E_DATABASE_URL")
	cfg.Validation.TimeoutSeconds = 5
	for _, v := range settings.Vendors() {
		cfg.VendorBaseURLs[v.Name] = vendors.VendorURL(v.Name)
	}

	// Key file lives in a throwaway directory unless one is given
	cfg.Settings.Dir = os.Getenv("E2E_SETTINGS_DIR")
	if cfg.Settings.Dir == "" && !cfg.HasDatabase() {
		dir, err := os.MkdirTemp("", "voicedesk-e2e-settings-*")
		if err != nil {
			observability.Fatal("failed to create temp settings dir", "error", err)
		}
		defer os.RemoveAll(dir)
		cfg.Settings.Dir = dir
	}

	ctx := context.Background()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		observability.Fatal("failed to build app", "error", err)
	}
	observability.Info("app initialized", "database", cfg.HasDatabase(), "settings_dir", cfg.Settings.Dir)

	router := api.NewRouter(api.NewHandler(application, cfg), cfg)
	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/_e2e/", http.StripPrefix("/_e2e", vendors.ControlHandler()))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}

	application.Shutdown()
	observability.Info("E2E test server stopped")
}
