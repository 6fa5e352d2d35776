package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voicedesk/internal/api"
	"voicedesk/internal/app"
	"voicedesk/observability"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server
const shutdownTimeout = 10 * time.Second

func newServeCommand(s *state) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the settings and billing HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				s.cfg.HTTP.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return s.withApp(ctx, func(a *app.App) error {
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains in-flight requests
func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config()

	router := api.NewRouter(api.NewHandler(a, cfg), cfg)
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("starting voicedesk API", "port", cfg.HTTP.Port, "url", fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	observability.Info("shutting down voicedesk API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	observability.Info("voicedesk API stopped")
	return nil
}
