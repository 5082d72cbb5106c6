package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/observability"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/transport"
	"github.com/frahmantamala/vip-checkout/internal/transport/rest"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the return server: provider return routes, checkout options, redirect start and metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer(cmd.Context())
	},
}

func startHTTPServer(ctx context.Context) error {
	app, err := newApplication(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer app.close()

	router, err := setupRoutes(app)
	if err != nil {
		return err
	}

	cfg := app.Config.Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	app.Logger.Info("Starting HTTP server", "address", addr, "profile", app.Profile)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		app.Logger.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed to start: %w", err)
		}
	}

	app.Logger.Info("Server stopped")
	return nil
}

func setupRoutes(app *application) (*chi.Mux, error) {
	sqlDB, err := app.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("session store handle: %w", err)
	}

	var metrics *observability.Metrics
	if app.Config.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		metrics.Subscribe(app.Bus)
	}

	handler := checkout.NewHandler(
		transport.NewBaseHandler(app.Logger),
		app.Registry,
		app.Backend,
		func(profileID string) session.Store { return app.storeFor(profileID) },
		app.Bus,
		checkout.HandlerConfig{
			MinAmount:    app.Config.Checkout.MinAmount,
			SessionTTL:   app.Config.Checkout.SessionTTL,
			DashboardURL: app.Config.Checkout.DashboardURL,
			RetryURL:     app.Config.Checkout.RetryURL,
		},
	)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlDB, handler, metrics, prometheus.DefaultGatherer, rest.RouterConfig{
		AllowedOrigins: app.Config.Server.AllowedOrigins,
		DefaultProfile: app.Profile,
		MetricsPath:    app.Config.Observability.Metrics.Path,
	}, app.Logger)
	return router, nil
}
