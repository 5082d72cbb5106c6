package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/observability"
	"github.com/frahmantamala/vip-checkout/internal/transport/middleware"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterConfig struct {
	AllowedOrigins string
	DefaultProfile string
	MetricsPath    string
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, checkoutHandler *checkout.Handler, metrics *observability.Metrics, gatherer prometheus.Gatherer, config RouterConfig, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(config.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.CheckoutProfile(config.DefaultProfile))
	router.Use(middleware.RecoveryMiddleware(logger))
	if metrics != nil {
		router.Use(metrics.Middleware)
	}

	if metrics != nil && config.MetricsPath != "" {
		router.Handle(config.MetricsPath, observability.Handler(gatherer))
	}

	// provider return points are plain browser navigations outside the API prefix
	router.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(logger))
		checkoutHandler.Routes(r)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(cr chi.Router) {
			cr.Use(middleware.LoggingMiddleware(logger))
			cr.Route("/checkout", func(c chi.Router) {
				c.Get("/options", checkoutHandler.GetOptions)
				c.Post("/redirect", checkoutHandler.StartRedirect)
				c.Get("/session", checkoutHandler.GetSession)
				c.Delete("/session", checkoutHandler.ResetSession)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"message":"not found"}`))
	})
}
