package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/vip-checkout/internal/core/events"
)

const namespace = "vip_checkout"

type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	initiationsTotal    *prometheus.CounterVec
	cardConfirmedTotal  prometheus.Counter
	settlementsTotal    *prometheus.CounterVec
	outcomesTotal       *prometheus.CounterVec
	staleSessionsTotal  prometheus.Counter
}

// NewMetrics registers the checkout collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		initiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_initiations_total",
				Help:      "Payment creation attempts by integration type, method and result",
			},
			[]string{"integration", "method", "result"},
		),
		cardConfirmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_confirmations_total",
			Help:      "Card payments confirmed by the card processor",
		}),
		settlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Backend confirmations of card payments by result",
			},
			[]string{"result"},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_reconciled_total",
				Help:      "Reconciled payment outcomes by return route and status",
			},
			[]string{"route", "status"},
		),
		staleSessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_sessions_total",
			Help:      "Reconciliations that found an expired payment session",
		}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.initiationsTotal,
		m.cardConfirmedTotal,
		m.settlementsTotal,
		m.outcomesTotal,
		m.staleSessionsTotal,
	)
	return m
}

// Subscribe counts checkout events published on bus.
func (m *Metrics) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(m.HandleEvent, events.AllCheckoutEventTypes...)
}

func (m *Metrics) HandleEvent(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.SessionSavedEvent:
		m.initiationsTotal.WithLabelValues(e.IntegrationType, e.Method, "created").Inc()
	case *events.InitiationFailedEvent:
		m.initiationsTotal.WithLabelValues(e.IntegrationType, e.Method, e.ErrorType).Inc()
	case *events.CardConfirmedEvent:
		m.cardConfirmedTotal.Inc()
	case *events.SettlementEvent:
		result := "settled"
		if e.EventType() == events.EventTypeSettlementFailed {
			result = "failed"
		}
		m.settlementsTotal.WithLabelValues(result).Inc()
	case *events.OutcomeReconciledEvent:
		m.outcomesTotal.WithLabelValues(e.Route, e.Status).Inc()
		if e.StaleSession {
			m.staleSessionsTotal.Inc()
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
