package checkout

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Reconciler turns return-trip signals plus the stored session into one Outcome.
type Reconciler struct {
	store     session.Store
	publisher EventPublisher
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(store session.Store, publisher EventPublisher, ttl time.Duration, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		publisher: publisher,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile never fails. Store problems degrade to an outcome computed from signals alone,
// and the session slot is cleared whatever the status.
func (r *Reconciler) Reconcile(ctx context.Context, route string, params url.Values) Outcome {
	log := logger.Or(ctx, r.logger)

	schema, ok := Schemas[route]
	if !ok {
		log.Warn("unknown return route, using generic signal schema", "route", route)
		schema = Schemas[RouteGenericResult]
		schema.Route = route
	}
	signals := schema.Parse(params)

	stored, err := r.store.Load(ctx)
	if err != nil {
		log.Error("failed to load payment session during reconciliation", "route", route, "error", err)
		stored = nil
	}

	status, decidedBy := Classify(signals, stored)
	now := r.now()

	outcome := Outcome{
		Status:        status,
		Message:       MessageFor(status),
		TransactionID: signals.TransactionID,
		ReferenceID:   signals.ReferenceID,
		PaymentDate:   signals.PaymentDate,
		Amount:        signals.Amount,
		Method:        schema.Method,
		Route:         schema.Route,
		ReconciledAt:  now,
	}

	if stored != nil {
		if outcome.ReferenceID == "" {
			outcome.ReferenceID = stored.ReferenceID
		}
		if outcome.Amount == 0 {
			outcome.Amount = stored.Amount
		}
		if outcome.Method == "" {
			outcome.Method = stored.Method
		}
		outcome.StaleSession = stored.IsExpired(now, r.ttl)
		if stored.ReferenceID != "" && signals.ReferenceID != "" && stored.ReferenceID != signals.ReferenceID {
			log.Warn("return reference does not match stored session",
				"reference_id", signals.ReferenceID,
				"stored_reference_id", stored.ReferenceID)
		}
	}

	if err := r.store.Clear(ctx); err != nil {
		log.Error("failed to clear payment session", "route", route, "error", err)
	}

	log.Info("payment outcome reconciled",
		"route", outcome.Route,
		"status", outcome.Status,
		"decided_by", decidedBy,
		"reference_id", outcome.ReferenceID,
		"stale_session", outcome.StaleSession)

	if r.publisher != nil {
		event := events.NewOutcomeReconciledEvent(string(outcome.Status), outcome.Route, string(outcome.Method), outcome.ReferenceID, outcome.StaleSession)
		if err := r.publisher.Publish(ctx, event); err != nil {
			log.Warn("failed to publish reconciliation event", "error", err)
		}
	}

	return outcome
}
