package checkout

import (
	"context"
	"sync"

	errors "github.com/frahmantamala/vip-checkout/internal"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/navigation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
)

// RedirectController drives create, save, then leave for the provider's hosted page.
// It has no return hook: the Reconciler handles whatever comes back.
type RedirectController struct {
	deps      Dependencies
	opts      Options
	navigator navigation.Navigator

	mu    sync.Mutex
	state FlowState
	last  *Request
}

func NewRedirectController(deps Dependencies, navigator navigation.Navigator, opts Options) *RedirectController {
	return &RedirectController{
		deps:      deps.withDefaults(),
		opts:      opts.withDefaults(),
		navigator: navigator,
		state:     StateIdle,
	}
}

func (c *RedirectController) IntegrationType() session.IntegrationType {
	return session.IntegrationRedirect
}

func (c *RedirectController) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastRequest is the most recent attempt, kept so a retry does not need re-entry.
func (c *RedirectController) LastRequest() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Request{}, false
	}
	return *c.last, true
}

func (c *RedirectController) Start(ctx context.Context, req Request) (*Step, error) {
	return c.Initiate(ctx, req)
}

// Initiate validates locally, creates the transaction, saves the session and only then
// navigates away. After a successful call the controller is spent.
func (c *RedirectController) Initiate(ctx context.Context, req Request) (*Step, error) {
	log := logger.Or(ctx, c.deps.Logger)

	c.mu.Lock()
	switch c.state {
	case StatePendingRedirect:
		c.mu.Unlock()
		return nil, errors.ErrFlowCompleted
	case StateCreating:
		c.mu.Unlock()
		return nil, errors.ErrSubmitInProgress
	}
	kept := req
	c.last = &kept
	if vErr := validateRequest(c.deps.Capabilities, c.deps.Providers, session.IntegrationRedirect, req, c.opts.MinAmount); vErr != nil {
		c.mu.Unlock()
		log.Debug("redirect payment rejected locally", "method", req.Method, "error", vErr)
		return nil, vErr
	}
	c.state = StateCreating
	c.mu.Unlock()

	resp, err := c.deps.Gateway.CreatePayment(ctx, paymentgatewaytypes.CreatePaymentRequest{
		Method:          string(req.Method),
		IntegrationType: string(session.IntegrationRedirect),
		Amount:          req.Amount,
		BankCode:        req.BankCode,
	})
	if err != nil {
		return nil, c.fail(ctx, req, asCreateError(err))
	}

	if resp.Status != paymentgatewaytypes.CreateStatusRedirect || resp.PaymentURL == "" || resp.ReferenceID == "" {
		log.Error("unexpected create payment response",
			"status", resp.Status,
			"has_payment_url", resp.PaymentURL != "",
			"reference_id", resp.ReferenceID)
		return nil, c.fail(ctx, req, errors.NewUnexpectedResponseError("unexpected response from the payment service"))
	}
	if err := navigation.ValidateTarget(resp.PaymentURL); err != nil {
		return nil, c.fail(ctx, req, errors.NewUnexpectedResponseError("payment service returned an invalid payment URL").WithCause(err))
	}

	s := session.Session{
		ReferenceID:     resp.ReferenceID,
		Amount:          req.Amount,
		Method:          req.Method,
		IntegrationType: session.IntegrationRedirect,
		CreatedAt:       c.opts.Now(),
	}
	if err := c.deps.Store.Save(ctx, s); err != nil {
		log.Error("failed to save payment session", "reference_id", s.ReferenceID, "error", err)
		appErr := errors.NewInternalError("could not remember this payment, nothing was charged", err)
		appErr.Code = errors.ErrCodeSessionStore
		return nil, c.fail(ctx, req, appErr)
	}
	publish(ctx, c.deps.Publisher, log, events.NewSessionSavedEvent(
		errors.ProfileIDFromContext(ctx), s.ReferenceID, string(s.Method), string(s.IntegrationType), s.Amount))

	c.mu.Lock()
	c.state = StatePendingRedirect
	c.mu.Unlock()

	step := &Step{State: StatePendingRedirect, ReferenceID: s.ReferenceID, PaymentURL: resp.PaymentURL}

	log.Info("leaving for hosted payment page",
		"reference_id", s.ReferenceID,
		"method", s.Method,
		"amount", s.Amount)
	if err := c.navigator.Navigate(ctx, resp.PaymentURL); err != nil {
		log.Warn("navigation to payment page failed", "reference_id", s.ReferenceID, "error", err)
		step.Notice = "Open the payment page manually: " + resp.PaymentURL
	}
	return step, nil
}

// Reset is the explicit start over: the slot is cleared and the controller reusable.
func (c *RedirectController) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateCreating {
		c.mu.Unlock()
		return errors.ErrSubmitInProgress
	}
	if err := c.deps.Store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return errors.NewInternalError("could not clear the pending payment", err)
	}
	c.state = StateIdle
	c.mu.Unlock()

	publish(ctx, c.deps.Publisher, c.deps.Logger, events.NewSessionClearedEvent(errors.ProfileIDFromContext(ctx), "reset"))
	return nil
}

func (c *RedirectController) fail(ctx context.Context, req Request, appErr *errors.AppError) *errors.AppError {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	logger.Or(ctx, c.deps.Logger).Warn("redirect payment creation failed",
		"method", req.Method,
		"amount", req.Amount,
		"error_type", appErr.Type,
		"error", appErr)
	publish(ctx, c.deps.Publisher, c.deps.Logger, events.NewInitiationFailedEvent(
		string(req.Method), string(session.IntegrationRedirect), string(appErr.Type)))
	return appErr
}
