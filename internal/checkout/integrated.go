package checkout

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/navigation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/settlement"
	"github.com/frahmantamala/vip-checkout/internal/tokenizer"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
)

// SettlementStatus separates what the card processor said from what the backend confirmed.
type SettlementStatus string

const (
	SettlementNone                   SettlementStatus = "None"
	SettlementProvisionallySucceeded SettlementStatus = "ProvisionallySucceeded"
	SettlementSettled                SettlementStatus = "Settled"
	SettlementFailed                 SettlementStatus = "SettlementFailed"
)

// PendingPaymentNotice is shown when an unexpired in-page payment is found at checkout start.
const PendingPaymentNotice = "You have a pending payment."

type CardConfirmer interface {
	ConfirmCardPayment(ctx context.Context, clientSecret, publicKey string, card tokenizer.CardDetails) (*tokenizer.PaymentIntent, error)
	HandleCardAction(ctx context.Context, clientSecret, publicKey string, intent *tokenizer.PaymentIntent) (*tokenizer.PaymentIntent, error)
}

type SettlementQueue interface {
	Submit(job settlement.Job) error
}

// CardStep is the card form bound to one created intent. The client secret stays inside the
// controller.
type CardStep struct {
	ReferenceID string         `json:"referenceId"`
	Amount      int64          `json:"amount"`
	Display     string         `json:"display"`
	Method      session.Method `json:"method"`
	PublicKey   string         `json:"publicKey"`
}

type SubmitResult struct {
	PaymentIntentID string
	Outcome         Outcome
	// Redirect fires the delayed navigation to the dashboard.
	Redirect *navigation.Scheduled
}

type IntegratedConfig struct {
	CardProvider         session.Method
	DashboardURL         string
	SuccessRedirectDelay time.Duration
}

type IntegratedController struct {
	deps       Dependencies
	opts       Options
	config     IntegratedConfig
	card       CardConfirmer
	settlement SettlementQueue
	reconciler *Reconciler
	navigator  navigation.Navigator

	mu           sync.Mutex
	state        FlowState
	settled      SettlementStatus
	clientSecret string
	publicKey    string
	current      *CardStep
	scheduled    *navigation.Scheduled
}

func NewIntegratedController(
	deps Dependencies,
	card CardConfirmer,
	queue SettlementQueue,
	reconciler *Reconciler,
	navigator navigation.Navigator,
	config IntegratedConfig,
	opts Options,
) *IntegratedController {
	if config.CardProvider == "" {
		config.CardProvider = session.MethodStripe
	}
	if config.SuccessRedirectDelay <= 0 {
		config.SuccessRedirectDelay = 3 * time.Second
	}
	return &IntegratedController{
		deps:       deps.withDefaults(),
		opts:       opts.withDefaults(),
		config:     config,
		card:       card,
		settlement: queue,
		reconciler: reconciler,
		navigator:  navigator,
		state:      StateIdle,
		settled:    SettlementNone,
	}
}

func (c *IntegratedController) IntegrationType() session.IntegrationType {
	return session.IntegrationIntegrated
}

func (c *IntegratedController) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *IntegratedController) SettlementStatus() SettlementStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// PendingNotice reports an unexpired in-page payment left by an earlier run. Expired or
// redirect sessions are left for the Reconciler.
func (c *IntegratedController) PendingNotice(ctx context.Context) (string, bool) {
	s, err := c.deps.Store.Load(ctx)
	if err != nil {
		logger.Or(ctx, c.deps.Logger).Warn("could not check for a pending payment", "error", err)
		return "", false
	}
	if session.Resumable(s, c.opts.Now(), c.opts.SessionTTL) && s.IntegrationType == session.IntegrationIntegrated {
		return PendingPaymentNotice, true
	}
	return "", false
}

func (c *IntegratedController) Start(ctx context.Context, req Request) (*Step, error) {
	if req.Method != "" && req.Method != c.config.CardProvider {
		return nil, errors.NewValidationFieldError("method",
			fmt.Sprintf("%s does not support %s payments", c.deps.Providers.Profile(req.Method).DisplayName, session.IntegrationIntegrated),
			errors.ErrCodeUnsupportedPair)
	}
	card, err := c.Initiate(ctx, req.Amount)
	if err != nil {
		return nil, err
	}
	return &Step{State: StateAwaitingCardInput, ReferenceID: card.ReferenceID, Card: card}, nil
}

// Initiate creates a payment intent and moves to AwaitingCardInput. Calling it again while
// awaiting input replaces the intent.
func (c *IntegratedController) Initiate(ctx context.Context, amount int64) (*CardStep, error) {
	log := logger.Or(ctx, c.deps.Logger)
	req := Request{Method: c.config.CardProvider, Amount: amount}

	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return nil, errors.ErrSubmitInProgress
	}
	if c.state == StateSucceeded {
		c.mu.Unlock()
		return nil, errors.ErrFlowCompleted
	}
	if vErr := validateRequest(c.deps.Capabilities, c.deps.Providers, session.IntegrationIntegrated, req, c.opts.MinAmount); vErr != nil {
		c.mu.Unlock()
		return nil, vErr
	}
	previous := c.state
	c.state = StateCreating
	c.mu.Unlock()

	resp, err := c.deps.Gateway.CreatePayment(ctx, paymentgatewaytypes.CreatePaymentRequest{
		Method:          string(req.Method),
		IntegrationType: string(session.IntegrationIntegrated),
		Amount:          amount,
	})
	if err != nil {
		return nil, c.failCreate(ctx, req, previous, asCreateError(err))
	}
	if resp.Status != paymentgatewaytypes.CreateStatusPending || resp.ClientSecret == "" || resp.ReferenceID == "" || resp.PublicKey == "" {
		log.Error("unexpected create payment response",
			"status", resp.Status,
			"reference_id", resp.ReferenceID)
		return nil, c.failCreate(ctx, req, previous, errors.NewUnexpectedResponseError("unexpected response from the payment service"))
	}

	s := session.Session{
		ReferenceID:     resp.ReferenceID,
		Amount:          amount,
		Method:          req.Method,
		IntegrationType: session.IntegrationIntegrated,
		CreatedAt:       c.opts.Now(),
	}
	if err := c.deps.Store.Save(ctx, s); err != nil {
		appErr := errors.NewInternalError("could not remember this payment, nothing was charged", err)
		appErr.Code = errors.ErrCodeSessionStore
		return nil, c.failCreate(ctx, req, previous, appErr)
	}
	publish(ctx, c.deps.Publisher, log, events.NewSessionSavedEvent(
		errors.ProfileIDFromContext(ctx), s.ReferenceID, string(s.Method), string(s.IntegrationType), s.Amount))

	step := &CardStep{
		ReferenceID: s.ReferenceID,
		Amount:      amount,
		Display:     FormatVND(amount),
		Method:      req.Method,
		PublicKey:   resp.PublicKey,
	}

	c.mu.Lock()
	c.clientSecret = resp.ClientSecret
	c.publicKey = resp.PublicKey
	c.current = step
	c.settled = SettlementNone
	c.state = StateAwaitingCardInput
	c.mu.Unlock()

	log.Info("payment intent ready for card input", "reference_id", s.ReferenceID, "amount", amount)
	return step, nil
}

// Submit confirms the card with the processor. Card problems keep the form open and leave
// the store untouched; success reconciles in-page, queues backend settlement and schedules
// the move to the dashboard.
func (c *IntegratedController) Submit(ctx context.Context, card tokenizer.CardDetails) (*SubmitResult, error) {
	log := logger.Or(ctx, c.deps.Logger)

	c.mu.Lock()
	switch {
	case c.state.busy():
		c.mu.Unlock()
		return nil, errors.ErrSubmitInProgress
	case c.state == StateSucceeded:
		c.mu.Unlock()
		return nil, errors.ErrFlowCompleted
	case c.state != StateAwaitingCardInput:
		c.mu.Unlock()
		return nil, errors.ErrFlowNotReady
	}
	c.state = StateConfirming
	secret, publicKey, step := c.clientSecret, c.publicKey, c.current
	c.mu.Unlock()

	intent, err := c.card.ConfirmCardPayment(ctx, secret, publicKey, card)
	if err != nil {
		return nil, c.cardFailure(ctx, step, err)
	}

	if intent.Status == tokenizer.StatusRequiresAction {
		c.setState(StateRequiresExtraAuth)
		log.Info("card requires extra authentication", "reference_id", step.ReferenceID, "payment_intent_id", intent.ID)
		intent, err = c.card.HandleCardAction(ctx, secret, publicKey, intent)
		if err != nil {
			return nil, c.cardFailure(ctx, step, err)
		}
	}

	if intent.Status != tokenizer.StatusSucceeded {
		c.setState(StateFailed)
		log.Warn("card payment ended in unexpected status",
			"reference_id", step.ReferenceID,
			"payment_intent_id", intent.ID,
			"intent_status", intent.Status)
		return nil, errors.NewCardError(fmt.Sprintf("unexpected payment status: %s", intent.Status), errors.ErrCodeCardSDKFailed)
	}

	return c.settle(ctx, step, intent), nil
}

func (c *IntegratedController) settle(ctx context.Context, step *CardStep, intent *tokenizer.PaymentIntent) *SubmitResult {
	log := logger.Or(ctx, c.deps.Logger)

	c.mu.Lock()
	c.state = StateSettling
	c.settled = SettlementProvisionallySucceeded
	c.mu.Unlock()

	publish(ctx, c.deps.Publisher, log, events.NewCardConfirmedEvent(step.ReferenceID, intent.ID, step.Amount))

	job := settlement.Job{
		ReferenceID:     step.ReferenceID,
		PaymentIntentID: intent.ID,
		Done: func(err error) {
			c.recordSettlement(context.WithoutCancel(ctx), step.ReferenceID, intent.ID, err)
		},
	}
	if err := c.settlement.Submit(job); err != nil {
		log.Error("could not queue backend confirmation", "reference_id", step.ReferenceID, "payment_intent_id", intent.ID, "error", err)
		c.recordSettlement(ctx, step.ReferenceID, intent.ID, err)
	}

	outcome := c.reconciler.Reconcile(ctx, RouteCardReturn, url.Values{
		"payment_intent":  {intent.ID},
		"redirect_status": {string(tokenizer.StatusSucceeded)},
	})

	c.mu.Lock()
	c.state = StateSucceeded
	c.clientSecret = ""
	if c.config.DashboardURL != "" && c.navigator != nil {
		c.scheduled = navigation.Schedule(c.navigator, c.config.DashboardURL, c.config.SuccessRedirectDelay, c.deps.Logger)
	}
	scheduled := c.scheduled
	c.mu.Unlock()

	log.Info("card payment succeeded", "reference_id", step.ReferenceID, "payment_intent_id", intent.ID)
	return &SubmitResult{PaymentIntentID: intent.ID, Outcome: outcome, Redirect: scheduled}
}

// recordSettlement moves ProvisionallySucceeded to its final state. A failure is logged and
// published; the backend confirmation is replay-safe so it can be retried out of band.
func (c *IntegratedController) recordSettlement(ctx context.Context, referenceID, intentID string, err error) {
	c.mu.Lock()
	if err != nil {
		c.settled = SettlementFailed
	} else {
		c.settled = SettlementSettled
	}
	c.mu.Unlock()

	if err != nil {
		c.deps.Logger.Error("payment shown as successful but backend settlement failed",
			"reference_id", referenceID,
			"payment_intent_id", intentID,
			"error", err)
	}
	publish(ctx, c.deps.Publisher, c.deps.Logger, events.NewSettlementEvent(referenceID, intentID, err))
}

func (c *IntegratedController) cardFailure(ctx context.Context, step *CardStep, err error) error {
	c.setState(StateAwaitingCardInput)

	var sdkErr *tokenizer.SDKError
	if !stderrors.As(err, &sdkErr) {
		logger.Or(ctx, c.deps.Logger).Error("card confirmation failed", "reference_id", step.ReferenceID, "error", err)
		return errors.NewCardError("the card could not be confirmed, please try again", errors.ErrCodeCardSDKFailed).WithCause(err)
	}

	code := errors.ErrCodeCardSDKFailed
	switch sdkErr.Type {
	case tokenizer.ErrorTypeCard:
		code = errors.ErrCodeCardDeclined
	case tokenizer.ErrorTypeValidation:
		code = errors.ErrCodeCardInvalid
	}
	logger.Or(ctx, c.deps.Logger).Info("card rejected",
		"reference_id", step.ReferenceID,
		"sdk_error_type", sdkErr.Type,
		"sdk_error_code", sdkErr.Code)
	return errors.NewCardError(sdkErr.Message, code).WithDetails(sdkErr)
}

// Reset is "create new payment": the slot is cleared and the intent forgotten.
func (c *IntegratedController) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return errors.ErrSubmitInProgress
	}
	if err := c.deps.Store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return errors.NewInternalError("could not clear the pending payment", err)
	}
	if c.scheduled != nil {
		c.scheduled.Stop()
		c.scheduled = nil
	}
	c.clientSecret = ""
	c.publicKey = ""
	c.current = nil
	c.settled = SettlementNone
	c.state = StateIdle
	c.mu.Unlock()

	publish(ctx, c.deps.Publisher, c.deps.Logger, events.NewSessionClearedEvent(errors.ProfileIDFromContext(ctx), "reset"))
	return nil
}

func (c *IntegratedController) setState(s FlowState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *IntegratedController) failCreate(ctx context.Context, req Request, previous FlowState, appErr *errors.AppError) *errors.AppError {
	c.mu.Lock()
	if previous == StateAwaitingCardInput && c.clientSecret != "" {
		c.state = StateAwaitingCardInput
	} else {
		c.state = StateIdle
	}
	c.mu.Unlock()

	logger.Or(ctx, c.deps.Logger).Warn("integrated payment creation failed",
		"amount", req.Amount,
		"error_type", appErr.Type,
		"error", appErr)
	publish(ctx, c.deps.Publisher, c.deps.Logger, events.NewInitiationFailedEvent(
		string(req.Method), string(session.IntegrationIntegrated), string(appErr.Type)))
	return appErr
}
