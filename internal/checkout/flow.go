package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/core/common/validation"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/session"
)

type FlowState string

const (
	StateIdle              FlowState = "Idle"
	StateCreating          FlowState = "Creating"
	StatePendingRedirect   FlowState = "PendingRedirect"
	StateAwaitingCardInput FlowState = "AwaitingCardInput"
	StateConfirming        FlowState = "Confirming"
	StateRequiresExtraAuth FlowState = "RequiresExtraAuth"
	StateSettling          FlowState = "Settling"
	StateSucceeded         FlowState = "Succeeded"
	StateFailed            FlowState = "Failed"
)

// busy states have an external call outstanding.
func (s FlowState) busy() bool {
	switch s {
	case StateCreating, StateConfirming, StateRequiresExtraAuth, StateSettling:
		return true
	}
	return false
}

// PaymentCreator is the transaction-creating half of the backend payment service.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, req paymentgatewaytypes.CreatePaymentRequest) (*paymentgatewaytypes.CreatePaymentResponse, error)
}

type Request struct {
	Method   session.Method
	Amount   int64
	BankCode string
}

// Step is what a flow hands back after it started: either a page to leave for or a card form.
type Step struct {
	State       FlowState
	ReferenceID string
	PaymentURL  string
	Card        *CardStep
	Notice      string
}

// Flow is one integration type's protocol. Provider differences stay in ProviderProfile data.
type Flow interface {
	IntegrationType() session.IntegrationType
	State() FlowState
	Start(ctx context.Context, req Request) (*Step, error)
	Reset(ctx context.Context) error
}

// Dispatcher routes a checkout choice to the flow for its integration type.
type Dispatcher struct {
	flows map[session.IntegrationType]Flow
}

func NewDispatcher(flows ...Flow) *Dispatcher {
	d := &Dispatcher{flows: make(map[session.IntegrationType]Flow, len(flows))}
	for _, f := range flows {
		d.flows[f.IntegrationType()] = f
	}
	return d
}

func (d *Dispatcher) Flow(integration session.IntegrationType) (Flow, bool) {
	f, ok := d.flows[integration]
	return f, ok
}

func (d *Dispatcher) Start(ctx context.Context, integration session.IntegrationType, req Request) (*Step, error) {
	f, ok := d.flows[integration]
	if !ok {
		return nil, errors.NewValidationError(
			fmt.Sprintf("integration type %q is not available", integration), errors.ErrCodeUnsupportedPair)
	}
	return f.Start(ctx, req)
}

// Dependencies are shared by both controllers.
type Dependencies struct {
	Gateway      PaymentCreator
	Store        session.Store
	Capabilities *capability.Capabilities
	Providers    Providers
	Publisher    EventPublisher
	Logger       *slog.Logger
}

type Options struct {
	MinAmount  int64
	SessionTTL time.Duration
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MinAmount <= 0 {
		o.MinAmount = 10000
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = session.DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Providers == nil {
		d.Providers = DefaultProviders
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// validateRequest runs every local check that must pass before the backend is contacted.
func validateRequest(caps *capability.Capabilities, providers Providers, integration session.IntegrationType, req Request, minAmount int64) *errors.AppError {
	profile := providers.Profile(req.Method)

	v := validation.NewValidator()
	v.Field("amount", req.Amount).
		RequiredWithCode("amount is required", errors.ErrCodeInvalidAmount).
		MinInt(minAmount, errors.ErrCodeAmountTooLow)
	v.Field("method", string(req.Method)).
		RequiredWithCode("please choose a payment method", errors.ErrCodeUnsupportedMethod).
		Custom(func(interface{}) *errors.AppError {
			if caps.Supports(req.Method, integration) {
				return nil
			}
			return errors.NewValidationFieldError("method",
				fmt.Sprintf("%s does not support %s payments", profile.DisplayName, integration),
				errors.ErrCodeUnsupportedPair)
		})
	if profile.RequiresBank {
		v.Field("bankCode", req.BankCode).
			RequiredWithCode("please select a bank", errors.ErrCodeBankRequired).
			OneOf(profile.BankCodes(), errors.ErrCodeBankRequired)
	}
	return v.Validate()
}

func publish(ctx context.Context, publisher EventPublisher, log *slog.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// asCreateError keeps AppErrors from the gateway and wraps anything else.
func asCreateError(err error) *errors.AppError {
	if appErr, ok := errors.IsAppError(err); ok {
		return appErr
	}
	return errors.NewGatewayCreateError("payment creation failed", errors.ErrCodeGatewayUnavailable).WithCause(err)
}
