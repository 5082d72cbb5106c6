package checkout

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/navigation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/transport"
	"github.com/go-chi/chi"
)

type CapabilityLoader interface {
	Load(ctx context.Context) (*capability.Capabilities, error)
}

// StoreFactory opens the session slot of one checkout profile.
type StoreFactory func(profileID string) session.Store

type HandlerConfig struct {
	MinAmount    int64
	SessionTTL   time.Duration
	DashboardURL string
	RetryURL     string
	Providers    Providers
}

type Handler struct {
	*transport.BaseHandler
	registry  CapabilityLoader
	gateway   PaymentCreator
	stores    StoreFactory
	publisher EventPublisher
	config    HandlerConfig
	now       func() time.Time
}

func NewHandler(base *transport.BaseHandler, registry CapabilityLoader, gateway PaymentCreator, stores StoreFactory, publisher EventPublisher, config HandlerConfig) *Handler {
	if config.Providers == nil {
		config.Providers = DefaultProviders
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = session.DefaultTTL
	}
	return &Handler{
		BaseHandler: base,
		registry:    registry,
		gateway:     gateway,
		stores:      stores,
		publisher:   publisher,
		config:      config,
		now:         time.Now,
	}
}

// Routes mounts the browser-facing return points; ReturnRoutes lists them.
func (h *Handler) Routes(r chi.Router) {
	for _, route := range ReturnRoutes() {
		r.Get(route, h.HandleReturn(route))
	}
}

func ReturnRoutes() []string {
	return []string{RouteGenericResult, RouteVNPayReturn, RouteStripeSuccess, RouteStripeCancel, RouteCardReturn}
}

func (h *Handler) store(ctx context.Context) session.Store {
	return h.stores(errors.ProfileIDFromContext(ctx))
}

type BankOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type MethodOption struct {
	Method       session.Method `json:"method"`
	DisplayName  string         `json:"displayName"`
	RequiresBank bool           `json:"requiresBank"`
	Banks        []BankOption   `json:"banks,omitempty"`
}

type PackageInfo struct {
	Name    string `json:"name"`
	Amount  int64  `json:"amount"`
	Display string `json:"display"`
}

type OptionsResponse struct {
	Available     bool           `json:"available"`
	Message       string         `json:"message,omitempty"`
	Package       PackageInfo    `json:"package"`
	MinAmount     int64          `json:"minAmount"`
	Redirect      []MethodOption `json:"redirect"`
	Integrated    []MethodOption `json:"integrated"`
	PendingNotice string         `json:"pendingNotice,omitempty"`
}

// GetOptions answers which checkout choices are legal right now. A capability failure is not
// an HTTP error: the page shows that no options are available.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	resp := OptionsResponse{
		Package:    PackageInfo{Name: VIPPackage.Name, Amount: VIPPackage.Amount, Display: FormatVND(VIPPackage.Amount)},
		MinAmount:  h.config.MinAmount,
		Redirect:   []MethodOption{},
		Integrated: []MethodOption{},
	}

	caps, err := h.registry.Load(r.Context())
	if err != nil {
		appErr, _ := errors.IsAppError(err)
		resp.Message = "No payment options are available right now."
		if appErr != nil {
			resp.Message = appErr.GetDetailedMessage()
		}
		h.WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp.Redirect = h.methodOptions(caps.MethodsFor(session.IntegrationRedirect))
	resp.Integrated = h.methodOptions(caps.MethodsFor(session.IntegrationIntegrated))
	resp.Available = !caps.Empty()

	if s, err := h.store(r.Context()).Load(r.Context()); err == nil &&
		session.Resumable(s, h.now(), h.config.SessionTTL) && s.IntegrationType == session.IntegrationIntegrated {
		resp.PendingNotice = PendingPaymentNotice
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) methodOptions(methods []session.Method) []MethodOption {
	out := make([]MethodOption, 0, len(methods))
	for _, m := range methods {
		p := h.config.Providers.Profile(m)
		opt := MethodOption{Method: m, DisplayName: p.DisplayName, RequiresBank: p.RequiresBank}
		for _, b := range p.Banks {
			opt.Banks = append(opt.Banks, BankOption{Code: b.Code, Name: b.Name})
		}
		out = append(out, opt)
	}
	return out
}

// StartRedirect runs the redirect flow for a form post and answers with a 303 to the hosted
// payment page once the session is saved.
func (h *Handler) StartRedirect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.WriteAppError(w, r, errors.NewValidationError("invalid form body", errors.ErrCodeValidationFailed))
		return
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get("amount")), 10, 64)
	if err != nil {
		h.WriteAppError(w, r, errors.NewValidationFieldError("amount", "amount must be a whole number", errors.ErrCodeInvalidAmount))
		return
	}

	caps, err := h.registry.Load(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	integration := session.IntegrationRedirect
	if v := strings.ToUpper(strings.TrimSpace(r.PostForm.Get("integrationType"))); v != "" {
		integration = session.IntegrationType(v)
	}

	// card details are never collected over HTTP, so only the redirect flow is served here
	flows := NewDispatcher(NewRedirectController(Dependencies{
		Gateway:      h.gateway,
		Store:        h.store(r.Context()),
		Capabilities: caps,
		Providers:    h.config.Providers,
		Publisher:    h.publisher,
		Logger:       h.Logger,
	}, navigation.NewResponseNavigator(w, r), Options{MinAmount: h.config.MinAmount, SessionTTL: h.config.SessionTTL}))

	_, err = flows.Start(r.Context(), integration, Request{
		Method:   session.Method(strings.ToUpper(strings.TrimSpace(r.PostForm.Get("method")))),
		Amount:   amount,
		BankCode: strings.TrimSpace(r.PostForm.Get("bankCode")),
	})
	if err != nil {
		h.WriteAppError(w, r, err)
	}
}

type ActionLink struct {
	Action Action `json:"action"`
	URL    string `json:"url"`
}

type OutcomeResponse struct {
	Outcome         Outcome      `json:"outcome"`
	FormattedAmount string       `json:"formattedAmount,omitempty"`
	Notice          string       `json:"notice,omitempty"`
	Actions         []ActionLink `json:"actions"`
}

// HandleReturn reconciles a provider return. It always answers 200: the outcome itself says
// whether the payment went through.
func (h *Handler) HandleReturn(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reconciler := NewReconciler(h.store(r.Context()), h.publisher, h.config.SessionTTL, h.Logger)
		outcome := reconciler.Reconcile(r.Context(), route, r.URL.Query())
		h.WriteJSON(w, http.StatusOK, h.outcomeResponse(outcome))
	}
}

func (h *Handler) outcomeResponse(o Outcome) OutcomeResponse {
	resp := OutcomeResponse{Outcome: o, FormattedAmount: o.FormattedAmount()}
	if o.StaleSession {
		resp.Notice = StaleSessionNotice
	}
	for _, a := range o.Actions() {
		link := ActionLink{Action: a, URL: h.config.DashboardURL}
		if a == ActionRetry {
			link.URL = h.config.RetryURL
		}
		resp.Actions = append(resp.Actions, link)
	}
	return resp
}

type SessionResponse struct {
	Session   *session.Session `json:"session"`
	Expired   bool             `json:"expired"`
	Resumable bool             `json:"resumable"`
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.store(r.Context()).Load(r.Context())
	if err != nil {
		h.WriteAppError(w, r, errors.NewInternalError("could not read the pending payment", err))
		return
	}
	resp := SessionResponse{Session: s}
	if s != nil {
		resp.Expired = s.IsExpired(h.now(), h.config.SessionTTL)
		resp.Resumable = !resp.Expired
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// ResetSession is the explicit "start over".
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store(r.Context()).Clear(r.Context()); err != nil {
		h.WriteAppError(w, r, errors.NewInternalError("could not clear the pending payment", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
