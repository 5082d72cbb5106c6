package capability

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/vip-checkout/internal"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/session"
)

type Source interface {
	SupportedMethods(ctx context.Context) ([]string, error)
	SupportedIntegrations(ctx context.Context) (paymentgatewaytypes.SupportedIntegrations, error)
}

// Capabilities is a read-only snapshot of which providers exist and how each can be integrated.
type Capabilities struct {
	methods      []session.Method
	integrations map[session.Method][]session.IntegrationType
}

func New(methods []string, integrations map[string][]string) *Capabilities {
	c := &Capabilities{integrations: make(map[session.Method][]session.IntegrationType)}
	for _, m := range methods {
		method := session.Method(m)
		c.methods = append(c.methods, method)
		for _, t := range integrations[m] {
			if it := session.IntegrationType(t); it.Valid() {
				c.integrations[method] = append(c.integrations[method], it)
			}
		}
	}
	return c
}

// Methods returns providers in the order the backend listed them.
func (c *Capabilities) Methods() []session.Method {
	return append([]session.Method(nil), c.methods...)
}

func (c *Capabilities) IntegrationsOf(method session.Method) []session.IntegrationType {
	return append([]session.IntegrationType(nil), c.integrations[method]...)
}

// Supports reports whether method is listed and accepts the integration type.
func (c *Capabilities) Supports(method session.Method, integration session.IntegrationType) bool {
	if c == nil {
		return false
	}
	for _, t := range c.integrations[method] {
		if t == integration {
			return true
		}
	}
	return false
}

func (c *Capabilities) MethodsFor(integration session.IntegrationType) []session.Method {
	var out []session.Method
	for _, m := range c.methods {
		if c.Supports(m, integration) {
			out = append(out, m)
		}
	}
	return out
}

func (c *Capabilities) Empty() bool {
	return c == nil || len(c.MethodsFor(session.IntegrationRedirect))+len(c.MethodsFor(session.IntegrationIntegrated)) == 0
}

type Registry struct {
	source Source
	logger *slog.Logger
}

func NewRegistry(source Source, logger *slog.Logger) *Registry {
	return &Registry{source: source, logger: logger}
}

// Load fetches both lookups once. Either failing yields FETCH_ERROR; there are no retries.
func (r *Registry) Load(ctx context.Context) (*Capabilities, error) {
	methods, err := r.source.SupportedMethods(ctx)
	if err != nil {
		r.logger.Error("failed to load supported methods", "error", err)
		return nil, errors.NewFetchError("payment options are unavailable right now", err)
	}

	integrations, err := r.source.SupportedIntegrations(ctx)
	if err != nil {
		r.logger.Error("failed to load supported integrations", "error", err)
		return nil, errors.NewFetchError("payment options are unavailable right now", err)
	}

	caps := New(methods, integrations)
	r.logger.Debug("capabilities loaded",
		"methods", len(caps.methods),
		"redirect_methods", len(caps.MethodsFor(session.IntegrationRedirect)),
		"integrated_methods", len(caps.MethodsFor(session.IntegrationIntegrated)))
	return caps, nil
}
