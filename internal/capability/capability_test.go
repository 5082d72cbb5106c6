package capability_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/session"
)

type fakeSource struct {
	methods         []string
	integrations    paymentgatewaytypes.SupportedIntegrations
	methodsErr      error
	integrationsErr error
	calls           int
}

func (f *fakeSource) SupportedMethods(ctx context.Context) ([]string, error) {
	f.calls++
	return f.methods, f.methodsErr
}

func (f *fakeSource) SupportedIntegrations(ctx context.Context) (paymentgatewaytypes.SupportedIntegrations, error) {
	f.calls++
	return f.integrations, f.integrationsErr
}

var _ = Describe("Capability Registry", func() {
	var (
		source   *fakeSource
		registry *capability.Registry
	)

	BeforeEach(func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		source = &fakeSource{
			methods: []string{"VNPAY", "STRIPE"},
			integrations: paymentgatewaytypes.SupportedIntegrations{
				"VNPAY":  {"REDIRECT"},
				"STRIPE": {"REDIRECT", "INTEGRATED", "POPUP"},
			},
		}
		registry = capability.NewRegistry(source, slogger)
	})

	It("builds a snapshot from both lookups", func() {
		caps, err := registry.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(source.calls).To(Equal(2))

		Expect(caps.Methods()).To(Equal([]session.Method{session.MethodVNPay, session.MethodStripe}))
		Expect(caps.Supports(session.MethodVNPay, session.IntegrationRedirect)).To(BeTrue())
		Expect(caps.Supports(session.MethodVNPay, session.IntegrationIntegrated)).To(BeFalse())
		Expect(caps.MethodsFor(session.IntegrationIntegrated)).To(Equal([]session.Method{session.MethodStripe}))
		Expect(caps.MethodsFor(session.IntegrationRedirect)).To(HaveLen(2))
		Expect(caps.Empty()).To(BeFalse())
	})

	It("drops unknown integration types", func() {
		caps, err := registry.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(caps.IntegrationsOf(session.MethodStripe)).To(ConsistOf(session.IntegrationRedirect, session.IntegrationIntegrated))
	})

	It("ignores integrations of unlisted providers", func() {
		source.integrations["MOMO"] = []string{"REDIRECT"}
		caps, err := registry.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(caps.Supports("MOMO", session.IntegrationRedirect)).To(BeFalse())
	})

	It("fails with a fetch error when methods cannot be loaded", func() {
		source.methodsErr = errors.New("status 500")
		caps, err := registry.Load(context.Background())
		Expect(caps).To(BeNil())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeFetch)).To(BeTrue())
		Expect(source.calls).To(Equal(1))
	})

	It("fails with a fetch error when integrations cannot be loaded", func() {
		source.integrationsErr = errors.New("connection refused")
		_, err := registry.Load(context.Background())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeFetch)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	It("treats a nil snapshot as supporting nothing", func() {
		var caps *capability.Capabilities
		Expect(caps.Supports(session.MethodStripe, session.IntegrationIntegrated)).To(BeFalse())
		Expect(caps.Empty()).To(BeTrue())
	})
})
