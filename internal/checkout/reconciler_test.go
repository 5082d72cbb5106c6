package checkout_test

import (
	"context"
	stderrors "errors"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/session"
)

var _ = Describe("Reconciler", func() {
	var (
		ctx        context.Context
		store      *memoryStore
		publisher  *capturingPublisher
		now        time.Time
		reconciler *checkout.Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &memoryStore{}
		publisher = &capturingPublisher{}
		now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		reconciler = checkout.NewReconciler(store, publisher, 30*time.Minute, quietLogger,
			checkout.WithReconcilerClock(func() time.Time { return now }))
	})

	saveSession := func(s session.Session) {
		Expect(store.Save(ctx, s)).To(Succeed())
	}

	It("reconciles a successful vnpay return and clears the slot", func() {
		saveSession(session.Session{ReferenceID: "ORD-1", Amount: 100000, Method: session.MethodVNPay, IntegrationType: session.IntegrationRedirect, CreatedAt: now.Add(-5 * time.Minute)})

		outcome := reconciler.Reconcile(ctx, checkout.RouteVNPayReturn, url.Values{
			"vnp_ResponseCode":  {"00"},
			"vnp_TxnRef":        {"ORD-1"},
			"vnp_Amount":        {"10000000"},
			"vnp_TransactionNo": {"14012345"},
		})

		Expect(outcome.Status).To(Equal(checkout.StatusSuccess))
		Expect(outcome.Message).To(Equal(checkout.MessageFor(checkout.StatusSuccess)))
		Expect(outcome.ReferenceID).To(Equal("ORD-1"))
		Expect(outcome.TransactionID).To(Equal("14012345"))
		Expect(outcome.Amount).To(Equal(int64(100000)))
		Expect(outcome.Method).To(Equal(session.MethodVNPay))
		Expect(outcome.Route).To(Equal(checkout.RouteVNPayReturn))
		Expect(outcome.ReconciledAt).To(Equal(now))
		Expect(outcome.StaleSession).To(BeFalse())
		Expect(store.current()).To(BeNil())
		Expect(publisher.types()).To(Equal([]string{events.EventTypeOutcomeReconciled}))
	})

	It("reports a stripe cancellation and still clears the slot", func() {
		saveSession(session.Session{ReferenceID: "ORD-2", Amount: 100000, Method: session.MethodStripe, IntegrationType: session.IntegrationRedirect, CreatedAt: now})

		outcome := reconciler.Reconcile(ctx, checkout.RouteStripeCancel, url.Values{})

		Expect(outcome.Status).To(Equal(checkout.StatusCancelled))
		Expect(outcome.ReferenceID).To(Equal("ORD-2"))
		Expect(outcome.Actions()).To(ContainElement(checkout.ActionRetry))
		Expect(store.current()).To(BeNil())
	})

	It("fills missing fields from the stored session", func() {
		saveSession(session.Session{ReferenceID: "ORD-3", Amount: 250000, Method: session.MethodStripe, IntegrationType: session.IntegrationRedirect, CreatedAt: now})

		outcome := reconciler.Reconcile(ctx, checkout.RouteGenericResult, url.Values{"status": {"paid"}})

		Expect(outcome.Status).To(Equal(checkout.StatusSuccess))
		Expect(outcome.ReferenceID).To(Equal("ORD-3"))
		Expect(outcome.Amount).To(Equal(int64(250000)))
		Expect(outcome.Method).To(Equal(session.MethodStripe))
	})

	It("prefers the signal's reference when it differs from the session", func() {
		saveSession(session.Session{ReferenceID: "ORD-OLD", Amount: 100000, Method: session.MethodVNPay, IntegrationType: session.IntegrationRedirect, CreatedAt: now})

		outcome := reconciler.Reconcile(ctx, checkout.RouteVNPayReturn, url.Values{"vnp_ResponseCode": {"00"}, "vnp_TxnRef": {"ORD-NEW"}})

		Expect(outcome.Status).To(Equal(checkout.StatusSuccess))
		Expect(outcome.ReferenceID).To(Equal("ORD-NEW"))
	})

	It("flags an expired session as stale", func() {
		saveSession(session.Session{ReferenceID: "ORD-4", Amount: 100000, Method: session.MethodVNPay, IntegrationType: session.IntegrationRedirect, CreatedAt: now.Add(-31 * time.Minute)})

		outcome := reconciler.Reconcile(ctx, checkout.RouteVNPayReturn, url.Values{"vnp_ResponseCode": {"24"}})

		Expect(outcome.Status).To(Equal(checkout.StatusFailed))
		Expect(outcome.StaleSession).To(BeTrue())
		Expect(store.current()).To(BeNil())
	})

	It("is unknown when there is neither a signal nor a session", func() {
		outcome := reconciler.Reconcile(ctx, checkout.RouteGenericResult, url.Values{})

		Expect(outcome.Status).To(Equal(checkout.StatusUnknown))
		Expect(outcome.Actions()).To(ConsistOf(checkout.ActionRetry, checkout.ActionDashboard))
	})

	It("gives the same status when the same return is reconciled twice", func() {
		saveSession(session.Session{ReferenceID: "ORD-5", Amount: 100000, Method: session.MethodVNPay, IntegrationType: session.IntegrationRedirect, CreatedAt: now})
		params := url.Values{"vnp_ResponseCode": {"00"}, "vnp_TxnRef": {"ORD-5"}}

		first := reconciler.Reconcile(ctx, checkout.RouteVNPayReturn, params)
		second := reconciler.Reconcile(ctx, checkout.RouteVNPayReturn, params)

		Expect(second.Status).To(Equal(first.Status))
		Expect(second.ReferenceID).To(Equal("ORD-5"))
		Expect(store.clears).To(Equal(2))
		Expect(store.current()).To(BeNil())
	})

	It("falls back to signals when the store cannot be read", func() {
		store.loadErr = stderrors.New("disk unplugged")

		outcome := reconciler.Reconcile(ctx, checkout.RouteStripeSuccess, url.Values{"session_id": {"cs_1"}})

		Expect(outcome.Status).To(Equal(checkout.StatusSuccess))
		Expect(outcome.TransactionID).To(Equal("cs_1"))
		Expect(store.clears).To(Equal(1))
	})

	It("still returns an outcome when clearing fails", func() {
		store.clearErr = stderrors.New("read-only")

		outcome := reconciler.Reconcile(ctx, checkout.RouteStripeCancel, url.Values{})

		Expect(outcome.Status).To(Equal(checkout.StatusCancelled))
	})

	It("reads unknown routes with the generic keys", func() {
		outcome := reconciler.Reconcile(ctx, "/payment/momo/return", url.Values{"status": {"00"}, "txnRef": {"ORD-6"}})

		Expect(outcome.Status).To(Equal(checkout.StatusSuccess))
		Expect(outcome.Route).To(Equal("/payment/momo/return"))
		Expect(outcome.ReferenceID).To(Equal("ORD-6"))
	})
})
