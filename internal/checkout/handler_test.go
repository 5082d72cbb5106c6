package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/transport"
)

type fakeRegistry struct {
	caps *capability.Capabilities
	err  error
}

func (f *fakeRegistry) Load(ctx context.Context) (*capability.Capabilities, error) {
	return f.caps, f.err
}

var _ = Describe("Handler", func() {
	var (
		registry  *fakeRegistry
		gateway   *fakeGateway
		stores    map[string]*memoryStore
		publisher *capturingPublisher
		handler   *checkout.Handler
		router    chi.Router
	)

	storeFor := func(profile string) *memoryStore {
		if _, ok := stores[profile]; !ok {
			stores[profile] = &memoryStore{}
		}
		return stores[profile]
	}

	BeforeEach(func() {
		registry = &fakeRegistry{caps: allCapabilities()}
		gateway = &fakeGateway{resp: &paymentgatewaytypes.CreatePaymentResponse{
			Status:      paymentgatewaytypes.CreateStatusRedirect,
			PaymentURL:  vnpayURL,
			ReferenceID: "ORD-1",
		}}
		stores = map[string]*memoryStore{}
		publisher = &capturingPublisher{}
		handler = checkout.NewHandler(transport.NewBaseHandler(quietLogger), registry, gateway,
			func(profile string) session.Store { return storeFor(profile) },
			publisher,
			checkout.HandlerConfig{
				MinAmount:    10000,
				DashboardURL: "http://localhost:5173/dashboard",
				RetryURL:     "http://localhost:5173/payment",
			})

		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				profile := req.Header.Get("X-Checkout-Profile")
				if profile == "" {
					profile = "default"
				}
				next.ServeHTTP(w, req.WithContext(errors.ContextWithProfileID(req.Context(), profile)))
			})
		})
		handler.Routes(r)
		r.Get("/api/v1/checkout/options", handler.GetOptions)
		r.Post("/api/v1/checkout/redirect", handler.StartRedirect)
		r.Get("/api/v1/checkout/session", handler.GetSession)
		r.Delete("/api/v1/checkout/session", handler.ResetSession)
		router = r
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	postForm := func(values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/redirect", strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return serve(req)
	}

	Describe("GET /api/v1/checkout/options", func() {
		It("lists the methods per integration type", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/options", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp checkout.OptionsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Available).To(BeTrue())
			Expect(resp.Package.Display).To(Equal("100.000 ₫"))
			Expect(resp.MinAmount).To(Equal(int64(10000)))
			Expect(resp.Redirect).To(HaveLen(2))
			Expect(resp.Integrated).To(HaveLen(1))
			Expect(resp.Integrated[0].Method).To(Equal(session.MethodStripe))
			Expect(resp.PendingNotice).To(BeEmpty())
		})

		It("shows no options when capabilities cannot be fetched", func() {
			registry.err = errors.NewFetchError("payment options are unavailable right now", context.DeadlineExceeded)

			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/options", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp checkout.OptionsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Available).To(BeFalse())
			Expect(resp.Message).To(Equal("payment options are unavailable right now"))
			Expect(resp.Redirect).To(BeEmpty())
		})

		It("mentions a pending card payment", func() {
			Expect(storeFor("default").Save(context.Background(), session.Session{
				ReferenceID: "ORD-7", Amount: 100000, Method: session.MethodStripe,
				IntegrationType: session.IntegrationIntegrated, CreatedAt: time.Now(),
			})).To(Succeed())

			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/options", nil))

			var resp checkout.OptionsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.PendingNotice).To(Equal(checkout.PendingPaymentNotice))
		})
	})

	Describe("POST /api/v1/checkout/redirect", func() {
		It("saves the session and sends the browser to the payment page", func() {
			rec := postForm(url.Values{"method": {"vnpay"}, "amount": {"100000"}, "bankCode": {"NCB"}})

			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal(vnpayURL))
			Expect(storeFor("default").current().ReferenceID).To(Equal("ORD-1"))
		})

		It("rejects a low amount with a validation error", func() {
			rec := postForm(url.Values{"method": {"VNPAY"}, "amount": {"9000"}, "bankCode": {"NCB"}})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(errors.ErrCodeAmountTooLow)))
			Expect(rec.Body.String()).To(ContainSubstring("minimum amount is 10,000 VND"))
			Expect(gateway.calls).To(BeZero())
		})

		It("rejects a non-numeric amount", func() {
			rec := postForm(url.Values{"method": {"VNPAY"}, "amount": {"lots"}})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(gateway.calls).To(BeZero())
		})

		It("passes the backend's refusal through", func() {
			gateway.err = errors.NewGatewayCreateError("bank is under maintenance", errors.ErrCodeGatewayRejected)

			rec := postForm(url.Values{"method": {"VNPAY"}, "amount": {"100000"}, "bankCode": {"NCB"}})

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(ContainSubstring("bank is under maintenance"))
			Expect(storeFor("default").current()).To(BeNil())
		})

		It("accepts an explicit redirect integration type", func() {
			rec := postForm(url.Values{"method": {"VNPAY"}, "amount": {"100000"}, "bankCode": {"NCB"}, "integrationType": {"redirect"}})

			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(gateway.calls).To(Equal(1))
		})

		It("refuses to start a card payment over HTTP", func() {
			rec := postForm(url.Values{"method": {"STRIPE"}, "amount": {"100000"}, "integrationType": {"INTEGRATED"}})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(string(errors.ErrCodeUnsupportedPair)))
			Expect(gateway.calls).To(BeZero())
			Expect(storeFor("default").current()).To(BeNil())
		})

		It("is unavailable when capabilities cannot be fetched", func() {
			registry.err = errors.NewFetchError("payment options are unavailable right now", context.DeadlineExceeded)

			rec := postForm(url.Values{"method": {"VNPAY"}, "amount": {"100000"}, "bankCode": {"NCB"}})

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(gateway.calls).To(BeZero())
		})
	})

	Describe("return routes", func() {
		It("reconciles a vnpay return for the caller's profile", func() {
			Expect(storeFor("bob").Save(context.Background(), session.Session{
				ReferenceID: "ORD-1", Amount: 100000, Method: session.MethodVNPay,
				IntegrationType: session.IntegrationRedirect, CreatedAt: time.Now(),
			})).To(Succeed())

			req := httptest.NewRequest(http.MethodGet, "/payment/vnpay/return?vnp_ResponseCode=00&vnp_TxnRef=ORD-1&vnp_Amount=10000000", nil)
			req.Header.Set("X-Checkout-Profile", "bob")
			rec := serve(req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp checkout.OutcomeResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome.Status).To(Equal(checkout.StatusSuccess))
			Expect(resp.FormattedAmount).To(Equal("100.000 ₫"))
			Expect(resp.Actions).To(Equal([]checkout.ActionLink{{Action: checkout.ActionDashboard, URL: "http://localhost:5173/dashboard"}}))
			Expect(storeFor("bob").current()).To(BeNil())
		})

		It("offers a retry after a stripe cancel", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/payment/stripe/cancel", nil))

			var resp checkout.OutcomeResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome.Status).To(Equal(checkout.StatusCancelled))
			Expect(resp.Actions).To(ContainElement(checkout.ActionLink{Action: checkout.ActionRetry, URL: "http://localhost:5173/payment"}))
		})

		It("notes a stale session", func() {
			Expect(storeFor("default").Save(context.Background(), session.Session{
				ReferenceID: "ORD-1", Amount: 100000, Method: session.MethodVNPay,
				IntegrationType: session.IntegrationRedirect, CreatedAt: time.Now().Add(-2 * time.Hour),
			})).To(Succeed())

			rec := serve(httptest.NewRequest(http.MethodGet, "/payment/result", nil))

			var resp checkout.OutcomeResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome.Status).To(Equal(checkout.StatusFailed))
			Expect(resp.Notice).To(Equal(checkout.StaleSessionNotice))
		})
	})

	Describe("session endpoints", func() {
		It("reports nothing pending by default", func() {
			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/session", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp checkout.SessionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Session).To(BeNil())
			Expect(resp.Resumable).To(BeFalse())
		})

		It("reports and clears the pending session", func() {
			Expect(storeFor("default").Save(context.Background(), session.Session{
				ReferenceID: "ORD-1", Amount: 100000, Method: session.MethodVNPay,
				IntegrationType: session.IntegrationRedirect, CreatedAt: time.Now(),
			})).To(Succeed())

			rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/session", nil))
			var resp checkout.SessionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Session.ReferenceID).To(Equal("ORD-1"))
			Expect(resp.Resumable).To(BeTrue())

			rec = serve(httptest.NewRequest(http.MethodDelete, "/api/v1/checkout/session", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(storeFor("default").current()).To(BeNil())
		})
	})
})
