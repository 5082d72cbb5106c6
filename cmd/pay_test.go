package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/manifoldco/promptui"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/settlement"
	"github.com/frahmantamala/vip-checkout/internal/tokenizer"
)

// sequenceGateway fails the first len(errs) creations, then answers resp.
type sequenceGateway struct {
	errs     []error
	resp     paymentgatewaytypes.CreatePaymentResponse
	requests []paymentgatewaytypes.CreatePaymentRequest
}

func (g *sequenceGateway) CreatePayment(ctx context.Context, req paymentgatewaytypes.CreatePaymentRequest) (*paymentgatewaytypes.CreatePaymentResponse, error) {
	g.requests = append(g.requests, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	resp := g.resp
	return &resp, nil
}

type slotStore struct {
	mu   sync.Mutex
	slot *session.Session
}

func (s *slotStore) Save(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = &sess
	return nil
}

func (s *slotStore) Load(ctx context.Context) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return nil, nil
	}
	copied := *s.slot
	return &copied, nil
}

func (s *slotStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = nil
	return nil
}

type succeedingCard struct {
	confirmed int
}

func (c *succeedingCard) ConfirmCardPayment(ctx context.Context, clientSecret, publicKey string, card tokenizer.CardDetails) (*tokenizer.PaymentIntent, error) {
	c.confirmed++
	return &tokenizer.PaymentIntent{ID: "pi_1", Status: tokenizer.StatusSucceeded}, nil
}

func (c *succeedingCard) HandleCardAction(ctx context.Context, clientSecret, publicKey string, intent *tokenizer.PaymentIntent) (*tokenizer.PaymentIntent, error) {
	return intent, nil
}

type droppingQueue struct{}

func (droppingQueue) Submit(job settlement.Job) error {
	if job.Done != nil {
		job.Done(nil)
	}
	return nil
}

type silentPublisher struct{}

func (silentPublisher) Publish(ctx context.Context, e events.Event) error { return nil }

type stayingNavigator struct{}

func (stayingNavigator) Navigate(ctx context.Context, target string) error { return nil }

// scriptedPrompter answers from queues and records every label it was shown.
type scriptedPrompter struct {
	selections []int
	inputs     []string
	labels     []string
}

func (s *scriptedPrompter) Select(label string, items []string) (int, error) {
	s.labels = append(s.labels, label)
	if len(s.selections) == 0 {
		return 0, promptui.ErrInterrupt
	}
	next := s.selections[0]
	s.selections = s.selections[1:]
	return next, nil
}

func (s *scriptedPrompter) Input(label, defaultValue string, validate func(string) error, mask rune) (string, error) {
	s.labels = append(s.labels, label)
	if len(s.inputs) == 0 {
		return "", promptui.ErrEOF
	}
	answer := s.inputs[0]
	s.inputs = s.inputs[1:]
	if answer == "" {
		answer = defaultValue
	}
	return answer, nil
}

var cardAnswers = []string{"4242424242424242", "12", "34", "123", "", ""}

var _ = Describe("checkoutRun", func() {
	const (
		amountLabel = "Amount (VND)"
		nextLabel   = "What next"
		cardLabel   = "Card number"
	)

	var (
		ctx        context.Context
		gateway    *sequenceGateway
		store      *slotStore
		card       *succeedingCard
		prompter   *scriptedPrompter
		out        *bytes.Buffer
		errOut     *bytes.Buffer
		dashboards int
		stops      int
		run        *checkoutRun
	)

	BeforeEach(func() {
		ctx = context.Background()
		gateway = &sequenceGateway{}
		store = &slotStore{}
		card = &succeedingCard{}
		prompter = &scriptedPrompter{}
		out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
		dashboards, stops = 0, 0

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		caps := capability.New(
			[]string{"VNPAY", "STRIPE"},
			map[string][]string{"VNPAY": {"REDIRECT"}, "STRIPE": {"REDIRECT", "INTEGRATED"}},
		)
		deps := checkout.Dependencies{Gateway: gateway, Store: store, Capabilities: caps, Publisher: silentPublisher{}, Logger: logger}
		opts := checkout.Options{MinAmount: 10000, SessionTTL: 30 * time.Minute}

		redirect := checkout.NewRedirectController(deps, stayingNavigator{}, opts)
		integrated := checkout.NewIntegratedController(deps, card, droppingQueue{},
			checkout.NewReconciler(store, silentPublisher{}, opts.SessionTTL, logger),
			stayingNavigator{},
			checkout.IntegratedConfig{CardProvider: session.MethodStripe, SuccessRedirectDelay: time.Millisecond},
			opts,
		)

		run = &checkoutRun{
			flows:        checkout.NewDispatcher(redirect, integrated),
			redirect:     redirect,
			integrated:   integrated,
			store:        store,
			caps:         caps,
			prompter:     prompter,
			interactive:  true,
			minAmount:    opts.MinAmount,
			sessionTTL:   opts.SessionTTL,
			cardProvider: session.MethodStripe,
			out:          out,
			errOut:       errOut,
			openDashboard: func(ctx context.Context) error {
				dashboards++
				return nil
			},
			stopSettlement: func() { stops++ },
		}
	})

	Describe("card payment", func() {
		cardIntent := paymentgatewaytypes.CreatePaymentResponse{
			Status: paymentgatewaytypes.CreateStatusPending, ClientSecret: "pi_1_secret_x", ReferenceID: "ORD-9", PublicKey: "pk_test_1",
		}

		BeforeEach(func() {
			gateway.resp = cardIntent
		})

		It("offers a retry when the intent cannot be created and keeps the amount", func() {
			gateway.errs = []error{stderrors.New("connection refused")}
			prompter.selections = []int{0}
			prompter.inputs = cardAnswers

			Expect(run.pay(ctx, session.IntegrationIntegrated, checkout.Request{Amount: 150000})).To(Succeed())

			Expect(gateway.requests).To(HaveLen(2))
			Expect(gateway.requests[0].Amount).To(Equal(int64(150000)))
			Expect(gateway.requests[1]).To(Equal(gateway.requests[0]))
			Expect(prompter.labels).To(HaveExactElements(nextLabel, cardLabel,
				"Expiry month (MM)", "Expiry year (YY)", "CVC", "Name on card", "Email for receipt"))
			Expect(errOut.String()).To(ContainSubstring("Error:"))
			Expect(card.confirmed).To(Equal(1))
			Expect(stops).To(Equal(1))
			Expect(dashboards).To(BeZero())
		})

		It("leaves for the dashboard without showing the card form", func() {
			gateway.errs = []error{stderrors.New("connection refused")}
			prompter.selections = []int{1}

			Expect(run.pay(ctx, session.IntegrationIntegrated, checkout.Request{Amount: 150000})).To(Succeed())

			Expect(dashboards).To(Equal(1))
			Expect(gateway.requests).To(HaveLen(1))
			Expect(prompter.labels).To(HaveExactElements(nextLabel))
			Expect(card.confirmed).To(BeZero())
		})

		It("asks for a new amount when the amount was refused", func() {
			prompter.selections = []int{0}
			prompter.inputs = append([]string{"200000"}, cardAnswers...)

			Expect(run.pay(ctx, session.IntegrationIntegrated, checkout.Request{Amount: 5000})).To(Succeed())

			Expect(gateway.requests).To(HaveLen(1))
			Expect(gateway.requests[0].Amount).To(Equal(int64(200000)))
			Expect(prompter.labels[:3]).To(HaveExactElements(nextLabel, amountLabel, cardLabel))
		})

		It("stops at the decision when the prompt is interrupted", func() {
			gateway.errs = []error{stderrors.New("connection refused")}

			err := run.pay(ctx, session.IntegrationIntegrated, checkout.Request{Amount: 150000})

			Expect(err).To(MatchError(promptui.ErrInterrupt))
			Expect(gateway.requests).To(HaveLen(1))
			Expect(dashboards).To(BeZero())
		})
	})

	Describe("redirect payment", func() {
		BeforeEach(func() {
			gateway.resp = paymentgatewaytypes.CreatePaymentResponse{
				Status:      paymentgatewaytypes.CreateStatusRedirect,
				PaymentURL:  "https://sandbox.vnpayment.vn/pay?ref=ORD-1",
				ReferenceID: "ORD-1",
			}
		})

		It("retries with the last request after a gateway failure", func() {
			gateway.errs = []error{stderrors.New("connection refused")}
			prompter.selections = []int{0}

			preset := checkout.Request{Method: session.MethodVNPay, Amount: 150000, BankCode: "NCB"}
			Expect(run.pay(ctx, session.IntegrationRedirect, preset)).To(Succeed())

			Expect(gateway.requests).To(HaveLen(2))
			Expect(gateway.requests[1]).To(Equal(gateway.requests[0]))
			Expect(gateway.requests[1].BankCode).To(Equal("NCB"))
			Expect(prompter.labels).To(HaveExactElements(nextLabel))
			Expect(out.String()).To(ContainSubstring("Payment ORD-1 created"))
		})
	})

	It("refuses an integration type no flow serves", func() {
		err := run.pay(ctx, session.IntegrationType("QR"), checkout.Request{Amount: 150000})

		Expect(err).To(HaveOccurred())
		Expect(gateway.requests).To(BeEmpty())
	})
})
