package checkout_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/frahmantamala/vip-checkout/internal/capability"
	paymentgatewaytypes "github.com/frahmantamala/vip-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/settlement"
	"github.com/frahmantamala/vip-checkout/internal/tokenizer"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// journal records cross-component call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeGateway struct {
	journal  *journal
	calls    int
	requests []paymentgatewaytypes.CreatePaymentRequest
	resp     *paymentgatewaytypes.CreatePaymentResponse
	err      error
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req paymentgatewaytypes.CreatePaymentRequest) (*paymentgatewaytypes.CreatePaymentResponse, error) {
	g.calls++
	g.requests = append(g.requests, req)
	if g.journal != nil {
		g.journal.add("create")
	}
	if g.err != nil {
		return nil, g.err
	}
	copied := *g.resp
	return &copied, nil
}

type memoryStore struct {
	mu       sync.Mutex
	journal  *journal
	slot     *session.Session
	saves    int
	clears   int
	loadErr  error
	saveErr  error
	clearErr error
}

func (m *memoryStore) Save(ctx context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.journal != nil {
		m.journal.add("save:" + s.ReferenceID)
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	copied := s
	m.slot = &copied
	return nil
}

func (m *memoryStore) Load(ctx context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.slot == nil {
		return nil, nil
	}
	copied := *m.slot
	return &copied, nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.journal != nil {
		m.journal.add("clear")
	}
	if m.clearErr != nil {
		return m.clearErr
	}
	m.clears++
	m.slot = nil
	return nil
}

// writes reports how many saves and clears reached the slot.
func (m *memoryStore) writes() (saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.clears
}

func (m *memoryStore) current() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return nil
	}
	copied := *m.slot
	return &copied
}

type recordingNavigator struct {
	mu      sync.Mutex
	journal *journal
	targets []string
	err     error
}

func (n *recordingNavigator) Navigate(ctx context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.journal != nil {
		n.journal.add("navigate:" + target)
	}
	n.targets = append(n.targets, target)
	return n.err
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

type fakeCard struct {
	confirmIntent *tokenizer.PaymentIntent
	confirmErr    error
	actionIntent  *tokenizer.PaymentIntent
	actionErr     error
	confirmCalls  int
	actionCalls   int
	lastSecret    string
	block         chan struct{}
	entered       chan struct{}
}

func (f *fakeCard) ConfirmCardPayment(ctx context.Context, clientSecret, publicKey string, card tokenizer.CardDetails) (*tokenizer.PaymentIntent, error) {
	f.confirmCalls++
	f.lastSecret = clientSecret
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.confirmIntent, f.confirmErr
}

func (f *fakeCard) HandleCardAction(ctx context.Context, clientSecret, publicKey string, intent *tokenizer.PaymentIntent) (*tokenizer.PaymentIntent, error) {
	f.actionCalls++
	return f.actionIntent, f.actionErr
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []settlement.Job
	submitErr error
}

func (q *fakeQueue) Submit(job settlement.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) queued() []settlement.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]settlement.Job(nil), q.jobs...)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func allCapabilities() *capability.Capabilities {
	return capability.New(
		[]string{"VNPAY", "STRIPE"},
		map[string][]string{"VNPAY": {"REDIRECT"}, "STRIPE": {"REDIRECT", "INTEGRATED"}},
	)
}
