package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull  = errors.New("settlement queue full, please try again later")
	ErrPoolClosed = errors.New("settlement pool is shut down")
)

// Confirmer is the backend's authoritative settlement call. It must be safe to replay.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, paymentIntentID string) error
}

type Job struct {
	ReferenceID     string
	PaymentIntentID string
	// Done receives the confirmation result; it runs on the worker goroutine.
	Done func(err error)
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(stop <-chan struct{}, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "reference_id", job.ReferenceID)
				processFunc(job)
			case <-stop:
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	MaxWorkers     int
	JobQueueSize   int
	ConfirmTimeout time.Duration
}

// Pool confirms integrated payments in the background so the payer never waits on settlement.
type Pool struct {
	confirmer      Confirmer
	confirmTimeout time.Duration
	logger         *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	stop       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(confirmer Confirmer, config Config, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	confirmTimeout := config.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}

	p := &Pool{
		confirmer:      confirmer,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		jobQueue:       make(chan Job, jobQueueSize),
		workerPool:     make(chan chan Job, maxWorkers),
		maxWorkers:     maxWorkers,
		stop:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}

	for i := 0; i < p.maxWorkers; i++ {
		NewWorker(i, p.workerPool, logger).Start(p.stop, &p.wg, p.process)
	}
	p.wg.Add(1)
	go p.dispatch()

	logger.Info("settlement worker pool started",
		"max_workers", p.maxWorkers,
		"queue_size", cap(p.jobQueue))

	return p
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		p.logger.Info("settlement job queued",
			"reference_id", job.ReferenceID,
			"payment_intent_id", job.PaymentIntentID,
			"queue_length", len(p.jobQueue))
		return nil
	default:
		p.logger.Warn("settlement queue full, rejecting job",
			"reference_id", job.ReferenceID,
			"queue_capacity", cap(p.jobQueue))
		return ErrQueueFull
	}
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	defer close(p.stop)

	for job := range p.jobQueue {
		select {
		case jobChannel := <-p.workerPool:
			jobChannel <- job
		case <-p.ctx.Done():
			p.logger.Warn("dispatcher aborted with pending jobs", "pending", len(p.jobQueue)+1)
			p.abandon(job)
			// Shutdown closed the queue before cancelling, so this ends.
			for rest := range p.jobQueue {
				p.abandon(rest)
			}
			return
		}
	}
	p.logger.Debug("dispatcher drained")
}

// abandon reports a job that never reached a worker, so its owner stops waiting on it.
func (p *Pool) abandon(job Job) {
	p.logger.Warn("settlement job abandoned",
		"reference_id", job.ReferenceID,
		"payment_intent_id", job.PaymentIntentID)
	if job.Done != nil {
		job.Done(context.Canceled)
	}
}

func (p *Pool) process(job Job) {
	ctx, cancel := context.WithTimeout(p.ctx, p.confirmTimeout)
	defer cancel()

	err := p.confirmer.ConfirmPayment(ctx, job.PaymentIntentID)
	if err != nil {
		p.logger.Error("backend confirmation failed",
			"reference_id", job.ReferenceID,
			"payment_intent_id", job.PaymentIntentID,
			"error", err)
	} else {
		p.logger.Info("payment settled",
			"reference_id", job.ReferenceID,
			"payment_intent_id", job.PaymentIntentID)
	}

	if job.Done != nil {
		job.Done(err)
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx expires first,
// in-flight confirmations are cancelled and jobs still queued report context.Canceled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("settlement pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("settlement pool shutdown forced", "error", ctx.Err())
		return ctx.Err()
	}
}
