// Package worker delivers queued trial log records to a sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pairwise/internal/adapters/mq/queue"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/session"
	"github.com/okian/pairwise/pkg/logger"
	"github.com/okian/pairwise/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default worker configuration constants.
const (
	defaultWorkerCount   = 4
	maxDefaultWorkers    = 16
	defaultSendTimeout   = 10 * time.Second
	poolShutdownTimeout  = 30 * time.Second
	deliveryOutcomeOK    = "delivered"
	deliveryOutcomeError = "failed"
)

// ErrNotStarted is returned for records dispatched to a pool that is not running.
var ErrNotStarted = errors.New("worker pool not started")

// Sink stores a single trial record.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker delivers jobs from a queue to a sink.
type InMemoryWorker struct {
	queue       Queue
	sink        Sink
	name        string
	sendTimeout time.Duration
	logger      logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		sink:        sink,
		name:        "worker",
		sendTimeout: defaultSendTimeout,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run delivers jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			j.Settle(w.deliver(ctx, j.Record))
		}
	}
}

func (w *InMemoryWorker) deliver(ctx context.Context, rec model.LogRecord) error { //nolint:gocritic // hugeParam: records travel by value
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	if err := w.sink.Log(sendCtx, rec); err != nil {
		metrics.RecordDelivery(deliveryOutcomeError)
		w.logger.Warn(ctx, "record delivery failed",
			logger.String("trial_type", string(rec.TrialType)),
			logger.Error(err),
		)
		return fmt.Errorf("deliver %s record: %w", rec.TrialType, err)
	}
	metrics.RecordDelivery(deliveryOutcomeOK)
	return nil
}

// Pool runs a fixed set of workers and implements session.Dispatcher.
type Pool struct {
	workers []*InMemoryWorker
	queue   *queue.InMemoryQueue

	mu      sync.Mutex
	group   *errgroup.Group
	started atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers delivering to sink.
func NewPool(workerCount int, q *queue.InMemoryQueue, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = min(max(runtime.NumCPU(), defaultWorkerCount), maxDefaultWorkers)
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, sink, wopts...)
		if i == 0 {
			p.logger = p.workers[0].logger
		}
	}
	return p
}

// Start launches every worker. Workers stop when ctx is done or the pool is shut down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.Load() {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}
	p.group = g
	p.started.Store(true)
}

// Dispatch queues every record, waiting for room when the batch is larger than
// the queue, and returns once each one is delivered or has failed. When ctx
// ends first, records not yet delivered count as failed.
func (p *Pool) Dispatch(ctx context.Context, recs []model.LogRecord) session.Report {
	t := newTally(len(recs))
	if !p.started.Load() {
		for range recs {
			t.settle(ErrNotStarted)
		}
		return t.report(nil)
	}

	for i, rec := range recs {
		j := queue.Job{Record: rec, Done: t.settle}
		if err := p.queue.EnqueueWait(ctx, j); err != nil {
			for range recs[i:] {
				t.settle(err)
			}
			break
		}
	}

	select {
	case <-t.done:
		return t.report(nil)
	case <-ctx.Done():
		return t.report(ctx.Err())
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
	}
}

// tally counts settled records for one Dispatch call.
type tally struct {
	mu        sync.Mutex
	pending   int
	delivered int
	failed    int
	errs      []error
	sealed    bool
	done      chan struct{}
}

func newTally(n int) *tally {
	t := &tally{pending: n, done: make(chan struct{})}
	if n == 0 {
		close(t.done)
	}
	return t
}

func (t *tally) settle(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed || t.pending == 0 {
		return
	}
	if err != nil {
		t.failed++
		t.errs = append(t.errs, err)
	} else {
		t.delivered++
	}
	t.pending--
	if t.pending == 0 {
		close(t.done)
	}
}

func (t *tally) report(cause error) session.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sealed {
		t.sealed = true
		if t.pending > 0 && cause != nil {
			t.failed += t.pending
			t.errs = append(t.errs, fmt.Errorf("%d records unsettled: %w", t.pending, cause))
			t.pending = 0
		}
	}
	return session.Report{Delivered: t.delivered, Failed: t.failed, Err: errors.Join(t.errs...)}
}
