// Package worker drains prediction events from the queue into a Sink.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.PredictionEvent

// Sink receives prediction events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// InMemoryWorker publishes events from a queue to a sink.
type InMemoryWorker struct {
	queue Queue
	sink  Sink
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed *atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		sink:      sink,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		processed: new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run publishes events until the queue channel closes, ctx ends or Shutdown
// is called. Publish failures are logged and counted; the event is dropped.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, e)
		}
	}
}

// Shutdown stops the worker and waits for its loop to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) { //nolint:gocritic // hugeParam: value semantics for channel receive
	start := time.Now()
	err := w.sink.Publish(ctx, e)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	w.processed.Add(1)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordEventPublishError()
		metrics.RecordErrorByComponent("worker", "publish_error")
		w.logger.Error(ctx, "publish failed",
			logger.String("event_id", e.EventID),
			logger.Int("model_id", e.ModelID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordEventPublished()
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	stopMetrics chan struct{}
	stopOnce    sync.Once

	processed atomic.Int64
	last      time.Time

	logger logger.Logger
}

// NewPool creates workerCount workers. A count below one means one per CPU.
func NewPool(workerCount int, q Queue, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:     make([]*InMemoryWorker, workerCount),
		queue:       q,
		stopMetrics: make(chan struct{}),
		last:        time.Now(),
		logger:      logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, sink, wopts...)
		w.processed = &p.processed
		p.workers[i] = w
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.reportMetrics(ctx)
}

func (p *Pool) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopMetrics:
			return
		case now := <-ticker.C:
			if secs := now.Sub(p.last).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(p.processed.Swap(0)) / secs)
			}
			p.last = now
		}
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.stopOnce.Do(func() { close(p.stopMetrics) })

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
