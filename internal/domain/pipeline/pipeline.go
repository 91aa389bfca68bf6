// Package pipeline runs an ordered transform chain over an image tensor.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/gesture/internal/domain/tensor"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

// Resolver maps a transform id to its shared instance.
type Resolver interface {
	Resolve(ctx context.Context, id transform.ID) (transform.Transform, error)
}

// StageEvent is reported to the observer after each stage that produced a value.
type StageEvent struct {
	RequestID string
	Index     int
	Transform string
	Output    tensor.Tensor
	Duration  time.Duration
}

// Observer watches intermediate values. It must not modify Output.
type Observer interface {
	OnStage(ctx context.Context, ev StageEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev StageEvent)

func (f ObserverFunc) OnStage(ctx context.Context, ev StageEvent) { f(ctx, ev) }

// Executor applies chains resolved from a catalog.
type Executor struct {
	resolver Resolver
	observer Observer
	log      logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver installs a stage observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithLogger sets the executor logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New creates an Executor.
func New(resolver Resolver, opts ...Option) *Executor {
	e := &Executor{resolver: resolver}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("pipeline")
	}
	return e
}

// Run applies ids to in, in order. ok is false when a stage found nothing to
// classify; the remaining stages are skipped and err is nil.
func (e *Executor) Run(ctx context.Context, in tensor.Tensor, ids []transform.ID) (out tensor.Tensor, ok bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainLatency(msSince(start)) }()

	cur := in
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return tensor.Tensor{}, false, fmt.Errorf("stage %d (%s): %w", i, id.Name(), err)
		}
		t, err := e.resolver.Resolve(ctx, id)
		if err != nil {
			return tensor.Tensor{}, false, fmt.Errorf("stage %d: %w", i, err)
		}

		stageStart := time.Now()
		next, ok, err := t.Apply(ctx, cur)
		took := time.Since(stageStart)
		metrics.RecordTransformLatency(t.Name(), float64(took.Microseconds())/1000)
		if err != nil {
			metrics.RecordTransformFailure(t.Name())
			return tensor.Tensor{}, false, fmt.Errorf("stage %d (%s): %w", i, t.Name(), err)
		}
		if !ok {
			e.log.Debug(ctx, "chain stopped: no detection",
				logger.String("request_id", RequestID(ctx)),
				logger.Int("stage", i),
				logger.String("transform", t.Name()))
			return tensor.Tensor{}, false, nil
		}
		cur = next
		e.notify(ctx, StageEvent{RequestID: RequestID(ctx), Index: i, Transform: t.Name(), Output: cur, Duration: took})
	}
	return cur, true, nil
}

// Prepare resolves every catalog id in ids so sub-models open before the
// chain serves traffic. Ids outside the catalog are left for Run to report.
func (e *Executor) Prepare(ctx context.Context, ids []transform.ID) error {
	for i, id := range ids {
		if !id.Valid() {
			continue
		}
		if _, err := e.resolver.Resolve(ctx, id); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return nil
}

// notify calls the observer; a panicking observer never breaks the chain.
func (e *Executor) notify(ctx context.Context, ev StageEvent) {
	if e.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn(ctx, "stage observer panicked", logger.Any("panic", r), logger.String("transform", ev.Transform))
		}
	}()
	e.observer.OnStage(ctx, ev)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
