// Package service orchestrates predictions, reloads and feedback over the
// model store and the loaded-model registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gesture/internal/adapters/repository"
	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/pipeline"
	"github.com/okian/gesture/internal/domain/registry"
	"github.com/okian/gesture/internal/domain/tensor"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

// Outcome labels recorded per prediction.
const (
	outcomeLabel       = "label"
	outcomeNoDetection = "no_detection"
	outcomeError       = "error"
)

// DefaultMaxImagePixels caps width×height of an uploaded image.
const DefaultMaxImagePixels = 25_000_000

// Store is the persistence the service needs.
type Store interface {
	ListModelRecords(ctx context.Context) ([]model.ModelRecord, error)
	ListModelsWithStats(ctx context.Context) ([]model.ModelWithStats, error)
	IncrementStatistics(ctx context.Context, modelID int, wrong bool) error
}

// Registry holds the loaded models.
type Registry interface {
	LoadAll(ctx context.Context, records []model.ModelRecord) (int, error)
	Has(id int) bool
	Predict(ctx context.Context, id int, img tensor.Tensor) (model.PredictionResult, error)
	PredictAll(ctx context.Context, img tensor.Tensor) ([]registry.Outcome, error)
	IDs() []int
	LoadedAt() time.Time
}

// TransformCache holds built transforms. Reset makes failed builds retry.
type TransformCache interface {
	Reset()
}

// EventQueue accepts prediction events without blocking.
type EventQueue interface {
	Enqueue(ctx context.Context, e model.PredictionEvent) bool
	Len() int
}

// Service implements the operations behind the HTTP API.
type Service struct {
	store      Store
	registry   Registry
	transforms TransformCache
	events     EventQueue
	maxPixels  int
	newID      func() string
	logger     logger.Logger

	reloadMu sync.Mutex
	started  time.Time

	predictions  atomic.Int64
	noDetections atomic.Int64
	failures     atomic.Int64
	dropped      atomic.Int64
}

// New constructs a Service.
func New(store Store, reg Registry, opts ...Option) *Service {
	s := &Service{
		store:     store,
		registry:  reg,
		newID:     uuid.NewString,
		maxPixels: DefaultMaxImagePixels,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start loads every stored model.
func (s *Service) Start(ctx context.Context) error {
	n, err := s.Reload(ctx)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "gesture service started", logger.Int("models", n))
	return nil
}

// Reload re-reads the model records and swaps in a freshly loaded registry
// table. Concurrent reloads run one after another.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	recs, err := s.store.ListModelRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("read model records: %w", err)
	}
	if s.transforms != nil {
		s.transforms.Reset()
	}
	n, err := s.registry.LoadAll(ctx, recs)
	if err != nil {
		s.logger.Error(ctx, "reload failed; keeping previous models", logger.Error(err))
		return 0, err
	}
	return n, nil
}

func (s *Service) decode(raw []byte) (tensor.Tensor, error) {
	img, err := tensor.DecodeLimited(raw, s.maxPixels)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return tensor.FromImage(img), nil
}

// Predict classifies image with model modelID. A chain that finds nothing
// yields a no-detection result, not an error.
func (s *Service) Predict(ctx context.Context, modelID int, image []byte) (model.PredictionResult, error) {
	start := time.Now()
	reqID := s.newID()
	ctx = pipeline.WithRequestID(ctx, reqID)
	log := s.logger.With(logger.String("request_id", reqID), logger.Int("model_id", modelID))

	if !s.registry.Has(modelID) {
		return model.PredictionResult{}, fmt.Errorf("%w: %d", ErrModelNotFound, modelID)
	}
	img, err := s.decode(image)
	if err != nil {
		log.Debug(ctx, "rejecting image", logger.Error(err))
		return model.PredictionResult{}, err
	}

	res, err := s.registry.Predict(ctx, modelID, img)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, registry.ErrModelNotFound) {
			return model.PredictionResult{}, fmt.Errorf("%w: %d", ErrModelNotFound, modelID)
		}
		s.failures.Add(1)
		metrics.RecordPrediction(modelID, outcomeError, ms(latency))
		log.Error(ctx, "prediction failed", logger.Error(err))
		return model.PredictionResult{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	s.complete(ctx, reqID, modelID, res, latency)
	return res, nil
}

// PredictAll classifies image with every loaded model. Model failures are
// reported per outcome with ErrInference.
func (s *Service) PredictAll(ctx context.Context, image []byte) ([]registry.Outcome, error) {
	start := time.Now()
	reqID := s.newID()
	ctx = pipeline.WithRequestID(ctx, reqID)

	img, err := s.decode(image)
	if err != nil {
		return nil, err
	}
	outs, err := s.registry.PredictAll(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	latency := time.Since(start)
	for i, o := range outs {
		if o.Err != nil {
			s.failures.Add(1)
			metrics.RecordPrediction(o.ModelID, outcomeError, ms(latency))
			s.logger.Error(ctx, "prediction failed",
				logger.String("request_id", reqID),
				logger.Int("model_id", o.ModelID),
				logger.Error(o.Err),
			)
			outs[i].Err = fmt.Errorf("%w: %w", ErrInference, o.Err)
			continue
		}
		s.complete(ctx, reqID, o.ModelID, o.Result, latency)
	}
	return outs, nil
}

func (s *Service) complete(ctx context.Context, reqID string, modelID int, res model.PredictionResult, latency time.Duration) {
	s.predictions.Add(1)
	outcome := outcomeLabel
	if res.NoDetection() {
		s.noDetections.Add(1)
		outcome = outcomeNoDetection
	}
	metrics.RecordPrediction(modelID, outcome, ms(latency))

	if s.events == nil {
		return
	}
	ev := model.NewPredictionEvent(s.newID(), reqID, modelID, res, latency, time.Now().UTC())
	if !s.events.Enqueue(ctx, ev) {
		s.dropped.Add(1)
		s.logger.Debug(ctx, "prediction event dropped", logger.String("request_id", reqID))
	}
}

// Feedback records a rated prediction for modelID.
func (s *Service) Feedback(ctx context.Context, modelID int, wrong bool) error {
	if err := s.store.IncrementStatistics(ctx, modelID, wrong); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrModelNotFound, modelID)
		}
		return fmt.Errorf("update statistics: %w", err)
	}
	metrics.RecordFeedback(modelID, wrong)
	return nil
}

// Models lists every stored model with its statistics.
func (s *Service) Models(ctx context.Context) ([]model.ModelWithStats, error) {
	out, err := s.store.ListModelsWithStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	ids := s.registry.IDs()
	stats := map[string]any{
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"modelsLoaded":  len(ids),
		"modelIds":      ids,
		"predictions":   s.predictions.Load(),
		"noDetections":  s.noDetections.Load(),
		"failures":      s.failures.Load(),
		"eventsDropped": s.dropped.Load(),
	}
	if at := s.registry.LoadedAt(); !at.IsZero() {
		stats["loadedAt"] = at.UTC().Format(time.RFC3339)
	}
	if s.events != nil {
		stats["queueLength"] = s.events.Len()
	}
	return stats
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
