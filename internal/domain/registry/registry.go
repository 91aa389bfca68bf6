// Package registry keeps the live set of classification models and runs
// predictions against them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/tensor"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

// DefaultTimeout bounds one prediction.
const DefaultTimeout = 10 * time.Second

// Model is a loaded classification network.
type Model interface {
	Predict(ctx context.Context, in tensor.Tensor) ([]float32, error)
	Close() error
}

// Loader opens model artifacts. Missing files fail with ErrArtifactNotFound.
type Loader interface {
	Load(ctx context.Context, artifactPath string) (Model, error)
}

// Chain runs a transform chain; ok is false on no detection. Prepare opens
// whatever the chain's transforms need and fails when that is missing.
type Chain interface {
	Run(ctx context.Context, in tensor.Tensor, ids []transform.ID) (tensor.Tensor, bool, error)
	Prepare(ctx context.Context, ids []transform.ID) error
}

// LoadedModel pairs a deserialized model with its transform chain.
type LoadedModel struct {
	ID           int
	Name         string
	Model        Model
	TransformIDs []transform.ID
}

// table is an immutable snapshot. Readers hold mu.RLock while using its
// models; retiring takes the write lock, so models are closed only after
// in-flight predictions finish.
type table struct {
	mu       sync.RWMutex
	retired  bool
	models   map[int]*LoadedModel
	ids      []int
	loadedAt time.Time
}

func (t *table) retire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retired {
		return nil
	}
	t.retired = true
	var errs []error
	for _, lm := range t.models {
		if err := lm.Model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %d: %w", lm.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Manager owns the live table. Create one per process and pass it around.
type Manager struct {
	current atomic.Pointer[table]
	loadMu  sync.Mutex

	loader  Loader
	chain   Chain
	timeout time.Duration
	log     logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithTimeout sets the per-prediction bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New creates an empty Manager.
func New(loader Loader, chain Chain, opts ...Option) *Manager {
	m := &Manager{loader: loader, chain: chain, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("registry")
	}
	m.current.Store(&table{models: map[int]*LoadedModel{}})
	return m
}

// acquire returns the live table read-locked. Callers must RUnlock it.
func (m *Manager) acquire() *table {
	for {
		t := m.current.Load()
		t.mu.RLock()
		if !t.retired {
			return t
		}
		t.mu.RUnlock()
	}
}

// LoadAll builds a new table from records and swaps it in whole. Each
// record's chain is prepared first, so a missing sub-model fails the load
// like a missing artifact. On any failure the models opened so far are
// closed and the old table stays live.
func (m *Manager) LoadAll(ctx context.Context, records []model.ModelRecord) (int, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	start := time.Now()
	next := &table{models: make(map[int]*LoadedModel, len(records)), loadedAt: start}
	fail := func(err error) (int, error) {
		_ = next.retire()
		metrics.RecordReload("error", msSince(start))
		m.log.Error(ctx, "model load failed, keeping previous registry", logger.Error(err))
		return 0, err
	}

	for _, rec := range records {
		if _, dup := next.models[rec.ID]; dup {
			return fail(fmt.Errorf("%w: %d", ErrDuplicateModel, rec.ID))
		}
		for _, id := range rec.TransformIDs {
			if !id.Valid() {
				m.log.Warn(ctx, "model references unknown transform",
					logger.Int("model_id", rec.ID), logger.Int("transform_id", int(id)))
			}
		}
		if err := m.chain.Prepare(ctx, rec.TransformIDs); err != nil {
			return fail(fmt.Errorf("prepare transforms for model %d: %w", rec.ID, err))
		}
		mdl, err := m.loader.Load(ctx, rec.ArtifactPath)
		if err != nil {
			return fail(fmt.Errorf("load model %d (%s): %w", rec.ID, rec.ArtifactPath, err))
		}
		next.models[rec.ID] = &LoadedModel{
			ID:           rec.ID,
			Name:         rec.Name,
			Model:        mdl,
			TransformIDs: slices.Clone(rec.TransformIDs),
		}
		next.ids = append(next.ids, rec.ID)
	}
	slices.Sort(next.ids)

	old := m.current.Swap(next)
	if err := old.retire(); err != nil {
		m.log.Warn(ctx, "closing previous models", logger.Error(err))
	}

	n := len(next.models)
	metrics.UpdateModelsLoaded(n)
	metrics.RecordReload("ok", msSince(start))
	m.log.Info(ctx, "models loaded", logger.Int("count", n), logger.Duration("took", time.Since(start)))
	return n, nil
}

// Get returns the loaded model for id.
func (m *Manager) Get(id int) (*LoadedModel, bool) {
	t := m.acquire()
	defer t.mu.RUnlock()
	lm, ok := t.models[id]
	return lm, ok
}

// Has reports whether id is in the live table.
func (m *Manager) Has(id int) bool {
	_, ok := m.Get(id)
	return ok
}

// IDs returns the loaded model ids in ascending order.
func (m *Manager) IDs() []int {
	t := m.acquire()
	defer t.mu.RUnlock()
	return slices.Clone(t.ids)
}

// Len returns the number of loaded models.
func (m *Manager) Len() int {
	t := m.acquire()
	defer t.mu.RUnlock()
	return len(t.models)
}

// LoadedAt returns when the live table was built.
func (m *Manager) LoadedAt() time.Time {
	t := m.acquire()
	defer t.mu.RUnlock()
	return t.loadedAt
}

// Predict runs model id's chain over img and classifies the result.
func (m *Manager) Predict(ctx context.Context, id int, img tensor.Tensor) (model.PredictionResult, error) {
	t := m.acquire()
	defer t.mu.RUnlock()

	lm, ok := t.models[id]
	if !ok {
		return model.PredictionResult{}, fmt.Errorf("%w: %d", ErrModelNotFound, id)
	}
	return m.predict(ctx, lm, img)
}

// Outcome is one model's share of PredictAll.
type Outcome struct {
	ModelID int
	Result  model.PredictionResult
	Err     error
}

func (m *Manager) predict(ctx context.Context, lm *LoadedModel, img tensor.Tensor) (model.PredictionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	x, ok, err := m.chain.Run(ctx, img, lm.TransformIDs)
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("model %d: %w", lm.ID, err)
	}
	if !ok {
		return model.NoDetection(), nil
	}
	if x.Dims() == 3 {
		if x, err = x.Reshape(append([]int{1}, x.Shape...)...); err != nil {
			return model.PredictionResult{}, fmt.Errorf("model %d: %w", lm.ID, err)
		}
	}

	start := time.Now()
	scores, err := lm.Model.Predict(ctx, x)
	metrics.RecordInferenceLatency(lm.ID, msSince(start))
	if err != nil {
		metrics.RecordInferenceError(lm.ID)
		return model.PredictionResult{}, fmt.Errorf("%w: model %d: %w", ErrInference, lm.ID, err)
	}
	label, err := model.Decode(scores)
	if err != nil {
		metrics.RecordInferenceError(lm.ID)
		return model.PredictionResult{}, fmt.Errorf("%w: model %d: %w", ErrInference, lm.ID, err)
	}
	return model.Detected(label), nil
}

// Close retires the live table and closes its models.
func (m *Manager) Close() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	old := m.current.Swap(&table{models: map[int]*LoadedModel{}})
	metrics.UpdateModelsLoaded(0)
	return old.retire()
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
