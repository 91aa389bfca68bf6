package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/okian/gesture/pkg/logger"
)

// SubModelLoader opens a detector or segmentation model on first use.
type SubModelLoader func(ctx context.Context) (Predictor, error)

// DefaultSegmentationSide is the input side of the segmentation sub-model.
const DefaultSegmentationSide = 128

// Catalog resolves transform ids to shared transform instances. Each entry is
// built on first resolve and shared from then on. A failed build is kept
// until Reset.
type Catalog struct {
	log        logger.Logger
	handLoader SubModelLoader
	segLoader  SubModelLoader
	segSide    int
	entries    map[ID]*entry
	mu         sync.Mutex
	subModels  []Predictor
}

type entry struct {
	mu    sync.Mutex
	built bool
	build func(ctx context.Context) (Transform, error)
	t     Transform
	err   error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// WithHandModel sets how the hand landmark model is opened.
func WithHandModel(load SubModelLoader) Option {
	return func(c *Catalog) { c.handLoader = load }
}

// WithSegmentationModel sets how the segmentation model is opened and its input side.
func WithSegmentationModel(load SubModelLoader, side int) Option {
	return func(c *Catalog) {
		c.segLoader = load
		if side > 0 {
			c.segSide = side
		}
	}
}

// NewCatalog builds the version 1 catalog. Nothing is loaded until Resolve.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{segSide: DefaultSegmentationSide}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("transform_catalog")
	}

	pure := func(t Transform) func(context.Context) (Transform, error) {
		return func(context.Context) (Transform, error) { return t, nil }
	}
	c.entries = map[ID]*entry{
		Rotate:             {build: pure(NewFunc(Rotate.Name(), rotatePortrait))},
		Grayscale:          {build: pure(NewFunc(Grayscale.Name(), grayscale))},
		Resize224:          {build: pure(resizeTo(Resize224, 224))},
		Resize128:          {build: pure(resizeTo(Resize128, 128))},
		Normalize:          {build: pure(NewFunc(Normalize.Name(), normalize))},
		AddChannel:         {build: pure(NewFunc(AddChannel.Name(), addChannel))},
		AddBatch:           {build: pure(NewFunc(AddBatch.Name(), addBatch))},
		ResNet50Preprocess: {build: pure(NewFunc(ResNet50Preprocess.Name(), resnet50Preprocess))},
		HandDetection: {build: func(ctx context.Context) (Transform, error) {
			m, err := c.openSubModel(ctx, HandDetection, c.handLoader)
			if err != nil {
				return nil, err
			}
			return NewHandDetector(m), nil
		}},
		UnetSegmentation: {build: func(ctx context.Context) (Transform, error) {
			m, err := c.openSubModel(ctx, UnetSegmentation, c.segLoader)
			if err != nil {
				return nil, err
			}
			return NewSegmenter(m, c.segSide), nil
		}},
	}
	return c
}

func (c *Catalog) openSubModel(ctx context.Context, id ID, load SubModelLoader) (Predictor, error) {
	if load == nil {
		return nil, fmt.Errorf("%w: %s has no model configured", ErrSubModel, id.Name())
	}
	m, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s model: %w", id.Name(), err)
	}
	c.mu.Lock()
	c.subModels = append(c.subModels, m)
	c.mu.Unlock()
	c.log.Info(ctx, "sub-model loaded", logger.String("transform", id.Name()))
	return m, nil
}

// Resolve returns the shared instance for id. A failed build is remembered
// and returned on every later call until Reset.
func (c *Catalog) Resolve(ctx context.Context, id ID) (Transform, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransform, int(id))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.built {
		e.t, e.err = e.build(ctx)
		e.built = true
		if e.err != nil {
			c.log.Error(ctx, "transform init failed", logger.String("transform", id.Name()), logger.Error(e.err))
		}
	}
	return e.t, e.err
}

// Reset forgets failed builds so the next Resolve retries them. Instances
// that built fine stay shared; chains in flight may still hold them.
func (c *Catalog) Reset() {
	for id, e := range c.entries {
		e.mu.Lock()
		if e.built && e.err != nil {
			e.built, e.t, e.err = false, nil, nil
			c.log.Debug(context.Background(), "transform init will be retried", logger.String("transform", id.Name()))
		}
		e.mu.Unlock()
	}
}

// Close releases sub-models opened by stateful transforms.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, m := range c.subModels {
		if cl, ok := m.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	c.subModels = nil
	return errors.Join(errs...)
}
