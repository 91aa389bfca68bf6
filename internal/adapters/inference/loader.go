package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/gesture/internal/domain/registry"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
)

// Opener creates a model from an absolute artifact path.
type Opener func(path string) (registry.Model, error)

// Loader resolves artifact paths under a models root and opens them.
type Loader struct {
	root    string
	runtime *Runtime
	open    Opener
	log     logger.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOpener replaces the ONNX opener, e.g. in tests.
func WithOpener(open Opener) LoaderOption {
	return func(l *Loader) { l.open = open }
}

// WithLoaderLogger sets the loader logger.
func WithLoaderLogger(lg logger.Logger) LoaderOption {
	return func(l *Loader) { l.log = lg }
}

// NewLoader creates a loader rooted at modelsDir.
func NewLoader(modelsDir string, rt *Runtime, opts ...LoaderOption) *Loader {
	l := &Loader{root: modelsDir, runtime: rt}
	l.open = func(path string) (registry.Model, error) {
		m, err := OpenONNX(path)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("model_loader")
	}
	return l
}

// Load opens root/artifactPath. A missing file fails with registry.ErrArtifactNotFound;
// paths that are absolute or climb out of root fail with ErrArtifactPath.
func (l *Loader) Load(ctx context.Context, artifactPath string) (registry.Model, error) {
	if !filepath.IsLocal(artifactPath) {
		return nil, fmt.Errorf("%w: %q", ErrArtifactPath, artifactPath)
	}
	path := filepath.Join(l.root, artifactPath)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", registry.ErrArtifactNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", registry.ErrArtifactNotFound, path)
	}
	if l.runtime != nil {
		if err := l.runtime.Init(ctx); err != nil {
			return nil, err
		}
	}
	m, err := l.open(path)
	if err != nil {
		return nil, err
	}
	l.log.Debug(ctx, "model opened", logger.String("path", path))
	return m, nil
}

// SubModel returns a catalog loader for a detector or segmentation model file.
func (l *Loader) SubModel(name string) transform.SubModelLoader {
	return func(ctx context.Context) (transform.Predictor, error) {
		return l.Load(ctx, name)
	}
}
