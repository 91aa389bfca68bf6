// Package inference runs ONNX models through onnxruntime.
package inference

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/gesture/pkg/logger"
)

// Runtime initializes the process-wide onnxruntime environment once.
type Runtime struct {
	libPath string
	log     logger.Logger

	once sync.Once
	err  error
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithSharedLibrary points at a specific onnxruntime shared library.
func WithSharedLibrary(path string) RuntimeOption {
	return func(r *Runtime) { r.libPath = path }
}

// WithRuntimeLogger sets the runtime logger.
func WithRuntimeLogger(l logger.Logger) RuntimeOption {
	return func(r *Runtime) { r.log = l }
}

// NewRuntime returns an uninitialized runtime; Init happens on first model load.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("onnxruntime")
	}
	return r
}

// Init sets up the environment. Later calls return the first result.
func (r *Runtime) Init(ctx context.Context) error {
	r.once.Do(func() {
		if r.libPath != "" {
			ort.SetSharedLibraryPath(r.libPath)
		}
		if ort.IsInitialized() {
			return
		}
		if err := ort.InitializeEnvironment(); err != nil {
			r.err = fmt.Errorf("%w: %v", ErrRuntimeInit, err)
			return
		}
		r.log.Info(ctx, "onnxruntime initialized", logger.String("library", r.libPath))
	})
	return r.err
}

// Close tears the environment down if it was initialized.
func (r *Runtime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
