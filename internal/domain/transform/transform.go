// Package transform implements the canonical image transform catalog.
//
// A transform takes the working tensor and returns the next one. It may
// instead report "no detection" (ok == false), which ends the chain without an
// error, or fail with a *PreconditionError when handed a value it cannot
// operate on.
package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/gesture/internal/domain/tensor"
)

// CatalogVersion identifies the id → transform mapping below. Bump it when an
// id changes meaning; stored records carry ids, not names.
const CatalogVersion = 1

// ID identifies a transform in stored model records.
type ID int

// Canonical transform ids, version 1.
const (
	Rotate             ID = 1
	Grayscale          ID = 2
	Resize224          ID = 3
	Resize128          ID = 4
	Normalize          ID = 5
	AddChannel         ID = 6
	AddBatch           ID = 7
	HandDetection      ID = 8
	UnetSegmentation   ID = 9
	ResNet50Preprocess ID = 10
)

var names = map[ID]string{
	Rotate:             "rotate",
	Grayscale:          "grayscale",
	Resize224:          "resize_224",
	Resize128:          "resize_128",
	Normalize:          "normalize",
	AddChannel:         "add_channel",
	AddBatch:           "add_batch",
	HandDetection:      "hand_detection",
	UnetSegmentation:   "unet_segmentation",
	ResNet50Preprocess: "resnet50_preprocess",
}

// IDs returns every canonical id in ascending order.
func IDs() []ID {
	return []ID{Rotate, Grayscale, Resize224, Resize128, Normalize, AddChannel, AddBatch, HandDetection, UnetSegmentation, ResNet50Preprocess}
}

// Name returns the stable name of id, or "transform(N)" when unknown.
func (id ID) Name() string {
	if n, ok := names[id]; ok {
		return n
	}
	return "transform(" + strconv.Itoa(int(id)) + ")"
}

func (id ID) String() string { return id.Name() }

// Valid reports whether id is part of the catalog.
func (id ID) Valid() bool {
	_, ok := names[id]
	return ok
}

// Parse accepts either a numeric id or a transform name.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if id := ID(n); id.Valid() {
			return id, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownTransform, n)
	}
	for id, name := range names {
		if strings.EqualFold(name, s) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTransform, s)
}

// Transform is one stage of a chain. Implementations must be safe for
// concurrent use; stateful ones serialize their own session access.
type Transform interface {
	Name() string
	Apply(ctx context.Context, in tensor.Tensor) (out tensor.Tensor, ok bool, err error)
}

// Predictor is the forward pass of a detector or segmentation sub-model.
type Predictor interface {
	Predict(ctx context.Context, in tensor.Tensor) ([]float32, error)
}

// Func adapts a pure function into a Transform that always yields a value.
type Func struct {
	name string
	fn   func(tensor.Tensor) (tensor.Tensor, error)
}

// NewFunc wraps fn as a named transform.
func NewFunc(name string, fn func(tensor.Tensor) (tensor.Tensor, error)) Func {
	return Func{name: name, fn: fn}
}

func (f Func) Name() string { return f.name }

func (f Func) Apply(_ context.Context, in tensor.Tensor) (tensor.Tensor, bool, error) {
	out, err := f.fn(in)
	if err != nil {
		return tensor.Tensor{}, false, err
	}
	return out, true, nil
}
