package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/gesture/internal/domain/tensor"
)

// Segmentation cleanup thresholds, in pixels.
const (
	SegmentationThreshold = 0.5
	MinObjectSize         = 128
	MaxHoleSize           = 256
	MinMaskPixels         = 900
)

// Segmenter runs a segmentation sub-model and returns a cleaned binary mask
// (side×side×1, float 0/1). A mask with fewer than MinMaskPixels foreground
// pixels yields ok == false.
type Segmenter struct {
	mu    sync.Mutex
	model Predictor
	side  int
}

// NewSegmenter wraps a model whose input is 1×side×side×C float [0,1] and
// whose output holds side×side foreground probabilities.
func NewSegmenter(model Predictor, side int) *Segmenter {
	return &Segmenter{model: model, side: side}
}

func (s *Segmenter) Name() string { return UnetSegmentation.Name() }

func (s *Segmenter) Apply(ctx context.Context, in tensor.Tensor) (tensor.Tensor, bool, error) {
	if in.Dims() != 3 || in.DType != tensor.Uint8 {
		return tensor.Tensor{}, false, precondition(s.Name(), "H×W×C uint8", in)
	}
	x, err := Resample(in, s.side, s.side)
	if err != nil {
		return tensor.Tensor{}, false, err
	}
	if x, err = normalize(x); err != nil {
		return tensor.Tensor{}, false, err
	}
	if x, err = addBatch(x); err != nil {
		return tensor.Tensor{}, false, err
	}

	s.mu.Lock()
	probs, err := s.model.Predict(ctx, x)
	s.mu.Unlock()
	if err != nil {
		return tensor.Tensor{}, false, fmt.Errorf("%w: %s: %v", ErrSubModel, s.Name(), err)
	}
	n := s.side * s.side
	if len(probs) < n {
		return tensor.Tensor{}, false, fmt.Errorf("%w: %s: want %d outputs, got %d", ErrSubModel, s.Name(), n, len(probs))
	}

	mask := make([]bool, n)
	for i := range mask {
		mask[i] = probs[i] > SegmentationThreshold
	}
	return finishMask(mask, s.side, s.side)
}

// finishMask cleans a thresholded mask and converts it to a 0/1 tensor.
func finishMask(mask []bool, h, w int) (tensor.Tensor, bool, error) {
	removeSmallObjects(mask, h, w, MinObjectSize)
	fillSmallHoles(mask, h, w, MaxHoleSize)

	out := tensor.New(tensor.Float32, h, w, 1)
	count := 0
	for i, on := range mask {
		if on {
			out.Data[i] = 1
			count++
		}
	}
	if count < MinMaskPixels {
		return tensor.Tensor{}, false, nil
	}
	return out, true, nil
}
