package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/gesture/internal/domain/tensor"
)

// Hand landmark model contract: input 1×224×224×3 float [0,1] RGB; output
// 21 landmarks as (x, y, z) in input pixel space followed by a hand
// presence score.
const (
	HandInputSide     = 224
	HandLandmarkCount = 21
	handPresenceIndex = HandLandmarkCount * 3
	handMinPresence   = 0.5
)

// HandDetector masks the hand found in an RGB image. The output is a
// 224×224×1 uint8 mask (255 inside the landmark hull). No hand yields ok == false.
type HandDetector struct {
	mu    sync.Mutex
	model Predictor
}

// NewHandDetector wraps a landmark model.
func NewHandDetector(model Predictor) *HandDetector {
	return &HandDetector{model: model}
}

func (d *HandDetector) Name() string { return HandDetection.Name() }

func (d *HandDetector) Apply(ctx context.Context, in tensor.Tensor) (tensor.Tensor, bool, error) {
	if in.Dims() != 3 || in.Shape[2] != 3 || in.DType != tensor.Uint8 {
		return tensor.Tensor{}, false, precondition(d.Name(), "H×W×3 uint8 RGB", in)
	}
	x, err := Resample(in, HandInputSide, HandInputSide)
	if err != nil {
		return tensor.Tensor{}, false, err
	}
	if x, err = normalize(x); err != nil {
		return tensor.Tensor{}, false, err
	}
	if x, err = addBatch(x); err != nil {
		return tensor.Tensor{}, false, err
	}

	d.mu.Lock()
	out, err := d.model.Predict(ctx, x)
	d.mu.Unlock()
	if err != nil {
		return tensor.Tensor{}, false, fmt.Errorf("%w: %s: %v", ErrSubModel, d.Name(), err)
	}
	if len(out) <= handPresenceIndex {
		return tensor.Tensor{}, false, fmt.Errorf("%w: %s: want at least %d outputs, got %d", ErrSubModel, d.Name(), handPresenceIndex+1, len(out))
	}
	if out[handPresenceIndex] < handMinPresence {
		return tensor.Tensor{}, false, nil
	}

	pts := make([]point, HandLandmarkCount)
	for i := range pts {
		pts[i] = point{x: float64(out[i*3]), y: float64(out[i*3+1])}
	}
	return fillHull(convexHull(pts), HandInputSide, HandInputSide), true, nil
}

type point struct{ x, y float64 }

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns the hull in counter-clockwise order (monotone chain).
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	p := append([]point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].x != p[j].x {
			return p[i].x < p[j].x
		}
		return p[i].y < p[j].y
	})
	hull := make([]point, 0, 2*len(p))
	for _, q := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], q) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, q)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p[i])
	}
	return hull[:len(hull)-1]
}

// fillHull rasterizes a convex polygon; pixel centers inside or on an edge get 255.
func fillHull(hull []point, h, w int) tensor.Tensor {
	mask := tensor.New(tensor.Uint8, h, w, 1)
	if len(hull) < 3 {
		return mask
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := point{x: float64(x) + 0.5, y: float64(y) + 0.5}
			inside := true
			for i := range hull {
				if cross(hull[i], hull[(i+1)%len(hull)], c) < 0 {
					inside = false
					break
				}
			}
			if inside {
				mask.Data[y*w+x] = 255
			}
		}
	}
	return mask
}
