// Package tensor holds the value threaded through a transform chain: a dense
// float32 array in row-major H×W×C (optionally batch-first) order.
package tensor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"slices"
)

// DType records the numeric range of the stored values.
type DType uint8

const (
	// Uint8 marks integer intensities in [0,255] stored as float32.
	Uint8 DType = iota
	// Float32 marks real-valued data, usually in [0,1].
	Float32
)

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Tensor is a shaped float32 buffer.
type Tensor struct {
	Shape []int
	Data  []float32
	DType DType
}

// New allocates a zeroed tensor.
func New(dtype DType, shape ...int) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float32, size(shape)), DType: dtype}
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Dims returns the number of axes.
func (t Tensor) Dims() int { return len(t.Shape) }

// Size returns the element count implied by Shape.
func (t Tensor) Size() int { return size(t.Shape) }

// Validate checks that Shape and Data agree.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return ErrEmptyShape
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: %v", ErrBadShape, t.Shape)
		}
	}
	if len(t.Data) != t.Size() {
		return fmt.Errorf("%w: shape %v wants %d elements, have %d", ErrShapeMismatch, t.Shape, t.Size(), len(t.Data))
	}
	return nil
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data), DType: t.DType}
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	if size(shape) != len(t.Data) {
		return Tensor{}, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.Shape, shape)
	}
	return Tensor{Shape: slices.Clone(shape), Data: t.Data, DType: t.DType}, nil
}

// HWC reports height, width and channels of a 2-D or 3-D tensor.
// A 2-D tensor has one implicit channel.
func (t Tensor) HWC() (h, w, c int, err error) {
	switch t.Dims() {
	case 2:
		return t.Shape[0], t.Shape[1], 1, nil
	case 3:
		return t.Shape[0], t.Shape[1], t.Shape[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: want H×W or H×W×C, got %v", ErrBadShape, t.Shape)
	}
}

// String is a short description for logs.
func (t Tensor) String() string {
	return fmt.Sprintf("tensor%v[%s]", t.Shape, t.DType)
}

// Decode parses an encoded image (JPEG, PNG or GIF).
func Decode(raw []byte) (image.Image, error) {
	return DecodeLimited(raw, 0)
}

// DecodeLimited is Decode with a cap on width×height, checked against the
// image header before any pixel is decoded. maxPixels <= 0 means no cap.
func DecodeLimited(raw []byte, maxPixels int) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// FromImage converts an image into an H×W×3 Uint8 RGB tensor. Alpha is dropped.
func FromImage(img image.Image) Tensor {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	t := New(Uint8, h, w, 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			t.Data[i] = float32(c.R)
			t.Data[i+1] = float32(c.G)
			t.Data[i+2] = float32(c.B)
			i += 3
		}
	}
	return t
}

// ToImage renders a 2-D or 3-D tensor (a leading batch axis of 1 is ignored).
// One channel yields *image.Gray, three yield *image.RGBA. Float32 data is
// read as [0,1] and scaled to [0,255].
func (t Tensor) ToImage() (image.Image, error) {
	v := t
	if v.Dims() == 4 && v.Shape[0] == 1 {
		v = Tensor{Shape: v.Shape[1:], Data: v.Data, DType: v.DType}
	}
	h, w, c, err := v.HWC()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	switch c {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, f := range v.Data {
			img.Pix[i] = v.byteAt(f)
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < h*w; p++ {
			img.Pix[p*4] = v.byteAt(v.Data[p*3])
			img.Pix[p*4+1] = v.byteAt(v.Data[p*3+1])
			img.Pix[p*4+2] = v.byteAt(v.Data[p*3+2])
			img.Pix[p*4+3] = 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d channels cannot be rendered", ErrBadShape, c)
	}
}

func (t Tensor) byteAt(f float32) uint8 {
	if t.DType == Float32 {
		f *= 255
	}
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return uint8(f + 0.5)
	}
}
