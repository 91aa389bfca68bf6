package transform

import (
	"image"

	"github.com/nfnt/resize"

	"github.com/okian/gesture/internal/domain/tensor"
)

// Resample resizes a 2-D or 3-D (1 or 3 channel) tensor to height×width with a
// Lanczos3 filter. Dims and dtype are preserved. Float data is read as [0,1].
func Resample(in tensor.Tensor, height, width int) (tensor.Tensor, error) {
	h, w, c, err := in.HWC()
	if err != nil {
		return tensor.Tensor{}, err
	}
	if h == height && w == width {
		return in, nil
	}
	scale, inv := float32(257), float32(1)/257
	if in.DType == tensor.Float32 {
		scale, inv = 65535, float32(1)/65535
	}

	var resized image.Image
	switch c {
	case 1:
		src := image.NewGray16(image.Rect(0, 0, w, h))
		for i, v := range in.Data {
			src.Pix[i*2], src.Pix[i*2+1] = split16(v * scale)
		}
		resized = resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
	case 3:
		src := image.NewRGBA64(image.Rect(0, 0, w, h))
		for p := 0; p < h*w; p++ {
			for k := 0; k < 3; k++ {
				src.Pix[p*8+k*2], src.Pix[p*8+k*2+1] = split16(in.Data[p*3+k] * scale)
			}
			src.Pix[p*8+6], src.Pix[p*8+7] = 0xff, 0xff
		}
		resized = resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
	default:
		return tensor.Tensor{}, precondition("resize", "1 or 3 channels", c)
	}

	shape := []int{height, width}
	if in.Dims() == 3 {
		shape = append(shape, c)
	}
	out := tensor.New(in.DType, shape...)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			if c == 1 {
				out.Data[i] = quantize(float32(r)*inv, in.DType)
				i++
				continue
			}
			out.Data[i] = quantize(float32(r)*inv, in.DType)
			out.Data[i+1] = quantize(float32(g)*inv, in.DType)
			out.Data[i+2] = quantize(float32(b)*inv, in.DType)
			i += 3
		}
	}
	return out, nil
}

func split16(v float32) (byte, byte) {
	switch {
	case v <= 0:
		return 0, 0
	case v >= 65535:
		return 0xff, 0xff
	}
	u := uint16(v + 0.5)
	return byte(u >> 8), byte(u)
}

func quantize(v float32, dtype tensor.DType) float32 {
	if dtype != tensor.Uint8 {
		return v
	}
	return float32(int(v + 0.5))
}

func resizeTo(id ID, side int) Func {
	return NewFunc(id.Name(), func(in tensor.Tensor) (tensor.Tensor, error) {
		if _, _, _, err := in.HWC(); err != nil {
			return tensor.Tensor{}, precondition(id.Name(), "H×W or H×W×C", in.Shape)
		}
		return Resample(in, side, side)
	})
}
