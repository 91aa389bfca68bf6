package transform

import (
	"math"

	"github.com/okian/gesture/internal/domain/tensor"
)

// rotatePortrait turns an H×W(×C) portrait image 90° counter-clockwise so it
// becomes landscape. Landscape and square inputs pass through.
func rotatePortrait(in tensor.Tensor) (tensor.Tensor, error) {
	h, w, c, err := in.HWC()
	if err != nil {
		return tensor.Tensor{}, precondition(Rotate.Name(), "H×W or H×W×C", in.Shape)
	}
	if h <= w {
		return in, nil
	}
	shape := []int{w, h}
	if in.Dims() == 3 {
		shape = append(shape, c)
	}
	out := tensor.New(in.DType, shape...)
	// new (r, col) = old (col, w-1-r)
	for r := 0; r < w; r++ {
		for col := 0; col < h; col++ {
			src := (col*w + (w - 1 - r)) * c
			dst := (r*h + col) * c
			copy(out.Data[dst:dst+c], in.Data[src:src+c])
		}
	}
	return out, nil
}

// grayscale converts RGB to one luminance channel (ITU-R 601-2) and always
// keeps a channel axis. Uint8 data is rounded to whole intensities.
func grayscale(in tensor.Tensor) (tensor.Tensor, error) {
	h, w, c, err := in.HWC()
	if err != nil {
		return tensor.Tensor{}, precondition(Grayscale.Name(), "H×W or H×W×C", in.Shape)
	}
	switch c {
	case 1:
		return in.Reshape(h, w, 1)
	case 3:
	default:
		return tensor.Tensor{}, precondition(Grayscale.Name(), "1 or 3 channels", c)
	}
	out := tensor.New(in.DType, h, w, 1)
	for p := range out.Data {
		r, g, b := in.Data[p*3], in.Data[p*3+1], in.Data[p*3+2]
		l := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		if in.DType == tensor.Uint8 {
			l = math.Round(l)
		}
		out.Data[p] = float32(l)
	}
	return out, nil
}

// normalize maps [0,255] intensities to float [0,1]. It only accepts an
// unbatched H×W×C uint8 value; anything else is a chain ordering bug.
func normalize(in tensor.Tensor) (tensor.Tensor, error) {
	if in.Dims() != 3 {
		return tensor.Tensor{}, precondition(Normalize.Name(), "3-D H×W×C input", in.Shape)
	}
	if in.DType != tensor.Uint8 {
		return tensor.Tensor{}, precondition(Normalize.Name(), "uint8 input", in.DType)
	}
	out := tensor.New(tensor.Float32, in.Shape...)
	for i, v := range in.Data {
		out.Data[i] = v / 255
	}
	return out, nil
}

// addChannel appends a trailing singleton axis to H×W; 3-D passes through.
func addChannel(in tensor.Tensor) (tensor.Tensor, error) {
	switch in.Dims() {
	case 2:
		return in.Reshape(in.Shape[0], in.Shape[1], 1)
	case 3:
		return in, nil
	default:
		return tensor.Tensor{}, precondition(AddChannel.Name(), "2-D or 3-D input", in.Shape)
	}
}

// addBatch prepends a batch axis of 1 to H×W×C.
func addBatch(in tensor.Tensor) (tensor.Tensor, error) {
	if in.Dims() != 3 {
		return tensor.Tensor{}, precondition(AddBatch.Name(), "3-D H×W×C input", in.Shape)
	}
	return in.Reshape(append([]int{1}, in.Shape...)...)
}

// ImageNet channel means in BGR order, as the Keras ResNet50 "caffe" mode uses.
var resnetMeansBGR = [3]float32{103.939, 116.779, 123.68}

// ResNetInputSide is the fixed input side of the ResNet50 backbone.
const ResNetInputSide = 224

// resnet50Preprocess converts a 224×224×3 uint8 RGB image to zero-centered BGR.
func resnet50Preprocess(in tensor.Tensor) (tensor.Tensor, error) {
	if in.Dims() != 3 || in.Shape[0] != ResNetInputSide || in.Shape[1] != ResNetInputSide || in.Shape[2] != 3 {
		return tensor.Tensor{}, precondition(ResNet50Preprocess.Name(), "shape [224 224 3]", in.Shape)
	}
	if in.DType != tensor.Uint8 {
		return tensor.Tensor{}, precondition(ResNet50Preprocess.Name(), "uint8 input", in.DType)
	}
	out := tensor.New(tensor.Float32, in.Shape...)
	for p := 0; p < len(in.Data); p += 3 {
		out.Data[p] = in.Data[p+2] - resnetMeansBGR[0]
		out.Data[p+1] = in.Data[p+1] - resnetMeansBGR[1]
		out.Data[p+2] = in.Data[p] - resnetMeansBGR[2]
	}
	return out, nil
}
