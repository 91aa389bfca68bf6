package inference

import "errors"

var (
	ErrRuntimeInit  = errors.New("onnx runtime init failed")
	ErrInputShape   = errors.New("input does not match model shape")
	ErrOutputType   = errors.New("unsupported model output type")
	ErrClosed       = errors.New("model closed")
	ErrArtifactPath = errors.New("model path outside models directory")
)
