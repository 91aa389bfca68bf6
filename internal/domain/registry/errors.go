package registry

import "errors"

var (
	// ErrArtifactNotFound is returned by loaders when a model file is missing.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrModelNotFound is returned for ids absent from the live table.
	ErrModelNotFound = errors.New("model not found")
	// ErrDuplicateModel is returned when two records share an id.
	ErrDuplicateModel = errors.New("duplicate model id")
	// ErrInference wraps failures of the model forward pass or its decoding.
	ErrInference = errors.New("inference failed")
)
