package service

import "errors"

// Sentinel kinds returned by Service. The HTTP layer maps them to statuses.
var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrModelNotFound = errors.New("model not found")
	ErrInference     = errors.New("inference failed")
)
