package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("model not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrSeed              = errors.New("invalid seed file")
)
