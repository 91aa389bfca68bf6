package tensor

import "errors"

var (
	ErrEmptyShape    = errors.New("tensor has no shape")
	ErrBadShape      = errors.New("bad tensor shape")
	ErrShapeMismatch = errors.New("tensor shape does not match data")
	ErrDecode        = errors.New("cannot decode image")
	ErrImageTooLarge = errors.New("image too large")
)
