package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")
)

// Error tags a failure with the operation that produced it and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns err tagged with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
