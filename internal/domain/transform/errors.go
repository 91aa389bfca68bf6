package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTransform is returned when an id is not in the catalog.
	ErrUnknownTransform = errors.New("unknown transform")
	// ErrPrecondition is the kind every PreconditionError unwraps to.
	ErrPrecondition = errors.New("transform precondition failed")
	// ErrSubModel reports a detector or segmentation model that failed to run.
	ErrSubModel = errors.New("transform sub-model failed")
)

// PreconditionError reports a transform that received a value it cannot operate on.
type PreconditionError struct {
	Transform string
	Expected  string
	Got       string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("transform %s: expected %s, got %s", e.Transform, e.Expected, e.Got)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func precondition(name, expected string, got any) error {
	return &PreconditionError{Transform: name, Expected: expected, Got: fmt.Sprint(got)}
}
