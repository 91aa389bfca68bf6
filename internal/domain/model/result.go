package model

import (
	"errors"
	"fmt"
)

// Label is a gesture class.
type Label int

// The label set, in model output order.
const (
	Rock Label = iota
	Paper
	Scissors
)

var labelNames = [...]string{"rock", "paper", "scissors"}

// LabelCount is the number of classes a model must score.
const LabelCount = len(labelNames)

// ErrShortOutput is returned when a model scores fewer classes than LabelCount.
var ErrShortOutput = errors.New("model output shorter than label set")

func (l Label) String() string {
	if l < 0 || int(l) >= len(labelNames) {
		return fmt.Sprintf("label(%d)", int(l))
	}
	return labelNames[l]
}

// Decode picks the class with the highest score. Ties go to the lowest index;
// scores beyond the label set are ignored.
func Decode(scores []float32) (Label, error) {
	if len(scores) < LabelCount {
		return 0, fmt.Errorf("%w: got %d scores, want %d", ErrShortOutput, len(scores), LabelCount)
	}
	best := 0
	for i := 1; i < LabelCount; i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return Label(best), nil
}

// PredictionResult is a label or the no-detection outcome.
type PredictionResult struct {
	label    Label
	detected bool
}

// Detected returns a result carrying label.
func Detected(l Label) PredictionResult { return PredictionResult{label: l, detected: true} }

// NoDetection is the result of a chain that found nothing to classify.
func NoDetection() PredictionResult { return PredictionResult{} }

// NoDetection reports whether nothing was classified.
func (r PredictionResult) NoDetection() bool { return !r.detected }

// Label returns the predicted label. Only meaningful when detected.
func (r PredictionResult) Label() Label { return r.label }

// Prediction returns the label name, or nil for no detection.
func (r PredictionResult) Prediction() *string {
	if !r.detected {
		return nil
	}
	s := r.label.String()
	return &s
}
