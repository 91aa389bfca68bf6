// Package model contains domain models passed between layers.
package model

import "time"

// PredictionEvent describes one completed prediction. It is published
// asynchronously and never affects the response.
type PredictionEvent struct {
	EventID     string        `json:"event_id"`
	RequestID   string        `json:"request_id"`
	ModelID     int           `json:"model_id"`
	Label       string        `json:"label,omitempty"`
	NoDetection bool          `json:"no_detection"`
	Latency     time.Duration `json:"latency_ns"`
	At          time.Time     `json:"at"`
}

// NewPredictionEvent builds an event from a result.
func NewPredictionEvent(eventID, requestID string, modelID int, res PredictionResult, latency time.Duration, at time.Time) PredictionEvent {
	ev := PredictionEvent{
		EventID:     eventID,
		RequestID:   requestID,
		ModelID:     modelID,
		NoDetection: res.NoDetection(),
		Latency:     latency,
		At:          at,
	}
	if !res.NoDetection() {
		ev.Label = res.Label().String()
	}
	return ev
}
