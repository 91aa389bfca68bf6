package model

import "github.com/okian/gesture/internal/domain/transform"

// ModelRecord is a stored model definition. TransformIDs are applied in order.
type ModelRecord struct {
	ID           int
	Name         string
	Description  string
	ArtifactPath string
	TransformIDs []transform.ID
}

// Statistics counts predictions and the ones users flagged as wrong.
type Statistics struct {
	TotalPredictions int64 `json:"total_predictions"`
	WrongPredictions int64 `json:"wrong_predictions"`
}

// ModelWithStats pairs a record with its statistics row.
type ModelWithStats struct {
	ModelRecord
	Statistics Statistics
}
