package repository

import (
	"github.com/uptrace/bun"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/transform"
)

type modelRow struct {
	bun.BaseModel `bun:"table:models,alias:m"`

	ID              int       `bun:"id,pk,autoincrement"`
	Name            string    `bun:"name,notnull"`
	Description     string    `bun:"description"`
	PathToModel     string    `bun:"path_to_model,notnull"`
	Transformations []int     `bun:"transformations,notnull"`
	Statistics      *statsRow `bun:"rel:has-one,join:id=model_id"`
}

type statsRow struct {
	bun.BaseModel `bun:"table:model_statistics,alias:s"`

	ID               int64 `bun:"id,pk,autoincrement"`
	ModelID          int   `bun:"model_id,notnull,unique"`
	TotalPredictions int64 `bun:"total_predictions,notnull,default:0"`
	WrongPredictions int64 `bun:"wrong_predictions,notnull,default:0"`
}

func (r modelRow) toRecord() model.ModelRecord {
	ids := make([]transform.ID, len(r.Transformations))
	for i, id := range r.Transformations {
		ids[i] = transform.ID(id)
	}
	return model.ModelRecord{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		ArtifactPath: r.PathToModel,
		TransformIDs: ids,
	}
}

func fromRecord(rec model.ModelRecord) modelRow {
	ids := make([]int, len(rec.TransformIDs))
	for i, id := range rec.TransformIDs {
		ids[i] = int(id)
	}
	return modelRow{
		ID:              rec.ID,
		Name:            rec.Name,
		Description:     rec.Description,
		PathToModel:     rec.ArtifactPath,
		Transformations: ids,
	}
}
