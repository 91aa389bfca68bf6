package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/gesture/internal/domain/model"
)

type statisticsDTO struct {
	TotalPredictions int64 `json:"total_predictions"`
	WrongPredictions int64 `json:"wrong_predictions"`
}

type modelDTO struct {
	ID                  int           `json:"id"`
	Name                string        `json:"name"`
	Description         string        `json:"description"`
	PathToModel         string        `json:"path_to_model"`
	Transformations     []int         `json:"transformations"`
	TransformationNames []string      `json:"transformation_names"`
	Statistics          statisticsDTO `json:"statistics"`
}

func toModelDTO(m model.ModelWithStats) modelDTO { //nolint:gocritic // hugeParam: read-only conversion
	dto := modelDTO{
		ID:                  m.ID,
		Name:                m.Name,
		Description:         m.Description,
		PathToModel:         m.ArtifactPath,
		Transformations:     make([]int, len(m.TransformIDs)),
		TransformationNames: make([]string, len(m.TransformIDs)),
		Statistics: statisticsDTO{
			TotalPredictions: m.Statistics.TotalPredictions,
			WrongPredictions: m.Statistics.WrongPredictions,
		},
	}
	for i, id := range m.TransformIDs {
		dto.Transformations[i] = int(id)
		dto.TransformationNames[i] = id.Name()
	}
	return dto
}

// handleListModels handles GET /models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_models"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	all, err := s.deps.Models(r.Context())
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	out := make([]modelDTO, len(all))
	for i := range all {
		out[i] = toModelDTO(all[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStatistics handles PUT /models/statistics?model_id=N&wrong_prediction=bool.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_statistics"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	modelID, err := strconv.Atoi(q.Get("model_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("model_id: %w", err)))
		return
	}
	wrong, err := strconv.ParseBool(q.Get("wrong_prediction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("wrong_prediction: %w", err)))
		return
	}
	if err := s.deps.Feedback(r.Context(), modelID, wrong); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

type reloadResponse struct {
	Loaded int `json:"loaded"`
}

// handleReload handles POST /models/reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.reload"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	n, err := s.deps.Reload(r.Context())
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Loaded: n})
}
