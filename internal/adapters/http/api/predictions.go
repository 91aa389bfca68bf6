package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

// AllModels as model_id runs every loaded model.
const AllModels = -1

// Multipart fields accepted for the uploaded image, in order of preference.
var imageFields = []string{"file", "image"}

type predictionResponse struct {
	Prediction *string `json:"prediction"`
}

type modelPrediction struct {
	ModelID    int     `json:"model_id"`
	Prediction *string `json:"prediction"`
	Error      string  `json:"error,omitempty"`
}

type predictAllResponse struct {
	Predictions []modelPrediction `json:"predictions"`
}

// handlePredict handles POST /predictions?model_id=N.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	modelID, err := strconv.Atoi(r.URL.Query().Get("model_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("model_id: %w", err)))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	image, err := readImage(r, s.maxUpload)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if modelID == AllModels {
		outs, err := s.deps.PredictAll(r.Context(), image)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		resp := predictAllResponse{Predictions: make([]modelPrediction, len(outs))}
		for i, o := range outs {
			resp.Predictions[i] = modelPrediction{ModelID: o.ModelID}
			if o.Err != nil {
				resp.Predictions[i].Error = "inference failed"
				continue
			}
			resp.Predictions[i].Prediction = o.Result.Prediction()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := s.deps.Predict(r.Context(), modelID, image)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, predictionResponse{Prediction: res.Prediction()})
}

func readImage(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("multipart form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var (
		f   multipart.File
		err error
	)
	for _, field := range imageFields {
		if f, _, err = r.FormFile(field); err == nil {
			break
		}
	}
	if err != nil {
		return nil, errors.New("missing image file field")
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return raw, nil
}
