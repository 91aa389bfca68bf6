// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/gesture/internal/adapters/http/auth"
	service "github.com/okian/gesture/internal/app"
	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/registry"
	"github.com/okian/gesture/pkg/logger"
)

const defaultMaxUpload = 10 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Predict(ctx context.Context, modelID int, image []byte) (model.PredictionResult, error)
	PredictAll(ctx context.Context, image []byte) ([]registry.Outcome, error)
	Models(ctx context.Context) ([]model.ModelWithStats, error)
	Feedback(ctx context.Context, modelID int, wrong bool) error
	Reload(ctx context.Context) (int, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps      Dependencies
	gate      auth.Gate
	maxUpload int64
	log       logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers. Requests are admitted
// without credentials unless WithGate is given.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		gate:          auth.AllowAll{},
		maxUpload:     defaultMaxUpload,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predictions", MetricsMiddleware(s.authorize(s.handlePredict), "predictions"))
	mux.HandleFunc("/predictions/", MetricsMiddleware(s.authorize(s.handlePredict), "predictions"))
	mux.HandleFunc("/models", MetricsMiddleware(s.authorize(s.handleListModels), "models"))
	mux.HandleFunc("/models/statistics", MetricsMiddleware(s.authorize(s.handleStatistics), "models_statistics"))
	mux.HandleFunc("/models/reload", MetricsMiddleware(s.authorize(s.handleReload), "models_reload"))
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Authorize(r); err != nil {
			status := auth.Status(err)
			code := "forbidden"
			if status == http.StatusUnauthorized {
				code = "unauthorized"
			}
			writeError(w, status, code, WrapKind("api.authorize", ErrForbidden, err))
			return
		}
		next(w, r)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps a service error to a response. Server-side causes are logged,
// never returned to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidImage), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	default:
		s.log.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}
