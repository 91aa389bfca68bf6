package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gesture/internal/adapters/http/api"
	"github.com/okian/gesture/internal/adapters/http/auth"
	service "github.com/okian/gesture/internal/app"
	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/internal/domain/registry"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
)

type mockDeps struct {
	lastModel int
	lastImage []byte
	result    model.PredictionResult
	err       error
	outcomes  []registry.Outcome
	feedback  []bool
	models    []model.ModelWithStats
	reloaded  int
}

func (m *mockDeps) Predict(_ context.Context, id int, image []byte) (model.PredictionResult, error) {
	m.lastModel, m.lastImage = id, image
	return m.result, m.err
}

func (m *mockDeps) PredictAll(_ context.Context, image []byte) ([]registry.Outcome, error) {
	m.lastImage = image
	return m.outcomes, m.err
}

func (m *mockDeps) Models(context.Context) ([]model.ModelWithStats, error) { return m.models, m.err }

func (m *mockDeps) Feedback(_ context.Context, id int, wrong bool) error {
	if m.err != nil {
		return m.err
	}
	m.lastModel = id
	m.feedback = append(m.feedback, wrong)
	return nil
}

func (m *mockDeps) Reload(context.Context) (int, error) { return m.reloaded, m.err }

type mockStats struct{}

func (mockStats) GetStats() map[string]any { return map[string]any{"modelsLoaded": 2} }

func upload(t *testing.T, url, field string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "hand.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(body)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, opts...).Register(context.Background(), mux)
	return mux
}

func TestPredictions(t *testing.T) {
	Convey("Given the API over mock dependencies", t, func() {
		deps := &mockDeps{result: model.Detected(model.Scissors)}
		mux := newMux(deps)

		Convey("A detected label is returned by name", func() {
			w := serve(mux, upload(t, "/predictions?model_id=3", "file", []byte("img")))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"prediction":"scissors"}`+"\n")
			So(deps.lastModel, ShouldEqual, 3)
			So(string(deps.lastImage), ShouldEqual, "img")
		})

		Convey("The image field name is accepted too", func() {
			w := serve(mux, upload(t, "/predictions/?model_id=1", "image", []byte("x")))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("No detection is a null prediction", func() {
			deps.result = model.NoDetection()
			w := serve(mux, upload(t, "/predictions?model_id=1", "file", []byte("x")))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"prediction":null}`+"\n")
		})

		Convey("Service errors map to statuses", func() {
			cases := []struct {
				err  error
				code int
			}{
				{service.ErrInvalidImage, http.StatusBadRequest},
				{service.ErrModelNotFound, http.StatusNotFound},
				{errors.Join(service.ErrInference, errors.New("secret cause")), http.StatusInternalServerError},
			}
			for _, c := range cases {
				deps.err = c.err
				w := serve(mux, upload(t, "/predictions?model_id=1", "file", []byte("x")))
				So(w.Code, ShouldEqual, c.code)
				So(w.Body.String(), ShouldNotContainSubstring, "secret cause")
			}
		})

		Convey("Bad requests are rejected before the service", func() {
			So(serve(mux, upload(t, "/predictions?model_id=abc", "file", []byte("x"))).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, upload(t, "/predictions?model_id=1", "photo", []byte("x"))).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, httptest.NewRequest(http.MethodGet, "/predictions?model_id=1", http.NoBody)).Code, ShouldEqual, http.StatusNotFound)
			So(deps.lastImage, ShouldBeNil)
		})

		Convey("Oversized uploads are refused", func() {
			small := newMux(deps, api.WithMaxUploadBytes(64))
			w := serve(small, upload(t, "/predictions?model_id=1", "file", bytes.Repeat([]byte("a"), 4096)))
			So(w.Code, ShouldBeIn, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest})
			So(deps.lastImage, ShouldBeNil)
		})

		Convey("model_id -1 returns every model's prediction", func() {
			deps.outcomes = []registry.Outcome{
				{ModelID: 1, Result: model.Detected(model.Rock)},
				{ModelID: 2, Result: model.NoDetection()},
				{ModelID: 3, Err: service.ErrInference},
			}
			w := serve(mux, upload(t, "/predictions?model_id=-1", "file", []byte("x")))
			So(w.Code, ShouldEqual, http.StatusOK)
			var body struct {
				Predictions []struct {
					ModelID    int     `json:"model_id"`
					Prediction *string `json:"prediction"`
					Error      string  `json:"error"`
				} `json:"predictions"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Predictions, ShouldHaveLength, 3)
			So(*body.Predictions[0].Prediction, ShouldEqual, "rock")
			So(body.Predictions[1].Prediction, ShouldBeNil)
			So(body.Predictions[1].Error, ShouldBeEmpty)
			So(body.Predictions[2].Error, ShouldEqual, "inference failed")
		})
	})
}

func TestModels(t *testing.T) {
	Convey("Given the API over mock dependencies", t, func() {
		deps := &mockDeps{
			models: []model.ModelWithStats{{
				ModelRecord: model.ModelRecord{ID: 1, Name: "resnet", ArtifactPath: "r.onnx",
					TransformIDs: []transform.ID{transform.Rotate, transform.ResNet50Preprocess}},
				Statistics: model.Statistics{TotalPredictions: 5, WrongPredictions: 2},
			}},
			reloaded: 4,
		}
		mux := newMux(deps)

		Convey("GET /models lists records with statistics", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/models", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			var out []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
			So(out, ShouldHaveLength, 1)
			So(out[0]["path_to_model"], ShouldEqual, "r.onnx")
			So(out[0]["transformations"], ShouldResemble, []any{1.0, 10.0})
			So(out[0]["transformation_names"], ShouldResemble, []any{"rotate", "resnet50_preprocess"})
			So(out[0]["statistics"], ShouldResemble, map[string]any{"total_predictions": 5.0, "wrong_predictions": 2.0})
		})

		Convey("PUT /models/statistics records feedback", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPut, "/models/statistics?model_id=1&wrong_prediction=true", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "true\n")
			So(deps.feedback, ShouldResemble, []bool{true})
		})

		Convey("Feedback validates its parameters", func() {
			So(serve(mux, httptest.NewRequest(http.MethodPut, "/models/statistics?model_id=1", http.NoBody)).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, httptest.NewRequest(http.MethodPut, "/models/statistics?wrong_prediction=false", http.NoBody)).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Feedback for an unknown model is 404", func() {
			deps.err = service.ErrModelNotFound
			w := serve(mux, httptest.NewRequest(http.MethodPut, "/models/statistics?model_id=9&wrong_prediction=false", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("POST /models/reload reports the loaded count", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/models/reload", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"loaded":4}`+"\n")
		})

		Convey("/stats and /healthz are served", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "modelsLoaded")

			w = serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "gesture_")
		})
	})
}

func TestAuthGate(t *testing.T) {
	Convey("Given the API behind a JWT gate", t, func() {
		now := time.Now()
		gate := auth.NewJWTGate("k", "gesture", auth.WithClock(func() time.Time { return now }))
		deps := &mockDeps{result: model.Detected(model.Rock)}
		mux := newMux(deps, api.WithGate(gate))

		Convey("Requests without a bearer token are forbidden", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/models", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("Expired tokens are unauthorized", func() {
			tok, err := gate.Issue("u", time.Second)
			So(err, ShouldBeNil)
			now = now.Add(time.Minute)
			req := httptest.NewRequest(http.MethodGet, "/models", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+tok)
			So(serve(mux, req).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Valid tokens pass", func() {
			tok, err := gate.Issue("u", time.Hour)
			So(err, ShouldBeNil)
			req := upload(t, "/predictions?model_id=1", "file", []byte("x"))
			req.Header.Set("Authorization", "Bearer "+tok)
			So(serve(mux, req).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Metrics stay public", func() {
			So(serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)).Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("WrapKind exposes both kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(api.NewKind("api.op", api.ErrNotFound).Error(), ShouldEqual, "api.op: not found")
	})
}
