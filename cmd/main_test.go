package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gesture/internal/adapters/http/auth"
	"github.com/okian/gesture/internal/config"
	"github.com/okian/gesture/pkg/logger"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		cmd := newRootCmd()

		convey.Convey("Then it exposes every subcommand", func() {
			names := map[string]bool{}
			for _, c := range cmd.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"serve", "seed", "models", "token"} {
				convey.So(names[want], convey.ShouldBeTrue)
			}
		})
	})
}

func TestSeedAndModelsCommands(t *testing.T) {
	convey.Convey("Given a file database and a seed file", t, func() {
		dir := t.TempDir()
		seed := filepath.Join(dir, "seed.yaml")
		convey.So(os.WriteFile(seed, []byte(`
- name: resnet
  description: ResNet50 on the full frame
  path_to_model: resnet.onnx
  transformations: [rotate, resize_224, resnet50_preprocess, add_batch]
- name: gray
  path_to_model: gray.onnx
  transformations: [2, 4, 5, 6, 7]
`), 0o600), convey.ShouldBeNil)
		setEnv(t, map[string]string{
			"GESTURE_DB__DSN":    filepath.Join(dir, "gesture.db"),
			"GESTURE_SEED_FILE":  seed,
			"GESTURE_LOG_LEVEL":  "error",
			"GESTURE_MODELS_DIR": dir,
		})

		convey.Convey("When seeding twice", func() {
			out, err := run("seed")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "seeded 2 models")

			out, err = run("seed")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "nothing seeded")

			convey.Convey("Then models lists them with their chains", func() {
				out, err := run("models")
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "rotate,resize_224,resnet50_preprocess,add_batch")
				convey.So(out, convey.ShouldContainSubstring, "gray.onnx")

				out, err = run("models", "--json")
				convey.So(err, convey.ShouldBeNil)
				convey.So(strings.TrimSpace(out), convey.ShouldStartWith, "[")
			})
		})
	})
}

func TestTokenCommand(t *testing.T) {
	convey.Convey("Given an auth secret", t, func() {
		setEnv(t, map[string]string{
			"GESTURE_AUTH__SECRET_KEY": "k",
			"GESTURE_LOG_LEVEL":        "error",
		})

		convey.Convey("Then issued tokens pass the gate", func() {
			out, err := run("token", "--subject", "ops")
			convey.So(err, convey.ShouldBeNil)
			convey.So(auth.NewJWTGate("k", "gesture").Verify(strings.TrimSpace(out)), convey.ShouldBeNil)
		})
	})
}

func TestBuild(t *testing.T) {
	convey.Convey("Given a config over an empty in-memory database", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		dir := t.TempDir()
		cfg := config.New()
		cfg.DB.DSN = ":memory:"
		cfg.ModelsDir = dir
		cfg.SeedFile = filepath.Join(dir, "absent.yaml")
		cfg.Debug = true
		cfg.DebugDir = filepath.Join(dir, "debug")
		cfg.Events.WorkerCount = 1

		st, err := build(context.Background(), cfg)
		convey.So(err, convey.ShouldBeNil)
		defer st.close(context.Background())

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			st.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return w
		}

		convey.Convey("Then the API, docs and landing page are routed", func() {
			w := get("/models")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(strings.TrimSpace(w.Body.String()), convey.ShouldEqual, "[]")

			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/stats").Body.String(), convey.ShouldContainSubstring, `"modelsLoaded":0`)
		})

		convey.Convey("And the debug directory is created", func() {
			_, err := os.Stat(cfg.DebugDir)
			convey.So(err, convey.ShouldBeNil)
		})
	})

	convey.Convey("An unknown event sink fails the build", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		cfg := config.New()
		cfg.DB.DSN = ":memory:"
		cfg.SeedFile = ""
		cfg.Events.Sink = "pigeon"
		_, err := build(context.Background(), cfg)
		convey.So(err, convey.ShouldNotBeNil)
	})
}
