package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/gesture/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "models")
				convey.So(cfg.DB.Driver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.Events.Sink, convey.ShouldEqual, "log")
				convey.So(cfg.Auth.Enabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GESTURE_ADDR", ":8080")
			_ = os.Setenv("GESTURE_DEBUG", "true")
			_ = os.Setenv("GESTURE_INFERENCE_TIMEOUT_MS", "2500")
			_ = os.Setenv("GESTURE_DB__DRIVER", "postgres")
			_ = os.Setenv("GESTURE_DB__DSN", "postgres://u:p@db/gesture")
			_ = os.Setenv("GESTURE_EVENTS__QUEUE_SIZE", "64")
			_ = os.Setenv("GESTURE_MAX_IMAGE_PIXELS", "4000000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then flat and nested keys override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Debug, convey.ShouldBeTrue)
				convey.So(cfg.InferenceTimeoutMS, convey.ShouldEqual, 2500)
				convey.So(cfg.InferenceTimeout().Seconds(), convey.ShouldEqual, 2.5)
				convey.So(cfg.DB.Driver, convey.ShouldEqual, "postgres")
				convey.So(cfg.DB.DSN, convey.ShouldEqual, "postgres://u:p@db/gesture")
				convey.So(cfg.Events.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.MaxImagePixels, convey.ShouldEqual, 4_000_000)
			})
		})

		convey.Convey("When kafka brokers come from a comma separated env var", func() {
			_ = os.Setenv("GESTURE_EVENTS__SINK", "kafka")
			_ = os.Setenv("GESTURE_EVENTS__KAFKA__BROKERS", "k1:9092, k2:9092,")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the list is split and trimmed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Events.Kafka.Brokers, convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
				convey.So(cfg.Events.Kafka.Topic, convey.ShouldEqual, "gesture.predictions")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
models_dir: /srv/models
segmentation_model: seg.onnx
db:
  driver: mysql
  dsn: "u:p@tcp(db:3306)/gesture"
auth:
  enabled: true
  secret_key: s3cret
events:
  worker_count: 3
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GESTURE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/srv/models")
				convey.So(cfg.SegmentationModel, convey.ShouldEqual, "seg.onnx")
				convey.So(cfg.HandModel, convey.ShouldEqual, "hand_landmark.onnx")
				convey.So(cfg.DB.Driver, convey.ShouldEqual, "mysql")
				convey.So(cfg.Auth.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Auth.Issuer, convey.ShouldEqual, "gesture")
				convey.So(cfg.Events.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Events.QueueSize, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nmodels_dir: /srv/models\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GESTURE_CONFIG", tmpFile)
			_ = os.Setenv("GESTURE_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/srv/models")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GESTURE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GESTURE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("GESTURE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GESTURE_INFERENCE_TIMEOUT_MS", "soon")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, "GESTURE_") {
			_ = os.Unsetenv(key)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "gesture-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
