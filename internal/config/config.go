// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and GESTURE_* env vars on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches the log handler to JSON output.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelsDir is the root that model artifact paths are resolved against.
	ModelsDir string `koanf:"models_dir"`

	// Debug enables best-effort dumps of intermediate transform outputs.
	Debug    bool   `koanf:"debug"`
	DebugDir string `koanf:"debug_dir"`

	// SegmentationModel and HandModel are sub-model file names under ModelsDir.
	SegmentationModel string `koanf:"segmentation_model"`
	HandModel         string `koanf:"hand_model"`

	// ONNXRuntimeLib optionally points at the onnxruntime shared library.
	ONNXRuntimeLib string `koanf:"onnxruntime_lib"`

	// InferenceTimeoutMS bounds one prediction (chain + forward pass).
	InferenceTimeoutMS int `koanf:"inference_timeout_ms"`

	// MaxUploadBytes caps the multipart body of POST /predictions.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxImagePixels caps width×height of an uploaded image, read from its header.
	MaxImagePixels int `koanf:"max_image_pixels"`

	// SeedFile is read by `gesture seed` and on startup when the store is empty.
	SeedFile string `koanf:"seed_file"`

	DB     DBConfig     `koanf:"db"`
	Auth   AuthConfig   `koanf:"auth"`
	Events EventsConfig `koanf:"events"`
}

// DBConfig selects the SQL backend.
type DBConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// AuthConfig configures the bearer token gate.
type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"`
	SecretKey string `koanf:"secret_key"`
	Issuer    string `koanf:"issuer"`
}

// EventsConfig sizes the prediction event pipeline.
type EventsConfig struct {
	QueueSize   int         `koanf:"queue_size"`
	WorkerCount int         `koanf:"worker_count"`
	Sink        string      `koanf:"sink"`
	Kafka       KafkaConfig `koanf:"kafka"`
}

// KafkaConfig is used when Events.Sink is "kafka".
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		ModelsDir:          "models",
		DebugDir:           "debug",
		SegmentationModel:  "unet_segmentation.onnx",
		HandModel:          "hand_landmark.onnx",
		InferenceTimeoutMS: 10_000,
		MaxUploadBytes:     10 << 20,
		MaxImagePixels:     25_000_000,
		SeedFile:           "seed.yaml",
		DB: DBConfig{
			Driver: "sqlite",
			DSN:    "file:gesture.db?cache=shared",
		},
		Auth: AuthConfig{
			Issuer: "gesture",
		},
		Events: EventsConfig{
			QueueSize:   10_000,
			WorkerCount: runtime.NumCPU(),
			Sink:        "log",
			Kafka: KafkaConfig{
				Topic: "gesture.predictions",
			},
		},
	}
}

// InferenceTimeout returns InferenceTimeoutMS as a duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.ModelsDir == "" {
		return fmt.Errorf("%w: models_dir must not be empty", ErrInvalidConfig)
	}
	if c.InferenceTimeoutMS <= 0 {
		return fmt.Errorf("%w: inference_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("%w: max_image_pixels must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.DB.Driver) {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("%w: unsupported db.driver %q", ErrInvalidConfig, c.DB.Driver)
	}
	if c.Auth.Enabled && c.Auth.SecretKey == "" {
		return fmt.Errorf("%w: auth.secret_key is required when auth is enabled", ErrInvalidConfig)
	}
	if c.Events.QueueSize <= 0 || c.Events.WorkerCount <= 0 {
		return fmt.Errorf("%w: events.queue_size and events.worker_count must be positive", ErrInvalidConfig)
	}
	switch c.Events.Sink {
	case "log":
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "" {
			return fmt.Errorf("%w: kafka sink needs events.kafka.brokers and events.kafka.topic", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported events.sink %q", ErrInvalidConfig, c.Events.Sink)
	}
	return nil
}
