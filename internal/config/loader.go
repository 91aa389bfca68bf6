package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "GESTURE_"
	envConfigFile = "GESTURE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GESTURE_CONFIG is set
//  3. env (prefix GESTURE_, "__" separates nested keys)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// GESTURE_DB__DRIVER -> db.driver, GESTURE_EVENTS__KAFKA__BROKERS -> events.kafka.brokers
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if key == "config" {
			return "", nil
		}
		key = strings.ReplaceAll(key, "__", ".")
		if key == "events.kafka.brokers" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
