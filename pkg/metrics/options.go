package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithConstLabels attaches constant labels (e.g. instance, version) to every collector.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if len(labels) > 0 {
			m.constLabels = prometheus.Labels(labels)
		}
	}
}

// WithPrometheusRegistry sets the registry collectors are registered on.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
