package service

import (
	"github.com/okian/gesture/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvents installs the queue completed predictions are published to.
func WithEvents(q EventQueue) Option {
	return func(s *Service) { s.events = q }
}

// WithIDGenerator overrides how request and event ids are made.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithTransformCache makes Reload retry transforms whose sub-models failed
// to open.
func WithTransformCache(c TransformCache) Option {
	return func(s *Service) { s.transforms = c }
}

// WithMaxImagePixels caps width×height of decoded uploads.
func WithMaxImagePixels(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}
