package repository

import (
	"time"

	"github.com/okian/gesture/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMaxOpenConns caps the connection pool. In-memory SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}
