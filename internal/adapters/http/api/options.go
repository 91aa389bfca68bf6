package api

import (
	"github.com/okian/gesture/internal/adapters/http/auth"
	"github.com/okian/gesture/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithGate protects the prediction and model routes.
func WithGate(g auth.Gate) Option {
	return func(s *Server) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithMaxUploadBytes caps the request body of POST /predictions.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
