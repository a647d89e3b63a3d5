package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/factorlens/pkg/logger"
)

const defaultMaxRequestBytes int64 = 32 << 20

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit enables a token bucket over the /v1 routes. rps <= 0 leaves
// the routes unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRequestBytes caps request bodies on the /v1 routes.
func WithMaxRequestBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRequestBytes = n
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
