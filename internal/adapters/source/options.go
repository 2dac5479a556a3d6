package source

import (
	"net/http"
	"time"

	"github.com/okian/muster/pkg/logger"
)

// Option applies a configuration option to the HTTPSource.
type Option func(*HTTPSource)

// WithServerPath sets the path of the event list page, relative to the base URL.
func WithServerPath(path string) Option {
	return func(s *HTTPSource) {
		if path != "" {
			s.serverPath = path
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient uses a copy of c, so its transport and cookies are shared
// but the caller's Timeout is left alone.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			cp := *c
			s.client = &cp
		}
	}
}

// WithRateLimit allows perSecond requests with the given burst. A non-positive
// rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *HTTPSource) {
		s.ratePerSec = perSecond
		if burst > 0 {
			s.burst = burst
		}
	}
}

// WithBreaker opens the circuit after failures consecutive errors and retries
// again after timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(s *HTTPSource) {
		if failures > 0 {
			s.breakerFailures = failures
		}
		if timeout > 0 {
			s.breakerTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the source.
func WithLogger(l logger.Logger) Option {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}
