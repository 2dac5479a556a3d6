// Package config defines service configuration and its loading.
//
// Conventions:
// - Flat snake_case keys shared by the YAML file and MUSTER_ env vars.
// - New(ctx) returns the defaults; Load layers file and env over them.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// BaseURL is the root of the upstream server-activity site; event links
	// are resolved against it.
	BaseURL string `koanf:"base_url"`

	// ServerPath is the event list page of this community's server.
	ServerPath string `koanf:"server_path"`

	// MinParticipants is the player count an event must exceed to count.
	MinParticipants int `koanf:"min_participants"`

	// FetchTimeoutMS bounds every upstream request.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// FetchRatePerSec and FetchBurst shape upstream requests; a rate of 0
	// disables limiting.
	FetchRatePerSec float64 `koanf:"fetch_rate_per_sec"`
	FetchBurst      int     `koanf:"fetch_burst"`

	// BreakerFailures consecutive upstream failures open the circuit for
	// BreakerTimeoutMS.
	BreakerFailures  int `koanf:"breaker_failures"`
	BreakerTimeoutMS int `koanf:"breaker_timeout_ms"`

	// MaxPages bounds the catalog walk; 0 is unlimited.
	MaxPages int `koanf:"max_pages"`

	// QueueSize bounds the pending job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scrape workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxJobs caps the jobs remembered for GET /scrapes/{id}.
	MaxJobs int `koanf:"max_jobs"`

	// MetricsNamespace prefixes every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsEnabled turns metric recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is how often the server refreshes service gauges.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config holding the defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		BaseURL:          "http://stats.armasquads.com",
		ServerPath:       "/",
		MinParticipants:  5,
		FetchTimeoutMS:   20_000,
		FetchRatePerSec:  2,
		FetchBurst:       1,
		BreakerFailures:  5,
		BreakerTimeoutMS: 60_000,
		MaxPages:         0,
		QueueSize:        64,
		WorkerCount:      2,
		MaxJobs:          256,
		MetricsNamespace: "muster",
		MetricsEnabled:   true,
		MetricsRefreshMS: 10_000,
	}
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// BreakerTimeout returns BreakerTimeoutMS as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}
