package config

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "MUSTER_"
	envConfig  = "MUSTER_CONFIG"
	keyDivider = "."
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if MUSTER_CONFIG is set
//  3. env (prefix MUSTER_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(keyDivider)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", path), ErrLoadConfig)
		}
	}

	// MUSTER_QUEUE_SIZE -> queue_size; underscores are kept to match the flat keys.
	envProvider := env.Provider(envPrefix, keyDivider, func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read environment"), ErrLoadConfig)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode config"), ErrLoadConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Mark(errors.Newf(format, args...), ErrInvalidConfig)
	}
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.BaseURL == "":
		return invalid("base_url must not be empty")
	case c.MinParticipants < 0:
		return invalid("min_participants must not be negative, got %d", c.MinParticipants)
	case c.FetchTimeoutMS <= 0:
		return invalid("fetch_timeout_ms must be positive, got %d", c.FetchTimeoutMS)
	case c.BreakerFailures < 0:
		return invalid("breaker_failures must not be negative, got %d", c.BreakerFailures)
	case c.MetricsRefreshMS <= 0:
		return invalid("metrics_refresh_ms must be positive, got %d", c.MetricsRefreshMS)
	case c.MaxPages < 0:
		return invalid("max_pages must not be negative, got %d", c.MaxPages)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
