package service

import "github.com/cockroachdb/errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoSource   = errors.New("no page source configured")
)
