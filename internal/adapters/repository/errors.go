package repository

import "github.com/cockroachdb/errors"

// Sentinel kinds for job store errors.
var (
	ErrNotFound = errors.New("job not found")
)
