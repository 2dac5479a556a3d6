package source

import "github.com/cockroachdb/errors"

// Sentinel kinds for page source failures. Every error returned by HTTPSource
// is additionally marked model.ErrSourceUnavailable.
var (
	ErrTableNotFound = errors.New("full events table not found")
	ErrMalformedPage = errors.New("malformed page")
	ErrBadStatus     = errors.New("unexpected upstream status")
)
