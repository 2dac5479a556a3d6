package model

import "github.com/cockroachdb/errors"

// Error kinds shared by the pipeline. Concrete errors are marked with one of
// these so callers can match with errors.Is while keeping the full chain.
var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrNoQualifyingEvents = errors.New("no events took place in specified time frame")
	ErrMalformedRow       = errors.New("malformed attendance row")
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrPageLimit          = errors.New("page limit reached")
)

// SourceError marks err as a SourceUnavailable failure.
func SourceError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrSourceUnavailable)
}
