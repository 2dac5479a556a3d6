package api

import "github.com/cockroachdb/errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// wrapKind marks cause with kind and prefixes the operation name.
func wrapKind(op string, kind, cause error) error {
	return errors.Mark(errors.Wrap(cause, op), kind)
}
