// Package attendance decodes per-player presence ratios from an event's
// participant table.
package attendance

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
)

// Directive keys of the presence bar.
const (
	MarginLeft  = "margin-left"
	Width       = "width"
	MarginRight = "margin-right"
)

// zeroThreshold below which the event maximum is treated as no data.
const zeroThreshold = 1e-4

// DetailSource returns the participant rows of one event.
type DetailSource interface {
	FetchEventAttendance(ctx context.Context, eventURL string) ([]model.ParticipantRow, error)
}

// Extractor turns participant rows into normalized ratios.
type Extractor struct {
	source DetailSource
	logger logger.Logger
}

// NewExtractor creates an Extractor reading from source.
func NewExtractor(source DetailSource, opts ...Option) *Extractor {
	e := &Extractor{
		source: source,
		logger: logger.Get().Named("attendance"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns each participant's ratio for the event at sourceRef, with
// the top attendee at exactly 1.0. Rows for the same player are summed.
func (e *Extractor) Extract(ctx context.Context, sourceRef string) (map[string]float64, error) {
	rows, err := e.source.FetchEventAttendance(ctx, sourceRef)
	if err != nil {
		if !errors.Is(err, model.ErrSourceUnavailable) {
			err = errors.Mark(err, model.ErrSourceUnavailable)
		}
		return nil, errors.Wrapf(err, "fetch attendance %s", sourceRef)
	}

	ratios, err := Ratios(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "event %s", sourceRef)
	}

	e.logger.Debug(ctx, "attendance extracted",
		logger.String("event", sourceRef),
		logger.Int("rows", len(rows)),
		logger.Int("players", len(ratios)),
	)
	return ratios, nil
}

// Ratios sums the width of each player's rows and normalizes by the maximum.
func Ratios(rows []model.ParticipantRow) (map[string]float64, error) {
	raw := make(map[string]float64, len(rows))
	for i, row := range rows {
		parts, err := ParseDirective(row.Directive)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d (%s)", i, row.PlayerName)
		}
		width, ok := parts[Width]
		if !ok {
			return nil, errors.Mark(errors.Newf("row %d (%s): no %s in %q", i, row.PlayerName, Width, row.Directive),
				model.ErrMalformedRow)
		}
		raw[row.PlayerName] += width / 100.0
	}

	maxRatio := 0.0
	for _, r := range raw {
		if r > maxRatio {
			maxRatio = r
		}
	}
	if maxRatio < zeroThreshold {
		maxRatio = 1.0
	}
	for name := range raw {
		raw[name] /= maxRatio
	}
	return raw, nil
}

// ParseDirective decodes "key:NN%; key:NN%;" into percentage values by key.
// Order is free, whitespace and a trailing semicolon are allowed. Values must
// be finite and non-negative.
func ParseDirective(s string) (map[string]float64, error) {
	out := make(map[string]float64, 3)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.Mark(errors.Newf("directive %q has no value", part), model.ErrMalformedRow)
		}
		value = strings.TrimSuffix(strings.TrimSpace(value), "%")
		pct, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "directive %q", part), model.ErrMalformedRow)
		}
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
			return nil, errors.Mark(errors.Newf("directive %q is not a percentage", part), model.ErrMalformedRow)
		}
		out[strings.ToLower(strings.TrimSpace(key))] = pct
	}
	return out, nil
}
