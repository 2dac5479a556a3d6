// Package aggregate combines per-event attendance into a duration weighted
// ratio per player.
package aggregate

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/internal/domain/window"
	"github.com/okian/muster/pkg/logger"
	"github.com/okian/muster/pkg/metrics"
)

// Extractor returns normalized ratios for one event.
type Extractor interface {
	Extract(ctx context.Context, sourceRef string) (map[string]float64, error)
}

// Aggregator weights each event's ratios by its clipped duration.
type Aggregator struct {
	extractor Extractor
	logger    logger.Logger
}

// New creates an Aggregator using extractor for per-event ratios.
func New(extractor Extractor, opts ...Option) *Aggregator {
	a := &Aggregator{
		extractor: extractor,
		logger:    logger.Get().Named("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate visits filtered events by ascending effective start and returns
// sum(ratio * minutes) / total minutes per player. Players absent from an
// event contribute nothing for it.
func (a *Aggregator) Aggregate(ctx context.Context, filtered map[time.Time]model.FilteredEvent) (model.Result, error) {
	if len(filtered) == 0 {
		return model.Result{}, errors.Wrap(model.ErrNoQualifyingEvents, "aggregate")
	}

	weighted := make(map[string]float64)
	total := 0.0
	for _, start := range window.SortedStarts(filtered) {
		if err := ctx.Err(); err != nil {
			return model.Result{}, errors.Wrap(err, "aggregate")
		}
		ev := filtered[start]

		ratios, err := a.extractor.Extract(ctx, ev.SourceRef)
		if err != nil {
			return model.Result{}, err
		}

		minutes := ev.DurationMinutes()
		if ev.EndAssumed {
			metrics.RecordAssumedEnd()
			a.logger.Warn(ctx, "event has no recorded end, using assumed end",
				logger.String("event", ev.SourceRef),
				logger.Time("effective_end", ev.EffectiveEnd),
			)
		}
		for name, ratio := range ratios {
			weighted[name] += ratio * minutes
		}
		total += minutes

		a.logger.Debug(ctx, "event aggregated",
			logger.String("event", ev.SourceRef),
			logger.Float64("minutes", minutes),
			logger.Int("players", len(ratios)),
		)
	}
	metrics.RecordEventsFiltered(len(filtered))

	if total <= 0 {
		return model.Result{}, errors.Wrapf(model.ErrNoQualifyingEvents, "qualifying events cover %.0f minutes", total)
	}

	sum := 0.0
	for name := range weighted {
		weighted[name] /= total
		sum += weighted[name]
	}
	avg := 0.0
	if len(weighted) > 0 {
		avg = sum / float64(len(weighted))
	}
	metrics.UpdatePlayersScored(len(weighted))

	return model.Result{
		PerPlayer: weighted,
		Stats: model.Stats{
			TotalMinutes:      total,
			AverageAttendance: avg,
		},
	}, nil
}
