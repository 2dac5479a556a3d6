package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/domain/aggregate"
	"github.com/okian/muster/internal/domain/attendance"
	"github.com/okian/muster/internal/domain/catalog"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/internal/domain/window"
	"github.com/okian/muster/pkg/logger"
)

// Source serves both the event list and the event detail pages.
type Source interface {
	catalog.PageSource
	attendance.DetailSource
}

// Pipeline runs catalog, filter, extraction and aggregation for one window.
// It keeps no state between runs.
type Pipeline struct {
	builder         *catalog.Builder
	aggregator      *aggregate.Aggregator
	minParticipants int
	clock           window.Clock
	logger          logger.Logger
}

// NewPipeline wires the engine steps over src.
func NewPipeline(src Source, minParticipants, maxPages int, clock window.Clock, l logger.Logger) *Pipeline {
	if l == nil {
		l = logger.Get().Named("pipeline")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		builder:         catalog.NewBuilder(src, catalog.WithMaxPages(maxPages)),
		aggregator:      aggregate.New(attendance.NewExtractor(src)),
		minParticipants: minParticipants,
		clock:           clock,
		logger:          l,
	}
}

// Compute returns the time weighted attendance of every player over w.
func (p *Pipeline) Compute(ctx context.Context, w model.Window) (model.Result, error) {
	if err := w.Validate(); err != nil {
		return model.Result{}, err
	}
	start := time.Now()

	cat, err := p.builder.Build(ctx, w.Start)
	if err != nil {
		return model.Result{}, errors.Wrap(err, "build catalog")
	}

	filtered := window.Filter(cat, w, p.minParticipants, p.clock)
	p.logger.Info(ctx, "events selected",
		logger.Int("catalog", len(cat)),
		logger.Int("filtered", len(filtered)),
		logger.Time("start", w.Start),
		logger.Time("end", w.End),
	)

	res, err := p.aggregator.Aggregate(ctx, filtered)
	if err != nil {
		return model.Result{}, err
	}

	p.logger.Info(ctx, "attendance computed",
		logger.Int("players", len(res.PerPlayer)),
		logger.Float64("total_minutes", res.Stats.TotalMinutes),
		logger.Float64("average_attendance", res.Stats.AverageAttendance),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
