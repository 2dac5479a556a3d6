// Package catalog walks the upstream event list until it reaches far enough
// back in time to cover a query start.
package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
	"github.com/okian/muster/pkg/metrics"
)

// PageSource returns the events of one list page, most recent first.
// An empty page means history is exhausted.
type PageSource interface {
	FetchEventListPage(ctx context.Context, page int) ([]model.EventListing, error)
}

// Catalog maps event start times to events.
type Catalog map[time.Time]model.Event

// Earliest returns the smallest start time, or false for an empty catalog.
func (c Catalog) Earliest() (time.Time, bool) {
	var earliest time.Time
	found := false
	for start := range c {
		if !found || start.Before(earliest) {
			earliest = start
			found = true
		}
	}
	return earliest, found
}

// Builder builds catalogs from a PageSource. It holds no per-run state.
type Builder struct {
	source   PageSource
	maxPages int
	logger   logger.Logger
}

// NewBuilder creates a Builder reading from source.
func NewBuilder(source PageSource, opts ...Option) *Builder {
	b := &Builder{
		source: source,
		logger: logger.Get().Named("catalog"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches pages 1, 2, ... until the catalog is non-empty and its earliest
// event starts at or before queryStart, or until the source runs dry.
func (b *Builder) Build(ctx context.Context, queryStart time.Time) (Catalog, error) {
	catalog := make(Catalog)

	for page := 1; ; page++ {
		if earliest, ok := catalog.Earliest(); ok && !earliest.After(queryStart) {
			break
		}
		if b.maxPages > 0 && page > b.maxPages {
			return nil, errors.Mark(
				errors.Newf("no event at or before %s within %d pages", queryStart.Format(model.TimestampLayout), b.maxPages),
				model.ErrPageLimit)
		}

		listings, err := b.source.FetchEventListPage(ctx, page)
		if err != nil {
			return nil, markSource(errors.Wrapf(err, "fetch event list page %d", page))
		}
		metrics.RecordPageFetched()

		if len(listings) == 0 {
			b.logger.Debug(ctx, "event history exhausted", logger.Int("page", page))
			break
		}

		for _, l := range listings {
			ev, err := toEvent(l)
			if err != nil {
				return nil, errors.Wrapf(err, "page %d", page)
			}
			catalog[ev.Start] = ev
		}
		metrics.RecordEventsDiscovered(len(listings))
		b.logger.Debug(ctx, "event list page merged",
			logger.Int("page", page),
			logger.Int("listings", len(listings)),
			logger.Int("catalog_size", len(catalog)),
		)
	}

	b.logger.Info(ctx, "catalog built",
		logger.Int("events", len(catalog)),
		logger.Time("query_start", queryStart),
	)
	return catalog, nil
}

func toEvent(l model.EventListing) (model.Event, error) {
	start, err := model.ParseTimestamp(l.Start)
	if err != nil {
		return model.Event{}, markSource(errors.Wrapf(err, "event %s start", l.EventURL))
	}
	ev := model.Event{
		Start:       start,
		PlayerCount: l.PlayerCount,
		SourceRef:   l.EventURL,
	}
	// Anything that does not parse as a timestamp means the event is still running.
	if end, err := model.ParseTimestamp(l.End); err == nil {
		if end.Before(start) {
			return model.Event{}, markSource(errors.Newf("event %s ends at %s before its start %s",
				l.EventURL, l.End, l.Start))
		}
		ev.End = &end
	}
	return ev, nil
}

func markSource(err error) error {
	if errors.Is(err, model.ErrSourceUnavailable) {
		return err
	}
	return errors.Mark(err, model.ErrSourceUnavailable)
}
