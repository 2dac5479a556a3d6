// Package window selects the catalog events that overlap a query window and
// clips them to it.
package window

import (
	"sort"
	"time"

	"github.com/okian/muster/internal/domain/model"
)

// DefaultMinParticipants excludes near-empty practice sessions.
const DefaultMinParticipants = 5

// Clock returns the current time; events without an end are treated as
// running until now for the overlap test.
type Clock func() time.Time

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Filter returns the events of catalog that overlap w and have strictly more
// than minParticipants players, keyed by their clipped start. Events ending
// before they start are dropped.
//
// Events are visited by ascending original start; when two events clip to the
// same start the later one wins.
func Filter(catalog map[time.Time]model.Event, w model.Window, minParticipants int, now Clock) map[time.Time]model.FilteredEvent {
	if now == nil {
		now = time.Now
	}
	current := now().UTC()

	starts := make([]time.Time, 0, len(catalog))
	for start := range catalog {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make(map[time.Time]model.FilteredEvent)
	for _, start := range starts {
		ev := catalog[start]

		end := current
		if ev.End != nil {
			end = *ev.End
		}

		if end.Before(ev.Start) || !Overlaps(ev.Start, end, w.Start, w.End) || ev.PlayerCount <= minParticipants {
			continue
		}

		fe := model.FilteredEvent{
			Event:          ev,
			EffectiveStart: later(ev.Start, w.Start),
			EffectiveEnd:   earlier(end, w.End),
			EndAssumed:     ev.Ongoing(),
		}
		out[fe.EffectiveStart] = fe
	}
	return out
}

// SortedStarts returns the keys of filtered in ascending order.
func SortedStarts(filtered map[time.Time]model.FilteredEvent) []time.Time {
	starts := make([]time.Time, 0, len(filtered))
	for start := range filtered {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
