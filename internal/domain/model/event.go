// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TimestampLayout is the fixed layout of upstream timestamps, always UTC.
const TimestampLayout = "2006-01-02 15:04"

// Event is a recorded game session discovered on an event list page.
type Event struct {
	Start       time.Time  // session start, UTC; unique within a catalog
	End         *time.Time // session end, UTC; nil while the session is still running
	PlayerCount int        // participants reported by the list page
	SourceRef   string     // absolute URL of the event detail page
}

// Ongoing reports whether the upstream did not record an end yet.
func (e Event) Ongoing() bool { return e.End == nil }

// FilteredEvent is an Event clipped to a query window.
type FilteredEvent struct {
	Event
	EffectiveStart time.Time
	EffectiveEnd   time.Time
	// EndAssumed is set when the event had no end and a stand-in was used.
	EndAssumed bool
}

// DurationMinutes returns the clipped duration in minutes.
func (f FilteredEvent) DurationMinutes() float64 {
	return f.EffectiveEnd.Sub(f.EffectiveStart).Minutes()
}

// AttendanceRecord is one player's normalized ratio.
type AttendanceRecord struct {
	PlayerName string  `json:"player_name"`
	Ratio      float64 `json:"ratio"`
}

// Stats summarizes an aggregation.
type Stats struct {
	TotalMinutes      float64 `json:"total_minutes"`
	AverageAttendance float64 `json:"average_attendance"`
}

// Result is the outcome of one aggregation.
type Result struct {
	PerPlayer map[string]float64 `json:"per_player"`
	Stats     Stats              `json:"stats"`
}

// Records returns the per-player ratios ordered by ratio desc, then name.
func (r Result) Records() []AttendanceRecord {
	out := make([]AttendanceRecord, 0, len(r.PerPlayer))
	for name, ratio := range r.PerPlayer {
		out = append(out, AttendanceRecord{PlayerName: name, Ratio: ratio})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ratio != out[j].Ratio {
			return out[i].Ratio > out[j].Ratio
		}
		return out[i].PlayerName < out[j].PlayerName
	})
	return out
}

// Summary renders the human readable success text.
func (r Result) Summary() string {
	return fmt.Sprintf("Scraped successfully for %d players with an average attendance of %d\n"+
		"minutes out of a total played time of %d minutes!",
		len(r.PerPlayer),
		int(r.Stats.TotalMinutes*r.Stats.AverageAttendance),
		int(r.Stats.TotalMinutes))
}

// Window is a half-open query interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a UTC window.
func NewWindow(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC()}
}

// Validate checks that the window is set and Start is before End.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.Mark(errors.New("window start and end are required"), ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return errors.Mark(errors.Newf("window start %s is not before end %s",
			w.Start.Format(TimestampLayout), w.End.Format(TimestampLayout)), ErrInvalidWindow)
	}
	return nil
}

// ParseTimestamp parses the fixed upstream layout as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

// EventListing is one raw row of an event list page.
type EventListing struct {
	EventURL    string
	PlayerCount int
	Start       string
	End         string // empty when the page shows no end
}

// ParticipantRow is one raw row of an event detail page.
type ParticipantRow struct {
	PlayerName string
	Directive  string // e.g. "margin-left:0%; width:75%; margin-right:25%;"
}
