package window_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/internal/domain/window"
)

func at(hour, minute int) time.Time {
	return time.Date(2015, 10, 1, hour, minute, 0, 0, time.UTC)
}

func event(start, end time.Time, players int) model.Event {
	return model.Event{Start: start, End: &end, PlayerCount: players, SourceRef: start.Format(model.TimestampLayout)}
}

func fixedClock(t time.Time) window.Clock {
	return func() time.Time { return t }
}

func TestFilter(t *testing.T) {
	Convey("Given an event from 10:00 to 11:00", t, func() {
		cat := map[time.Time]model.Event{at(10, 0): event(at(10, 0), at(11, 0), 12)}

		Convey("When the query window is 10:30 to 10:45", func() {
			out := window.Filter(cat, model.NewWindow(at(10, 30), at(10, 45)), 5, fixedClock(at(23, 0)))

			Convey("Then the event is clipped to the window", func() {
				So(len(out), ShouldEqual, 1)
				fe, ok := out[at(10, 30)]
				So(ok, ShouldBeTrue)
				So(fe.EffectiveStart, ShouldEqual, at(10, 30))
				So(fe.EffectiveEnd, ShouldEqual, at(10, 45))
				So(fe.DurationMinutes(), ShouldEqual, 15.0)
				So(fe.EndAssumed, ShouldBeFalse)
				So(fe.Start, ShouldEqual, at(10, 0))
			})
		})

		Convey("When the window only touches the event end", func() {
			out := window.Filter(cat, model.NewWindow(at(11, 0), at(12, 0)), 5, fixedClock(at(23, 0)))

			Convey("Then half-open intervals do not overlap", func() {
				So(len(out), ShouldEqual, 0)
			})
		})

		Convey("When the window ends at the event start", func() {
			out := window.Filter(cat, model.NewWindow(at(9, 0), at(10, 0)), 5, fixedClock(at(23, 0)))
			So(len(out), ShouldEqual, 0)
		})

		Convey("When the window covers the whole event", func() {
			out := window.Filter(cat, model.NewWindow(at(9, 0), at(12, 0)), 5, fixedClock(at(23, 0)))

			Convey("Then the original bounds are kept", func() {
				fe := out[at(10, 0)]
				So(fe.EffectiveStart, ShouldEqual, at(10, 0))
				So(fe.EffectiveEnd, ShouldEqual, at(11, 0))
				So(fe.DurationMinutes(), ShouldEqual, 60.0)
			})
		})
	})

	Convey("Given events around the participation threshold", t, func() {
		cat := map[time.Time]model.Event{
			at(10, 0): event(at(10, 0), at(11, 0), 5),
			at(12, 0): event(at(12, 0), at(13, 0), 6),
		}
		out := window.Filter(cat, model.NewWindow(at(9, 0), at(14, 0)), window.DefaultMinParticipants, fixedClock(at(23, 0)))

		Convey("Then exactly five players is excluded and six is included", func() {
			So(len(out), ShouldEqual, 1)
			_, excluded := out[at(10, 0)]
			_, included := out[at(12, 0)]
			So(excluded, ShouldBeFalse)
			So(included, ShouldBeTrue)
		})
	})

	Convey("Given an ongoing event", t, func() {
		cat := map[time.Time]model.Event{at(20, 0): {Start: at(20, 0), PlayerCount: 9, SourceRef: "/e/live"}}

		Convey("When now is inside the query window", func() {
			out := window.Filter(cat, model.NewWindow(at(19, 0), at(23, 0)), 5, fixedClock(at(21, 30)))

			Convey("Then the end is resolved to now and flagged as assumed", func() {
				fe := out[at(20, 0)]
				So(fe.EndAssumed, ShouldBeTrue)
				So(fe.EffectiveEnd, ShouldEqual, at(21, 30))
				So(fe.End, ShouldBeNil)
			})
		})

		Convey("When now is past the query window", func() {
			out := window.Filter(cat, model.NewWindow(at(19, 0), at(20, 30)), 5, fixedClock(at(23, 0)))

			Convey("Then the window end is used", func() {
				fe := out[at(20, 0)]
				So(fe.EndAssumed, ShouldBeTrue)
				So(fe.EffectiveEnd, ShouldEqual, at(20, 30))
			})
		})

		Convey("When the event started after now", func() {
			out := window.Filter(cat, model.NewWindow(at(19, 0), at(23, 0)), 5, fixedClock(at(19, 30)))
			So(len(out), ShouldEqual, 0)
		})
	})

	Convey("Given two events clipped to the same start", t, func() {
		cat := map[time.Time]model.Event{
			at(9, 0):  event(at(9, 0), at(10, 30), 8),
			at(9, 30): event(at(9, 30), at(11, 0), 8),
		}
		out := window.Filter(cat, model.NewWindow(at(10, 0), at(12, 0)), 5, fixedClock(at(23, 0)))

		Convey("Then the later event wins the key", func() {
			So(len(out), ShouldEqual, 1)
			So(out[at(10, 0)].Start, ShouldEqual, at(9, 30))
		})
	})

	Convey("Given an event whose end precedes its start", t, func() {
		cat := map[time.Time]model.Event{
			at(10, 30): event(at(10, 30), at(10, 15), 9),
			at(10, 40): event(at(10, 40), at(10, 50), 9),
		}
		out := window.Filter(cat, model.NewWindow(at(10, 0), at(11, 0)), 5, fixedClock(at(23, 0)))

		Convey("Then it is dropped and no negative duration is kept", func() {
			So(len(out), ShouldEqual, 1)
			_, kept := out[at(10, 30)]
			So(kept, ShouldBeFalse)
			for _, fe := range out {
				So(fe.DurationMinutes(), ShouldBeGreaterThan, 0.0)
			}
		})
	})

	Convey("Given an empty catalog", t, func() {
		out := window.Filter(nil, model.NewWindow(at(9, 0), at(12, 0)), 5, nil)

		Convey("Then the result is empty, not an error", func() {
			So(out, ShouldNotBeNil)
			So(len(out), ShouldEqual, 0)
		})
	})
}

func TestSortedStarts(t *testing.T) {
	Convey("Given filtered events in arbitrary order", t, func() {
		filtered := map[time.Time]model.FilteredEvent{
			at(12, 0): {}, at(9, 0): {}, at(10, 30): {},
		}

		Convey("Then their starts come back ascending", func() {
			So(window.SortedStarts(filtered), ShouldResemble, []time.Time{at(9, 0), at(10, 30), at(12, 0)})
		})
	})
}
