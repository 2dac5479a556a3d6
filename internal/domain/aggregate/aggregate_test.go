package aggregate_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/muster/internal/domain/aggregate"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeExtractor struct {
	ratios map[string]map[string]float64
	failOn string
	calls  []string
}

func (f *fakeExtractor) Extract(_ context.Context, ref string) (map[string]float64, error) {
	f.calls = append(f.calls, ref)
	if ref == f.failOn {
		return nil, errors.Mark(errors.Newf("event %s: bad row", ref), model.ErrMalformedRow)
	}
	return f.ratios[ref], nil
}

func at(hour, minute int) time.Time {
	return time.Date(2015, 10, 1, hour, minute, 0, 0, time.UTC)
}

func filtered(ref string, start, end time.Time) model.FilteredEvent {
	return model.FilteredEvent{
		Event:          model.Event{Start: start, End: &end, PlayerCount: 10, SourceRef: ref},
		EffectiveStart: start,
		EffectiveEnd:   end,
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	Convey("Given two events of 10 and 20 minutes", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{
			"/e/b": {"P": 0.5},
			"/e/a": {"P": 1.0},
		}}
		events := map[time.Time]model.FilteredEvent{
			at(11, 0): filtered("/e/b", at(11, 0), at(11, 20)),
			at(10, 0): filtered("/e/a", at(10, 0), at(10, 10)),
		}

		Convey("When aggregating", func() {
			res, err := aggregate.New(ex).Aggregate(context.Background(), events)

			Convey("Then the ratio is weighted by duration", func() {
				So(err, ShouldBeNil)
				So(res.PerPlayer["P"], ShouldAlmostEqual, 20.0/30.0, 1e-9)
				So(res.Stats.TotalMinutes, ShouldEqual, 30.0)
				So(res.Stats.AverageAttendance, ShouldAlmostEqual, 20.0/30.0, 1e-9)
			})

			Convey("Then events are visited by ascending start", func() {
				So(ex.calls, ShouldResemble, []string{"/e/a", "/e/b"})
			})
		})
	})

	Convey("Given a player missing from one event", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{
			"/e/a": {"P": 1.0, "Q": 1.0},
			"/e/b": {"P": 1.0},
		}}
		events := map[time.Time]model.FilteredEvent{
			at(10, 0): filtered("/e/a", at(10, 0), at(10, 30)),
			at(11, 0): filtered("/e/b", at(11, 0), at(11, 30)),
		}
		res, err := aggregate.New(ex).Aggregate(context.Background(), events)

		Convey("Then the absence contributes zero", func() {
			So(err, ShouldBeNil)
			So(res.PerPlayer["P"], ShouldEqual, 1.0)
			So(res.PerPlayer["Q"], ShouldEqual, 0.5)
			So(res.Stats.AverageAttendance, ShouldEqual, 0.75)
			for _, r := range res.PerPlayer {
				So(r, ShouldBeBetweenOrEqual, 0.0, 1.0)
			}
		})
	})

	Convey("Given overlapping events", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{
			"/e/a": {"P": 1.0},
			"/e/b": {"P": 1.0},
		}}
		events := map[time.Time]model.FilteredEvent{
			at(10, 0):  filtered("/e/a", at(10, 0), at(11, 0)),
			at(10, 30): filtered("/e/b", at(10, 30), at(11, 0)),
		}
		res, err := aggregate.New(ex).Aggregate(context.Background(), events)

		Convey("Then their minutes simply add", func() {
			So(err, ShouldBeNil)
			So(res.Stats.TotalMinutes, ShouldEqual, 90.0)
		})
	})

	Convey("Given no filtered events", t, func() {
		_, err := aggregate.New(&fakeExtractor{}).Aggregate(context.Background(), nil)

		Convey("Then no qualifying events is reported", func() {
			So(errors.Is(err, model.ErrNoQualifyingEvents), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "no events took place in specified time frame")
		})
	})

	Convey("Given events that cover zero minutes", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{"/e/a": {"P": 1.0}}}
		events := map[time.Time]model.FilteredEvent{
			at(10, 0): filtered("/e/a", at(10, 0), at(10, 0)),
		}
		res, err := aggregate.New(ex).Aggregate(context.Background(), events)

		Convey("Then no qualifying events is reported before dividing", func() {
			So(errors.Is(err, model.ErrNoQualifyingEvents), ShouldBeTrue)
			So(res.PerPlayer, ShouldBeNil)
		})
	})

	Convey("Given events nobody attended", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{"/e/a": {}}}
		events := map[time.Time]model.FilteredEvent{
			at(10, 0): filtered("/e/a", at(10, 0), at(10, 45)),
		}
		res, err := aggregate.New(ex).Aggregate(context.Background(), events)

		Convey("Then the average is zero", func() {
			So(err, ShouldBeNil)
			So(len(res.PerPlayer), ShouldEqual, 0)
			So(res.Stats.AverageAttendance, ShouldEqual, 0.0)
			So(res.Stats.TotalMinutes, ShouldEqual, 45.0)
		})
	})

	Convey("Given an extractor failure", t, func() {
		ex := &fakeExtractor{failOn: "/e/a", ratios: map[string]map[string]float64{"/e/b": {"P": 1.0}}}
		events := map[time.Time]model.FilteredEvent{
			at(10, 0): filtered("/e/a", at(10, 0), at(10, 30)),
			at(11, 0): filtered("/e/b", at(11, 0), at(11, 30)),
		}
		_, err := aggregate.New(ex).Aggregate(context.Background(), events)

		Convey("Then the aggregation aborts", func() {
			So(errors.Is(err, model.ErrMalformedRow), ShouldBeTrue)
			So(ex.calls, ShouldResemble, []string{"/e/a"})
		})
	})

	Convey("Given an event with an assumed end", t, func() {
		ex := &fakeExtractor{ratios: map[string]map[string]float64{"/e/live": {"P": 1.0}}}
		ev := model.FilteredEvent{
			Event:          model.Event{Start: at(20, 0), PlayerCount: 9, SourceRef: "/e/live"},
			EffectiveStart: at(20, 0),
			EffectiveEnd:   at(20, 40),
			EndAssumed:     true,
		}
		res, err := aggregate.New(ex).Aggregate(context.Background(), map[time.Time]model.FilteredEvent{at(20, 0): ev})

		Convey("Then the assumed duration is still counted", func() {
			So(err, ShouldBeNil)
			So(res.Stats.TotalMinutes, ShouldEqual, 40.0)
		})
	})
}
