package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/muster/internal/adapters/notify"
)

type failing struct{ calls int }

func (f *failing) Busy(context.Context, bool) error { f.calls++; return errors.New("busy failed") }
func (f *failing) Result(context.Context, time.Time, map[string]float64) error {
	f.calls++
	return errors.New("result failed")
}
func (f *failing) Message(context.Context, string, string) error {
	f.calls++
	return errors.New("message failed")
}

func TestChannel(t *testing.T) {
	Convey("Given a buffered channel notifier", t, func() {
		ctx := context.Background()
		ch := notify.NewChannel(4)
		date := time.Date(2015, 10, 1, 0, 0, 0, 0, time.UTC)

		Convey("When the three signals are sent", func() {
			So(ch.Busy(ctx, true), ShouldBeNil)
			So(ch.Result(ctx, date, map[string]float64{"P": 1}), ShouldBeNil)
			So(ch.Message(ctx, notify.TitleSuccess, "done"), ShouldBeNil)

			Convey("Then they arrive in order", func() {
				s := <-ch.Signals()
				So(s.Kind, ShouldEqual, notify.KindBusy)
				So(s.Busy, ShouldBeTrue)

				s = <-ch.Signals()
				So(s.Kind, ShouldEqual, notify.KindResult)
				So(s.Date, ShouldEqual, date)
				So(s.PerPlayer["P"], ShouldEqual, 1.0)

				s = <-ch.Signals()
				So(s.Kind, ShouldEqual, notify.KindMessage)
				So(s.Title, ShouldEqual, notify.TitleSuccess)
				So(s.Body, ShouldEqual, "done")
			})
		})

		Convey("When nobody reads and the context is cancelled", func() {
			unbuffered := notify.NewChannel(0)
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := unbuffered.Busy(cctx, false)

			Convey("Then the signal is reported as dropped", func() {
				So(errors.Is(err, notify.ErrDropped), ShouldBeTrue)
			})
		})
	})
}

func TestMulti(t *testing.T) {
	Convey("Given a fan-out with a failing member", t, func() {
		ctx := context.Background()
		bad := &failing{}
		good := notify.NewChannel(1)
		m := notify.Join(bad, nil, good)

		Convey("When a signal is sent", func() {
			err := m.Busy(ctx, true)

			Convey("Then every member still receives it", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "busy failed")
				So(bad.calls, ShouldEqual, 1)
				So((<-good.Signals()).Busy, ShouldBeTrue)
			})
		})

		Convey("Then nil members are skipped", func() {
			So(len(m), ShouldEqual, 2)
		})
	})
}
