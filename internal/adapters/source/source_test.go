package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/muster/internal/adapters/source"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const historyPage = `<!DOCTYPE html>
<html><body>
<div class="section">
  <h2>Recent servers</h2>
  <div><table class="full"><tr><td>decoy</td></tr></table></div>
</div>
<div class="section">
  <h2>Game History</h2>
  <div class="wrap">
    <table class="Full striped">
      <tr><th>Mission</th><th>Players</th><th>Map</th><th>Start</th><th>End</th></tr>
      <tr>
        <td><a href="/events/10">Operation Dawn</a></td>
        <td>12/40</td><td>Altis</td>
        <td>2015-10-01 19:00</td><td>2015-10-01 21:30</td>
      </tr>
      <tr>
        <td><a href="events/11">Night ops</a></td>
        <td> 3 / 40 </td><td>Stratis</td>
        <td>2015-10-01 22:00</td><td>-</td>
      </tr>
    </table>
  </div>
</div>
</body></html>`

const emptyHistoryPage = `<html><body><div><h2>Game history</h2><div>
<table class="full"><tr><th>Mission</th></tr></table></div></div></body></html>`

const playersPage = `<html><body>
<div class="box">
  <h2>Players</h2>
  <table class="full">
    <tr><th>Name</th><th>Side</th><th>Kills</th><th>Presence</th></tr>
    <tr><td>Alice</td><td>BLU</td><td>3</td><td><div class="bar" style="margin-left:0%; width:75%; margin-right:25%;"></div></td></tr>
    <tr><td> Bob </td><td>BLU</td><td>1</td><td><div style="width:40%;margin-left:60%;margin-right:0%"></div></td></tr>
  </table>
</div>
</body></html>`

func TestParseEventList(t *testing.T) {
	Convey("Given a game history page", t, func() {
		base, _ := url.Parse("http://stats.example.org/base/")

		Convey("When it is parsed", func() {
			rows, err := source.ParseEventList(strings.NewReader(historyPage), base)

			Convey("Then only the history table rows are returned", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				So(rows[0], ShouldResemble, model.EventListing{
					EventURL:    "http://stats.example.org/events/10",
					PlayerCount: 12,
					Start:       "2015-10-01 19:00",
					End:         "2015-10-01 21:30",
				})
			})

			Convey("Then relative links join the base and missing ends are kept raw", func() {
				So(rows[1].EventURL, ShouldEqual, "http://stats.example.org/base/events/11")
				So(rows[1].PlayerCount, ShouldEqual, 3)
				So(rows[1].End, ShouldEqual, "-")
			})
		})

		Convey("When the table only has a header", func() {
			rows, err := source.ParseEventList(strings.NewReader(emptyHistoryPage), base)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)
		})

		Convey("When the page has no history table", func() {
			_, err := source.ParseEventList(strings.NewReader(playersPage), base)
			So(errors.Is(err, source.ErrTableNotFound), ShouldBeTrue)
		})

		Convey("When a player count is not a number", func() {
			page := strings.Replace(historyPage, "12/40", "many", 1)
			_, err := source.ParseEventList(strings.NewReader(page), base)
			So(errors.Is(err, source.ErrMalformedPage), ShouldBeTrue)
		})
	})
}

func TestParseParticipants(t *testing.T) {
	Convey("Given an event detail page", t, func() {
		rows, err := source.ParseParticipants(strings.NewReader(playersPage))

		Convey("Then names and presence bars are returned", func() {
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []model.ParticipantRow{
				{PlayerName: "Alice", Directive: "margin-left:0%; width:75%; margin-right:25%;"},
				{PlayerName: "Bob", Directive: "width:40%;margin-left:60%;margin-right:0%"},
			})
		})
	})

	Convey("Given a page without a players table", t, func() {
		_, err := source.ParseParticipants(strings.NewReader(historyPage))
		So(errors.Is(err, source.ErrTableNotFound), ShouldBeTrue)
	})

	Convey("Given a player row without a presence bar", t, func() {
		page := strings.Replace(playersPage, `<div class="bar" style="margin-left:0%; width:75%; margin-right:25%;"></div>`, "-", 1)
		_, err := source.ParseParticipants(strings.NewReader(page))
		So(errors.Is(err, source.ErrMalformedPage), ShouldBeTrue)
	})
}

func TestHTTPSource(t *testing.T) {
	Convey("Given an upstream site", t, func() {
		var hits atomic.Int32
		var lastQuery atomic.Value
		mux := http.NewServeMux()
		mux.HandleFunc("/servers/7", func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			lastQuery.Store(r.URL.RawQuery)
			if r.URL.Query().Get("page") == "1" {
				_, _ = w.Write([]byte(historyPage))
				return
			}
			_, _ = w.Write([]byte(emptyHistoryPage))
		})
		mux.HandleFunc("/events/10", func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			_, _ = w.Write([]byte(playersPage))
		})
		mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		ctx := context.Background()
		src, err := source.New(srv.URL,
			source.WithServerPath("/servers/7"),
			source.WithRateLimit(0, 1),
			source.WithBreaker(2, time.Minute),
			source.WithTimeout(time.Second),
		)
		So(err, ShouldBeNil)

		Convey("When fetching the first list page", func() {
			rows, err := src.FetchEventListPage(ctx, 1)

			Convey("Then the page number is sent and links are absolute", func() {
				So(err, ShouldBeNil)
				So(lastQuery.Load(), ShouldEqual, "page=1")
				So(len(rows), ShouldEqual, 2)
				So(rows[0].EventURL, ShouldEqual, srv.URL+"/events/10")
			})
		})

		Convey("When fetching past the end of history", func() {
			rows, err := src.FetchEventListPage(ctx, 9)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)
			So(lastQuery.Load(), ShouldEqual, "page=9")
		})

		Convey("When fetching an event's attendance", func() {
			rows, err := src.FetchEventAttendance(ctx, srv.URL+"/events/10")
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[1].PlayerName, ShouldEqual, "Bob")
		})

		Convey("When the upstream keeps failing", func() {
			_, err1 := src.FetchEventAttendance(ctx, "/broken")
			_, err2 := src.FetchEventAttendance(ctx, "/broken")
			before := hits.Load()
			_, err3 := src.FetchEventAttendance(ctx, "/broken")

			Convey("Then errors are source failures and the breaker fails fast", func() {
				So(errors.Is(err1, model.ErrSourceUnavailable), ShouldBeTrue)
				So(errors.Is(err1, source.ErrBadStatus), ShouldBeTrue)
				So(errors.Is(err2, model.ErrSourceUnavailable), ShouldBeTrue)
				So(errors.Is(err3, model.ErrSourceUnavailable), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, before)
				So(src.BreakerState(), ShouldEqual, "open")
			})
		})

		Convey("When the page has no expected table", func() {
			_, err := src.FetchEventAttendance(ctx, "/servers/7")
			So(errors.Is(err, model.ErrSourceUnavailable), ShouldBeTrue)
			So(errors.Is(err, source.ErrTableNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an invalid base url", t, func() {
		_, err := source.New("not a url")
		So(err, ShouldNotBeNil)
	})
}

func TestHTTPSource_ListPageURL(t *testing.T) {
	Convey("Given a base url and server path", t, func() {
		src, err := source.New("http://stats.example.org", source.WithServerPath("/servers/7"))
		So(err, ShouldBeNil)
		So(src.ListPageURL(3), ShouldEqual, "http://stats.example.org/servers/7?page=3")
	})
}

type countingTransport struct {
	calls atomic.Int32
}

func (t *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func TestWithHTTPClient(t *testing.T) {
	Convey("Given a caller-owned HTTP client", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(emptyHistoryPage))
		}))
		defer srv.Close()

		rt := &countingTransport{}
		client := &http.Client{Transport: rt}
		src, err := source.New(srv.URL, source.WithHTTPClient(client), source.WithTimeout(time.Second), source.WithRateLimit(0, 1))
		So(err, ShouldBeNil)

		Convey("When the source fetches a page", func() {
			_, err := src.FetchEventListPage(context.Background(), 1)

			Convey("Then the caller's transport is used but its timeout is untouched", func() {
				So(err, ShouldBeNil)
				So(rt.calls.Load(), ShouldEqual, int32(1))
				So(client.Timeout, ShouldEqual, time.Duration(0))
			})
		})
	})
}
