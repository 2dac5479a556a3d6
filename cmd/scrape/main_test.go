package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/muster/internal/adapters/notify"
)

const listPage = `<html><body><div><h2>Game History</h2><div>
<table class="full">
  <tr><th>Mission</th><th>Players</th><th>Map</th><th>Start</th><th>End</th></tr>
  <tr><td><a href="/events/10">Operation Dawn</a></td><td>12/40</td><td>Altis</td>
      <td>2015-10-01 19:00</td><td>2015-10-01 21:30</td></tr>
</table></div></div></body></html>`

const detailPage = `<html><body><div><h2>Players</h2>
<table class="full">
  <tr><th>Name</th><th>Side</th><th>Kills</th><th>Presence</th></tr>
  <tr><td>Alice</td><td>BLU</td><td>3</td><td><div style="margin-left:0%; width:75%; margin-right:25%;"></div></td></tr>
  <tr><td>Bob</td><td>BLU</td><td>1</td><td><div style="margin-left:60%; width:40%; margin-right:0%;"></div></td></tr>
</table></div></body></html>`

func upstream(detailStatus int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, listPage)
	})
	mux.HandleFunc("/events/10", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(detailStatus)
		_, _ = io.WriteString(w, detailPage)
	})
	return httptest.NewServer(mux)
}

func TestParseFlags(t *testing.T) {
	convey.Convey("Given command line arguments", t, func() {
		convey.Convey("When the window is complete", func() {
			o, err := parseFlags([]string{"-start", "2015-10-01 19:00", "-end", "2015-10-01 21:30", "-json"}, io.Discard)

			convey.Convey("Then defaults fill the rest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(o.jsonOut, convey.ShouldBeTrue)
				convey.So(o.minPlayers, convey.ShouldEqual, 5)
				convey.So(o.baseURL, convey.ShouldEqual, "http://stats.armasquads.com")
			})
		})

		convey.Convey("When the end is missing", func() {
			_, err := parseFlags([]string{"-start", "2015-10-01 19:00"}, io.Discard)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given an upstream site with one qualifying event", t, func() {
		srv := upstream(http.StatusOK)
		defer srv.Close()
		args := []string{"-url", srv.URL, "-rate", "0", "-start", "2015-10-01 19:00", "-end", "2015-10-01 21:30"}

		convey.Convey("When scraping the event window", func() {
			var out bytes.Buffer
			err := run(context.Background(), args, &out, io.Discard)

			convey.Convey("Then the result and success message are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				text := out.String()
				convey.So(text, convey.ShouldStartWith, "busy: true\n")
				convey.So(text, convey.ShouldContainSubstring, "result for 2015-10-01:")
				convey.So(text, convey.ShouldContainSubstring, "Alice")
				convey.So(text, convey.ShouldContainSubstring, "1.000")
				convey.So(text, convey.ShouldContainSubstring, "0.533")
				convey.So(text, convey.ShouldContainSubstring, "Success: Scraped successfully for 2 players")
				convey.So(text, convey.ShouldEndWith, "busy: false\n")
			})
		})

		convey.Convey("When printing JSON lines", func() {
			var out bytes.Buffer
			err := run(context.Background(), append(args, "-json"), &out, io.Discard)
			convey.So(err, convey.ShouldBeNil)

			var kinds []notify.Kind
			sc := bufio.NewScanner(&out)
			for sc.Scan() {
				var s notify.Signal
				convey.So(json.Unmarshal(sc.Bytes(), &s), convey.ShouldBeNil)
				kinds = append(kinds, s.Kind)
			}

			convey.Convey("Then every signal is one line in emission order", func() {
				convey.So(kinds, convey.ShouldResemble, []notify.Kind{
					notify.KindBusy, notify.KindResult, notify.KindMessage, notify.KindBusy,
				})
			})
		})
	})

	convey.Convey("Given an upstream site whose event page fails", t, func() {
		srv := upstream(http.StatusInternalServerError)
		defer srv.Close()

		var out bytes.Buffer
		err := run(context.Background(),
			[]string{"-url", srv.URL, "-rate", "0", "-start", "2015-10-01 19:00", "-end", "2015-10-01 21:30"},
			&out, io.Discard)

		convey.Convey("Then the error message is printed and the run fails", func() {
			convey.So(errors.Is(err, ErrScrapeFailed), convey.ShouldBeTrue)
			convey.So(out.String(), convey.ShouldContainSubstring, "Error: ")
			convey.So(out.String(), convey.ShouldNotContainSubstring, "result for")
		})
	})
}
