// Command scrape runs one attendance scrape against the upstream site and
// prints the signals it emits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/adapters/source"
	app "github.com/okian/muster/internal/app"
	"github.com/okian/muster/internal/config"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Minute
	signalBuffer   = 8
)

// ErrScrapeFailed is returned when the run ends with an error message.
var ErrScrapeFailed = errors.New("scrape failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}
	os.Stderr.WriteString(err.Error() + "\n")
	stop()
	os.Exit(1)
}

type options struct {
	start, end string
	baseURL    string
	serverPath string
	minPlayers int
	maxPages   int
	rate       float64
	timeout    time.Duration
	jsonOut    bool
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	defaults := config.New(context.Background())

	var o options
	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.start, "start", "", "Window start, "+model.TimestampLayout+" (UTC)")
	fs.StringVar(&o.end, "end", "", "Window end, "+model.TimestampLayout+" (UTC)")
	fs.StringVar(&o.baseURL, "url", defaults.BaseURL, "Base URL of the server-activity site")
	fs.StringVar(&o.serverPath, "server", defaults.ServerPath, "Event list path of the server")
	fs.IntVar(&o.minPlayers, "min-players", defaults.MinParticipants, "Player count an event must exceed")
	fs.IntVar(&o.maxPages, "max-pages", defaults.MaxPages, "Maximum list pages to walk (0 is unlimited)")
	fs.Float64Var(&o.rate, "rate", defaults.FetchRatePerSec, "Upstream requests per second (0 disables limiting)")
	fs.DurationVar(&o.timeout, "timeout", defaultTimeout, "Overall scrape timeout")
	fs.BoolVar(&o.jsonOut, "json", false, "Print signals as JSON lines")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.start == "" || o.end == "" {
		return options{}, errors.New("both -start and -end are required")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if err := logger.InitWith(stderr, logger.FormatText); err != nil {
		return errors.Wrap(err, "initialize logging")
	}
	if o.verbose {
		_ = logger.SetLevelString("debug")
	} else {
		_ = logger.SetLevelString("warn")
	}

	start, err := model.ParseTimestamp(o.start)
	if err != nil {
		return errors.Wrap(err, "start")
	}
	end, err := model.ParseTimestamp(o.end)
	if err != nil {
		return errors.Wrap(err, "end")
	}
	w := model.NewWindow(start, end)

	src, err := source.New(o.baseURL,
		source.WithServerPath(o.serverPath),
		source.WithRateLimit(o.rate, 1),
	)
	if err != nil {
		return errors.Wrap(err, "create upstream source")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	svc := app.New(
		app.WithSource(src),
		app.WithWorkerCount(1),
		app.WithQueueSize(1),
		app.WithMinParticipants(o.minPlayers),
		app.WithMaxPages(o.maxPages),
	)
	if err := svc.Start(ctx); err != nil {
		return errors.Wrap(err, "start service")
	}
	defer svc.Stop()

	signals := notify.NewChannel(signalBuffer)
	if _, err := svc.Submit(ctx, w, signals); err != nil {
		return errors.Wrap(err, "submit")
	}
	return printSignals(ctx, signals.Signals(), stdout, o.jsonOut)
}

// printSignals writes signals until the run goes idle again and reports
// ErrScrapeFailed if an error message was seen.
func printSignals(ctx context.Context, signals <-chan notify.Signal, out io.Writer, jsonOut bool) error {
	var (
		started bool
		failed  bool
	)
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for scrape")
		case s := <-signals:
			if jsonOut {
				if err := enc.Encode(s); err != nil {
					return errors.Wrap(err, "write signal")
				}
			} else {
				writeSignal(out, s)
			}

			switch s.Kind {
			case notify.KindBusy:
				if s.Busy {
					started = true
				} else if started {
					if failed {
						return ErrScrapeFailed
					}
					return nil
				}
			case notify.KindMessage:
				if s.Title == notify.TitleError {
					failed = true
				}
			}
		}
	}
}

func writeSignal(out io.Writer, s notify.Signal) {
	switch s.Kind {
	case notify.KindBusy:
		fmt.Fprintf(out, "busy: %t\n", s.Busy)
	case notify.KindResult:
		fmt.Fprintf(out, "result for %s:\n", s.Date.Format(time.DateOnly))
		for _, r := range (model.Result{PerPlayer: s.PerPlayer}).Records() {
			fmt.Fprintf(out, "  %-24s %.3f\n", r.PlayerName, r.Ratio)
		}
	case notify.KindMessage:
		fmt.Fprintf(out, "%s: %s\n", s.Title, s.Body)
	}
}
