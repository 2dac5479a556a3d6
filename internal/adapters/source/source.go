// Package source fetches event list and event detail pages from the upstream
// server-activity site and turns their tables into rows.
package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/logger"
	"github.com/okian/muster/pkg/metrics"
)

const (
	defaultTimeout         = 20 * time.Second
	defaultRatePerSec      = 2
	defaultBurst           = 1
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = time.Minute
	maxBodyBytes           = 8 << 20

	kindList   = "list"
	kindDetail = "detail"
)

// HTTPSource reads pages over HTTP. It is safe for concurrent use; the rate
// limiter and circuit breaker are shared by every caller.
type HTTPSource struct {
	client     *http.Client
	base       *url.URL
	serverPath string
	timeout    time.Duration

	ratePerSec float64
	burst      int
	limiter    *rate.Limiter

	breakerFailures uint32
	breakerTimeout  time.Duration
	cb              *gobreaker.CircuitBreaker[[]byte]

	logger logger.Logger
}

// New creates an HTTPSource rooted at baseURL.
func New(baseURL string, opts ...Option) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("base url %q must be absolute", baseURL)
	}

	s := &HTTPSource{
		client:          &http.Client{},
		base:            base,
		serverPath:      "/",
		timeout:         defaultTimeout,
		ratePerSec:      defaultRatePerSec,
		burst:           defaultBurst,
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
		logger:          logger.Get().Named("source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client.Timeout = s.timeout

	limit := rate.Limit(s.ratePerSec)
	if s.ratePerSec <= 0 {
		limit = rate.Inf
	}
	s.limiter = rate.NewLimiter(limit, s.burst)
	s.cb = s.newBreaker()
	return s, nil
}

func (s *HTTPSource) newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	name := "upstream-" + s.base.Host
	metrics.UpdateCircuitBreakerState(name, stateToFloat(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateCircuitBreakerState(name, stateToFloat(to))
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})
}

// ListPageURL returns the URL of event list page n.
func (s *HTTPSource) ListPageURL(page int) string {
	u := s.base.ResolveReference(&url.URL{Path: s.serverPath})
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchEventListPage returns the rows of the game history table on page n.
// Pages past the end of history yield no rows.
func (s *HTTPSource) FetchEventListPage(ctx context.Context, page int) ([]model.EventListing, error) {
	body, err := s.get(ctx, kindList, s.ListPageURL(page))
	if err != nil {
		return nil, err
	}
	listings, err := ParseEventList(bytes.NewReader(body), s.base)
	if err != nil {
		metrics.RecordFetchError(kindList, "parse")
		return nil, model.SourceError(err, "event list page %d", page)
	}
	return listings, nil
}

// FetchEventAttendance returns the rows of the players table of one event.
func (s *HTTPSource) FetchEventAttendance(ctx context.Context, eventURL string) ([]model.ParticipantRow, error) {
	ref, err := url.Parse(eventURL)
	if err != nil {
		return nil, model.SourceError(err, "event url %q", eventURL)
	}
	body, err := s.get(ctx, kindDetail, s.base.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}
	rows, err := ParseParticipants(bytes.NewReader(body))
	if err != nil {
		metrics.RecordFetchError(kindDetail, "parse")
		return nil, model.SourceError(err, "event %s", eventURL)
	}
	return rows, nil
}

// get waits for the rate limiter and fetches target through the breaker.
func (s *HTTPSource) get(ctx context.Context, kind, target string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		metrics.RecordFetchError(kind, "rate_limit")
		return nil, model.SourceError(err, "wait for rate limiter")
	}

	start := time.Now()
	body, err := s.cb.Execute(func() ([]byte, error) {
		return s.fetch(ctx, target)
	})
	metrics.RecordFetchLatency(kind, float64(time.Since(start).Milliseconds()))

	if err != nil {
		reason := "request"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "breaker_open"
		case errors.Is(err, ErrBadStatus):
			reason = "status"
		}
		metrics.RecordFetchError(kind, reason)
		s.logger.Warn(ctx, "fetch failed",
			logger.String("url", target),
			logger.String("reason", reason),
			logger.Error(err),
		)
		return nil, model.SourceError(err, "get %s", target)
	}

	s.logger.Debug(ctx, "page fetched",
		logger.String("url", target),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

func (s *HTTPSource) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

// BreakerState reports the current circuit breaker state.
func (s *HTTPSource) BreakerState() string { return s.cb.State().String() }

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
