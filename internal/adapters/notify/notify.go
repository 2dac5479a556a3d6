// Package notify carries the three signals of a scrape run to its observers.
package notify

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Message titles delivered at the end of a run.
const (
	TitleSuccess = "Success"
	TitleError   = "Error"
)

// Kind identifies a signal.
type Kind string

const (
	KindBusy    Kind = "busy"
	KindResult  Kind = "result"
	KindMessage Kind = "message"
)

// ErrDropped is returned when a signal could not be delivered before the
// context ended.
var ErrDropped = errors.New("signal dropped")

// Notifier observes a scrape run.
type Notifier interface {
	Busy(ctx context.Context, busy bool) error
	Result(ctx context.Context, date time.Time, perPlayer map[string]float64) error
	Message(ctx context.Context, title, body string) error
}

// Signal is one delivered notification.
type Signal struct {
	Kind      Kind               `json:"kind"`
	Busy      bool               `json:"busy,omitempty"`
	Date      time.Time          `json:"date,omitempty"`
	PerPlayer map[string]float64 `json:"per_player,omitempty"`
	Title     string             `json:"title,omitempty"`
	Body      string             `json:"body,omitempty"`
	At        time.Time          `json:"at"`
}

// Channel delivers signals on a Go channel.
type Channel struct {
	ch chan Signal
}

// NewChannel creates a Channel with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{ch: make(chan Signal, buffer)}
}

// Signals returns the receive side.
func (c *Channel) Signals() <-chan Signal { return c.ch }

func (c *Channel) Busy(ctx context.Context, busy bool) error {
	return c.send(ctx, Signal{Kind: KindBusy, Busy: busy})
}

func (c *Channel) Result(ctx context.Context, date time.Time, perPlayer map[string]float64) error {
	return c.send(ctx, Signal{Kind: KindResult, Date: date, PerPlayer: perPlayer})
}

func (c *Channel) Message(ctx context.Context, title, body string) error {
	return c.send(ctx, Signal{Kind: KindMessage, Title: title, Body: body})
}

func (c *Channel) send(ctx context.Context, s Signal) error {
	s.At = time.Now().UTC()
	select {
	case c.ch <- s:
		return nil
	case <-ctx.Done():
		return errors.Mark(errors.Wrapf(ctx.Err(), "%s signal", s.Kind), ErrDropped)
	}
}

// Multi fans every signal out to all notifiers.
type Multi []Notifier

// Join combines notifiers, skipping nil ones.
func Join(ns ...Notifier) Multi {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) Busy(ctx context.Context, busy bool) error {
	return m.each(func(n Notifier) error { return n.Busy(ctx, busy) })
}

func (m Multi) Result(ctx context.Context, date time.Time, perPlayer map[string]float64) error {
	return m.each(func(n Notifier) error { return n.Result(ctx, date, perPlayer) })
}

func (m Multi) Message(ctx context.Context, title, body string) error {
	return m.each(func(n Notifier) error { return n.Message(ctx, title, body) })
}

// each delivers to every notifier even when one fails.
func (m Multi) each(fn func(Notifier) error) error {
	var errs error
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
