// Package repository keeps the status board of submitted scrape jobs.
package repository

import (
	"context"
	"time"

	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/domain/model"
)

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Finished reports whether no further signals are expected.
func (s State) Finished() bool { return s == StateSucceeded || s == StateFailed }

// Message is a title/body pair received by a job.
type Message struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Job is the observable record of one scrape.
type Job struct {
	ID        string             `json:"id"`
	Window    model.Window       `json:"window"`
	State     State              `json:"state"`
	Busy      bool               `json:"busy"`
	Date      *time.Time         `json:"date,omitempty"`
	PerPlayer map[string]float64 `json:"per_player,omitempty"`
	Messages  []Message          `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store records jobs and the signals they receive.
type Store interface {
	// Create registers a queued job for w and returns it with a fresh ID.
	Create(ctx context.Context, w model.Window) (Job, error)

	// Get returns a copy of the job. Returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (Job, error)

	// Delete forgets a job.
	Delete(ctx context.Context, id string) error

	// Notifier returns a notifier that records signals onto the job.
	Notifier(id string) notify.Notifier

	// Count returns the number of jobs tracked.
	Count(ctx context.Context) int
}
