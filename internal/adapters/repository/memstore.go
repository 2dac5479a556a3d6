package repository

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/metrics"
)

const defaultMaxJobs = 256

// MemoryStore is an in-memory, bounded Store safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // insertion order, oldest first
	maxJobs int
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:    make(map[string]*Job),
		maxJobs: defaultMaxJobs,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.UpdateJobsTracked(0)
	return s
}

func (s *MemoryStore) Create(_ context.Context, w model.Window) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	j := &Job{
		ID:        uuid.NewString(),
		Window:    w,
		State:     StateQueued,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.evictLocked()
	metrics.UpdateJobsTracked(len(s.jobs))
	return clone(j), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	return clone(j), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return errors.Wrapf(ErrNotFound, "job %s", id)
	}
	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.UpdateJobsTracked(len(s.jobs))
	return nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) Notifier(id string) notify.Notifier {
	return &jobNotifier{store: s, id: id}
}

// evictLocked drops the oldest finished jobs above the limit, then the oldest
// of any state if every job is still active.
func (s *MemoryStore) evictLocked() {
	for len(s.jobs) > s.maxJobs {
		victim := -1
		for i, id := range s.order {
			if s.jobs[id].State.Finished() {
				victim = i
				break
			}
		}
		if victim < 0 {
			victim = 0
		}
		delete(s.jobs, s.order[victim])
		s.order = append(s.order[:victim], s.order[victim+1:]...)
	}
}

func (s *MemoryStore) update(id string, fn func(j *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "job %s", id)
	}
	fn(j)
	j.UpdatedAt = s.now().UTC()
	return nil
}

func clone(j *Job) Job {
	out := *j
	if j.Date != nil {
		d := *j.Date
		out.Date = &d
	}
	if j.PerPlayer != nil {
		out.PerPlayer = make(map[string]float64, len(j.PerPlayer))
		for k, v := range j.PerPlayer {
			out.PerPlayer[k] = v
		}
	}
	out.Messages = append([]Message{}, j.Messages...)
	return out
}

// jobNotifier folds the three signals into job state.
type jobNotifier struct {
	store *MemoryStore
	id    string
}

func (n *jobNotifier) Busy(_ context.Context, busy bool) error {
	return n.store.update(n.id, func(j *Job) {
		j.Busy = busy
		if busy && j.State == StateQueued {
			j.State = StateRunning
		}
	})
}

func (n *jobNotifier) Result(_ context.Context, date time.Time, perPlayer map[string]float64) error {
	return n.store.update(n.id, func(j *Job) {
		d := date
		j.Date = &d
		j.PerPlayer = make(map[string]float64, len(perPlayer))
		for k, v := range perPlayer {
			j.PerPlayer[k] = v
		}
	})
}

func (n *jobNotifier) Message(_ context.Context, title, body string) error {
	return n.store.update(n.id, func(j *Job) {
		j.Messages = append(j.Messages, Message{Title: title, Body: body, At: n.store.now().UTC()})
		switch title {
		case notify.TitleSuccess:
			j.State = StateSucceeded
		case notify.TitleError:
			j.State = StateFailed
		}
	})
}
