package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMaxJobs bounds how many jobs are remembered; the oldest finished job is
// evicted first.
func WithMaxJobs(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
