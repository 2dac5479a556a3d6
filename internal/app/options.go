package service

import (
	"github.com/okian/muster/internal/domain/window"
	"github.com/okian/muster/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the upstream page source.
func WithSource(src Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxJobs sets how many jobs the store remembers.
func WithMaxJobs(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}

// WithMinParticipants sets the player count an event must exceed.
func WithMinParticipants(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minParticipants = n
		}
	}
}

// WithMaxPages bounds the catalog walk; 0 means unlimited.
func WithMaxPages(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxPages = n
		}
	}
}

// WithClock overrides the time used for events that are still running.
func WithClock(c window.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
