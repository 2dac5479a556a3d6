package catalog

import "github.com/okian/muster/pkg/logger"

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithMaxPages stops the walk with ErrPageLimit after n pages. Zero disables the guard.
func WithMaxPages(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.maxPages = n
		}
	}
}

// WithLogger sets a custom logger for the builder.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}
