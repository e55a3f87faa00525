package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*settings)

// WithIDGenerator sets the function that assigns record ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
