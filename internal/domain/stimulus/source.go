package stimulus

import (
	"context"
	"fmt"

	"github.com/okian/pairwise/pkg/logger"
	"github.com/okian/pairwise/pkg/metrics"
)

// Source produces the candidate stimuli for a session.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Item, error)

// Items implements Source.
func (f SourceFunc) Items(ctx context.Context) ([]Item, error) { return f(ctx) }

// StaticSource is a fixed list of stimuli.
type StaticSource []Item

// Files builds a StaticSource of bare file names.
func Files(names ...string) StaticSource {
	s := make(StaticSource, len(names))
	for i, n := range names {
		s[i] = File(n)
	}
	return s
}

// Items returns a copy of the list.
func (s StaticSource) Items(context.Context) ([]Item, error) {
	out := make([]Item, len(s))
	copy(out, s)
	return out, nil
}

// Lister lists stimuli from somewhere remote, typically the videos endpoint.
type Lister interface {
	List(ctx context.Context) ([]Item, error)
}

// RemoteSource adapts a Lister to Source. List errors are wrapped with
// ErrDiscoveryFailed.
func RemoteSource(l Lister) Source {
	return SourceFunc(func(ctx context.Context) ([]Item, error) {
		items, err := l.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
		}
		return items, nil
	})
}

type fallbackSource struct {
	primary  Source
	fallback Source
	name     string
	log      logger.Logger
}

// FallbackOption configures WithFallback.
type FallbackOption func(*fallbackSource)

// FallbackName labels the source in logs and metrics.
func FallbackName(name string) FallbackOption {
	return func(f *fallbackSource) {
		if name != "" {
			f.name = name
		}
	}
}

// FallbackLogger sets the logger used to report a fallback.
func FallbackLogger(l logger.Logger) FallbackOption {
	return func(f *fallbackSource) {
		if l != nil {
			f.log = l
		}
	}
}

// WithFallback returns a Source that reads primary and, when it fails, reads
// fallback instead. A successful but empty primary listing is returned as is.
func WithFallback(primary, fallback Source, opts ...FallbackOption) Source {
	f := &fallbackSource{primary: primary, fallback: fallback, name: "remote", log: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *fallbackSource) Items(ctx context.Context) ([]Item, error) {
	items, err := f.primary.Items(ctx)
	if err == nil {
		return items, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.log.Warn(ctx, "stimulus discovery failed, using fallback list",
		logger.String("source", f.name),
		logger.Error(err),
	)
	metrics.RecordDiscoveryFallback(f.name)
	return f.fallback.Items(ctx)
}
