package stimulus

import (
	"context"

	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/pkg/logger"
)

// Builder produces the stimulus set for one session.
type Builder struct {
	source  Source
	sample  bool
	shuffle bool
	rng     random.Rand
	log     logger.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithCategorySampling keeps one item per folder.
func WithCategorySampling() Option {
	return func(b *Builder) { b.sample = true }
}

// WithShuffledOrder shuffles the set before it is returned, which changes the
// enumeration order of the pairs built from it.
func WithShuffledOrder() Option {
	return func(b *Builder) { b.shuffle = true }
}

// WithRand sets the randomness used for sampling and shuffling.
func WithRand(r random.Rand) Option {
	return func(b *Builder) {
		if r != nil {
			b.rng = r
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBuilder returns a Builder reading from source.
func NewBuilder(source Source, opts ...Option) *Builder {
	b := &Builder{
		source: source,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = random.New(random.NewSeed())
	}
	return b
}

// Build returns the stimulus set.
func (b *Builder) Build(ctx context.Context) ([]Item, error) {
	if b.source == nil {
		return nil, ErrNoSource
	}
	items, err := b.source.Items(ctx)
	if err != nil {
		return nil, err
	}
	items = append([]Item(nil), items...)
	if b.sample {
		items = SampleOnePerCategory(items, b.rng)
	}
	if b.shuffle {
		random.Shuffle(items, b.rng)
	}
	b.log.Debug(ctx, "stimulus set built",
		logger.Int("items", len(items)),
		logger.Bool("sampled", b.sample),
		logger.Bool("shuffled", b.shuffle),
	)
	return items, nil
}
