// Package experiment defines the experiment variants and plans a session's
// trial sequence for each of them.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/sequence"
	"github.com/okian/pairwise/internal/domain/stimulus"
	"github.com/okian/pairwise/pkg/logger"
	"github.com/okian/pairwise/pkg/metrics"
)

// ErrUnknownVariant is returned by Lookup for names that are not registered.
var ErrUnknownVariant = errors.New("unknown experiment variant")

// ErrLayoutMismatch is returned by a listing source whose videos are laid out
// differently from the variant reading them.
var ErrLayoutMismatch = errors.New("video listing layout does not match variant")

// Layout is the shape of the videos directory a variant reads from.
type Layout string

const (
	// LayoutFlat is a single directory of video files.
	LayoutFlat Layout = "flat"
	// LayoutCategorized is a directory of numeric folders holding video files.
	LayoutCategorized Layout = "categorized"
)

// Trial type labels written to the log.
const (
	TrialTypeButton      = "html-button-response"
	TrialTypeComparison  = "comparison_trial"
	TrialTypeExplanation = "explanation_trial"
	TrialTypeInstruction = "instructions"
)

// Block labels written to the log.
const (
	BlockPractice = "practice"
	BlockMain     = "main_experiment"
)

// Variant is one configuration of the experiment.
type Variant struct {
	Name   string
	Layout Layout
	// Discover reads the stimulus set from the videos endpoint before falling
	// back to Fallback. When false, Fallback is the stimulus set.
	Discover bool
	Fallback stimulus.Source

	SampleByCategory bool
	ShuffleItems     bool
	Counterbalance   bool
	Budget           int
	PracticeCount    int

	RequireExplanation  bool
	ComparisonTrialType string
	// MediaPrefix is prepended to bare file names to build playable URLs.
	MediaPrefix   string
	CompletionURL string
}

// Options returns the sequencer options for the variant.
func (v Variant) Options() sequence.Options {
	return sequence.Options{
		Counterbalance: v.Counterbalance,
		Budget:         v.Budget,
		PracticeCount:  v.PracticeCount,
	}
}

// WithBudget returns a copy of v with the trial budget replaced when n > 0.
func (v Variant) WithBudget(n int) Variant {
	if n > 0 {
		v.Budget = n
	}
	return v
}

// WithPracticeCount returns a copy of v with the practice count replaced when n >= 0.
func (v Variant) WithPracticeCount(n int) Variant {
	if n >= 0 {
		v.PracticeCount = n
	}
	return v
}

// MediaURL returns the playable URL of an item.
func (v Variant) MediaURL(it stimulus.Item) string {
	if it.Path != "" {
		return it.Path
	}
	return v.MediaPrefix + it.FullName
}

// Source returns the stimulus source for a session. discovered may be nil, in
// which case the fallback list is used directly.
func (v Variant) Source(discovered stimulus.Source, log logger.Logger) stimulus.Source {
	if !v.Discover || discovered == nil {
		return v.Fallback
	}
	return stimulus.WithFallback(discovered, v.Fallback,
		stimulus.FallbackName(v.Name),
		stimulus.FallbackLogger(log),
	)
}

// ListingSource reads stimuli from l and fails with ErrLayoutMismatch when a
// non-empty listing is not in the variant's layout, so Source falls back.
func (v Variant) ListingSource(l stimulus.Lister) stimulus.Source {
	remote := stimulus.RemoteSource(l)
	return stimulus.SourceFunc(func(ctx context.Context) ([]stimulus.Item, error) {
		items, err := remote.Items(ctx)
		if err != nil {
			return nil, err
		}
		if got := ListingLayout(items); len(items) > 0 && got != v.Layout {
			return nil, fmt.Errorf("%w: %s wants %s, listing is %s", ErrLayoutMismatch, v.Name, v.Layout, got)
		}
		return items, nil
	})
}

// ListingLayout reports the layout a video listing was served in. Any item
// with a folder makes it categorized.
func ListingLayout(items []stimulus.Item) Layout {
	for _, it := range items {
		if it.HasFolder() {
			return LayoutCategorized
		}
	}
	return LayoutFlat
}

// Assignment is what one session was given: the resolved variant, the seed
// its sequence was drawn from and the sequence itself.
type Assignment struct {
	Variant  Variant
	Seed     int64
	Sequence sequence.Sequence
}

// Plan builds the stimulus set and the trial sequence for one session.
func Plan(ctx context.Context, v Variant, discovered stimulus.Source, r random.Rand, log logger.Logger) (sequence.Sequence, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := []stimulus.Option{stimulus.WithRand(r), stimulus.WithLogger(log)}
	if v.SampleByCategory {
		opts = append(opts, stimulus.WithCategorySampling())
	}
	if v.ShuffleItems {
		opts = append(opts, stimulus.WithShuffledOrder())
	}

	items, err := stimulus.NewBuilder(v.Source(discovered, log), opts...).Build(ctx)
	if err != nil {
		return sequence.Sequence{}, fmt.Errorf("build stimulus set for %s: %w", v.Name, err)
	}

	seq, err := sequence.Generate(items, v.Options(), r)
	if err != nil {
		if errors.Is(err, sequence.ErrInsufficientStimuli) {
			metrics.RecordInsufficientStimuli()
		}
		log.Error(ctx, "cannot generate trial sequence",
			logger.String("variant", v.Name),
			logger.Int("stimuli", len(items)),
			logger.Error(err),
		)
		return sequence.Sequence{}, fmt.Errorf("generate sequence for %s: %w", v.Name, err)
	}

	metrics.RecordSequenceGenerated(v.Name, seq.Len())
	log.Info(ctx, "trial sequence planned",
		logger.String("variant", v.Name),
		logger.Int("stimuli", len(items)),
		logger.Int("practice", len(seq.Practice)),
		logger.Int("main", len(seq.Main)),
	)
	return seq, nil
}

var registry = map[string]Variant{ //nolint:gochecknoglobals // fixed variant catalogue
	Familiar.Name:          Familiar,
	FamiliarOpenEnded.Name: FamiliarOpenEnded,
	Novel.Name:             Novel,
}

// Lookup returns the variant registered under name.
func Lookup(name string) (Variant, error) {
	v, ok := registry[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Names returns the registered variant names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
