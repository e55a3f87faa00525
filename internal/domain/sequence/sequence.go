// Package sequence turns a stimulus set into an ordered list of pairwise
// comparison trials.
package sequence

import (
	"errors"
	"fmt"

	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/stimulus"
)

var (
	// ErrInsufficientStimuli is returned when fewer than two stimuli are available.
	ErrInsufficientStimuli = errors.New("at least two stimuli are required")
	// ErrDuplicateStimulus is returned when the same stimulus appears twice in a set.
	ErrDuplicateStimulus = errors.New("duplicate stimulus in set")
)

// Trial is one comparison. Video1 and Video2 keep the enumeration order of the
// pair; Left and Right are the on-screen placement after counterbalancing.
type Trial struct {
	Video1   stimulus.Item `json:"video1"`
	Video2   stimulus.Item `json:"video2"`
	Left     stimulus.Item `json:"left_video"`
	Right    stimulus.Item `json:"right_video"`
	Practice bool          `json:"practice,omitempty"`
}

// Swapped reports whether the pair is shown in reverse enumeration order.
func (t Trial) Swapped() bool { return t.Left.Key() != t.Video1.Key() }

// Sequence is the full plan for a session. Practice trials are drawn from the
// head of Main, so a practice pair is shown again in the main block.
type Sequence struct {
	Practice []Trial `json:"practice"`
	Main     []Trial `json:"main"`
}

// Len returns the number of trials across both blocks.
func (s Sequence) Len() int { return len(s.Practice) + len(s.Main) }

// Options controls Generate.
type Options struct {
	// Counterbalance swaps left/right placement per trial with probability 1/2.
	Counterbalance bool
	// Budget keeps only the first Budget trials after shuffling. Zero keeps all.
	Budget int
	// PracticeCount copies this many leading trials into the practice block.
	PracticeCount int
}

// Pairs enumerates every unordered pair of distinct items, i<j, as trials with
// Left=Video1 and Right=Video2.
func Pairs(items []stimulus.Item) ([]Trial, error) {
	n := len(items)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientStimuli, n)
	}
	seen := make(map[string]struct{}, n)
	for _, it := range items {
		if _, dup := seen[it.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStimulus, it.Key())
		}
		seen[it.Key()] = struct{}{}
	}

	trials := make([]Trial, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			trials = append(trials, Trial{
				Video1: items[i],
				Video2: items[j],
				Left:   items[i],
				Right:  items[j],
			})
		}
	}
	return trials, nil
}

// Counterbalance returns a copy of trials where each trial's placement is
// swapped independently with probability 1/2.
func Counterbalance(trials []Trial, r random.Rand) []Trial {
	out := make([]Trial, len(trials))
	for i, t := range trials {
		if random.Coin(r) {
			t.Left, t.Right = t.Video2, t.Video1
		} else {
			t.Left, t.Right = t.Video1, t.Video2
		}
		out[i] = t
	}
	return out
}

// Shuffle returns a uniformly permuted copy of trials.
func Shuffle(trials []Trial, r random.Rand) []Trial {
	out := append([]Trial(nil), trials...)
	random.Shuffle(out, r)
	return out
}

// Generate builds a session sequence: pairs, optional counterbalancing, a full
// shuffle, truncation to the budget and the practice prefix.
func Generate(items []stimulus.Item, opts Options, r random.Rand) (Sequence, error) {
	trials, err := Pairs(items)
	if err != nil {
		return Sequence{}, err
	}
	if opts.Counterbalance {
		trials = Counterbalance(trials, r)
	}
	trials = Shuffle(trials, r)
	if opts.Budget > 0 && opts.Budget < len(trials) {
		trials = trials[:opts.Budget]
	}

	seq := Sequence{Main: trials, Practice: []Trial{}}
	if opts.PracticeCount > 0 {
		n := min(opts.PracticeCount, len(trials))
		seq.Practice = make([]Trial, n)
		for i := range n {
			t := trials[i]
			t.Practice = true
			seq.Practice[i] = t
		}
	}
	return seq, nil
}
