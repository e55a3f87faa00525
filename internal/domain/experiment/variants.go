package experiment

import (
	"fmt"

	"github.com/okian/pairwise/internal/domain/stimulus"
)

const (
	familiarMediaPrefix = "/general_assets/videos_familiarobjs/"
	abstractAnimations  = "/general_assets/25-abstract-animations"
)

// Familiar compares a fixed list of twelve familiar-object videos, all pairs,
// with a three-trial practice block.
var Familiar = Variant{ //nolint:gochecknoglobals // variant definition
	Name:   "familiar",
	Layout: LayoutFlat,
	Fallback: stimulus.Files(
		"1-1016-B0.mp4", "1-1016-B1.mp4", "1-1016-B2.mp4", "1-1016-B3.mp4",
		"2-45-B0.mp4", "2-45-B1.mp4", "2-45-B2.mp4", "2-45-B3.mp4",
		"3-1016-B0.mp4", "3-1016-B1.mp4", "3-1016-B2.mp4", "3-1016-B3.mp4",
	),
	PracticeCount:       3,
	ComparisonTrialType: TrialTypeButton,
	MediaPrefix:         familiarMediaPrefix,
	CompletionURL:       "https://app.prolific.com/submissions/complete?cc=C183XD81",
}

// FamiliarOpenEnded discovers the familiar-object videos, shows ten
// counterbalanced pairs and asks for an explanation after each choice.
var FamiliarOpenEnded = Variant{ //nolint:gochecknoglobals // variant definition
	Name:                "familiar_openended",
	Layout:              LayoutFlat,
	Discover:            true,
	Fallback:            numberedFiles(2, 10),
	Counterbalance:      true,
	Budget:              10,
	RequireExplanation:  true,
	ComparisonTrialType: TrialTypeComparison,
	MediaPrefix:         familiarMediaPrefix,
	CompletionURL:       "https://app.prolific.com/submissions/complete?cc=C11U6ZL8",
}

// Novel samples one abstract animation per folder and shows fifteen
// counterbalanced pairs.
var Novel = Variant{ //nolint:gochecknoglobals // variant definition
	Name:     "novel",
	Layout:   LayoutCategorized,
	Discover: true,
	Fallback: stimulus.Catalog{
		BasePath: abstractAnimations,
		Folders:  30,
		Bevels:   []string{"B0", "B1", "B2", "B5"},
		Pattern:  stimulus.AbstractAnimationPattern,
	},
	SampleByCategory:    true,
	ShuffleItems:        true,
	Counterbalance:      true,
	Budget:              15,
	ComparisonTrialType: TrialTypeComparison,
	CompletionURL:       "https://app.prolific.com/submissions/complete?cc=C11U6ZL8",
}

func numberedFiles(from, to int) stimulus.StaticSource {
	names := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		names = append(names, fmt.Sprintf("File %d.mp4", i))
	}
	return stimulus.Files(names...)
}
