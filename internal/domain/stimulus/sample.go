package stimulus

import "github.com/okian/pairwise/internal/domain/random"

// SampleOnePerCategory keeps exactly one uniformly chosen item per folder,
// placed where the folder first appears. Items without a folder are each their
// own category and pass through unchanged.
func SampleOnePerCategory(items []Item, r random.Rand) []Item {
	groups := make(map[int][]Item)
	for _, it := range items {
		if it.HasFolder() {
			groups[it.Folder] = append(groups[it.Folder], it)
		}
	}

	out := make([]Item, 0, len(groups))
	seen := make(map[int]bool, len(groups))
	for _, it := range items {
		if !it.HasFolder() {
			out = append(out, it)
			continue
		}
		if seen[it.Folder] {
			continue
		}
		seen[it.Folder] = true
		out = append(out, random.Pick(groups[it.Folder], r))
	}
	return out
}
