package stimulus

import (
	"context"
	"fmt"
	"path"
	"strconv"
)

// Catalog describes a generated folder x bevel stimulus grid where every
// folder holds one clip per bevel level, named "<folder>-<pattern>-<bevel>.mp4".
type Catalog struct {
	BasePath string
	Folders  int
	Bevels   []string
	// Pattern returns the pattern number used in a folder's file names.
	Pattern func(folder int) int
}

// AbstractAnimationPattern is the pattern numbering of the abstract animation
// set: odd folders use 1016, folders 2 mod 4 use 45 and multiples of 4 use 68.
func AbstractAnimationPattern(folder int) int {
	switch {
	case folder%2 == 1:
		return 1016
	case folder%4 == 2:
		return 45
	default:
		return 68
	}
}

// Items enumerates the catalogue in folder then bevel order.
func (c Catalog) Items(context.Context) ([]Item, error) {
	pattern := c.Pattern
	if pattern == nil {
		pattern = AbstractAnimationPattern
	}
	items := make([]Item, 0, c.Folders*len(c.Bevels))
	for folder := 1; folder <= c.Folders; folder++ {
		for _, bevel := range c.Bevels {
			name := fmt.Sprintf("%d-%d-%s.mp4", folder, pattern(folder), bevel)
			items = append(items, Item{
				Path:        path.Join(c.BasePath, strconv.Itoa(folder), name),
				Folder:      folder,
				Bevel:       bevel,
				FullName:    name,
				Categorized: true,
			})
		}
	}
	return items, nil
}
