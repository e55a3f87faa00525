// Package stimulus builds the set of videos a session compares.
package stimulus

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Item is one video stimulus. Flat listings only carry a file name; categorized
// listings also carry the URL path and the numeric folder (the "category").
type Item struct {
	Path     string `json:"path,omitempty"`
	Folder   int    `json:"folder"`
	Bevel    string `json:"bevel,omitempty"`
	FullName string `json:"fullName"`
	// Categorized marks Folder as set, so folder 0 is a category of its own.
	Categorized bool `json:"-"`
}

// File returns a bare file-name item.
func File(name string) Item { return Item{FullName: name} }

// IsBare reports whether the item is a plain file name with no location.
func (i Item) IsBare() bool { return i.Path == "" && !i.HasFolder() && i.Bevel == "" }

// HasFolder reports whether the item belongs to a folder category.
func (i Item) HasFolder() bool { return i.Categorized || i.Folder != 0 }

// Name is the value recorded in trial logs: the URL path when known, else the file name.
func (i Item) Name() string {
	if i.Path != "" {
		return i.Path
	}
	return i.FullName
}

// Key identifies the item within a set.
func (i Item) Key() string { return i.Name() }

var bevelSuffix = regexp.MustCompile(`-(B\d+)(?:\.[^.]*)?$`)

// BevelLevel returns the bevel label, parsing it from a "N-P-Bk.ext" file
// name when it was not set explicitly.
func (i Item) BevelLevel() string {
	if i.Bevel != "" {
		return i.Bevel
	}
	if m := bevelSuffix.FindStringSubmatch(i.FullName); m != nil {
		return m[1]
	}
	return ""
}

func (i Item) String() string { return i.Name() }

// wireItem is the JSON shape of a located item. A nil Folder means the item
// has no category.
type wireItem struct {
	Path     string `json:"path,omitempty"`
	Folder   *int   `json:"folder,omitempty"`
	Bevel    string `json:"bevel,omitempty"`
	FullName string `json:"fullName"`
}

// MarshalJSON encodes bare items as plain strings and located items as objects,
// matching both listing shapes.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.IsBare() {
		return json.Marshal(i.FullName)
	}
	w := wireItem{Path: i.Path, Bevel: i.Bevel, FullName: i.FullName}
	if i.HasFolder() {
		folder := i.Folder
		w.Folder = &folder
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either a bare string or a descriptor object.
func (i *Item) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*i = File(name)
		return nil
	}
	var w wireItem
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("stimulus item: %w", err)
	}
	if w.FullName == "" && w.Path == "" {
		return errors.New("stimulus item: missing fullName and path")
	}
	*i = Item{Path: w.Path, Bevel: w.Bevel, FullName: w.FullName}
	if w.Folder != nil {
		i.Folder = *w.Folder
		i.Categorized = true
	}
	return nil
}
