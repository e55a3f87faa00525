// Package site serves the experiment pages and shared media assets.
package site

import (
	"context"
	"net/http"
	"path/filepath"
)

// AssetPrefixes are the URL prefixes the shared assets directory is mounted
// under. The second spelling is referenced by published experiment pages.
var AssetPrefixes = []string{"/general_assets/", "/general_assests/"}

// Mounts names the directories served by the site.
type Mounts struct {
	// ExperimentDir is served at "/". When empty the embedded landing page is served.
	ExperimentDir string
	// IndexFile is served for "/" itself, relative to ExperimentDir.
	IndexFile string
	// AssetsDir is served under AssetPrefixes. Skipped when empty.
	AssetsDir string
}

// Register attaches the static site routes to mux.
func Register(_ context.Context, mux *http.ServeMux, m Mounts) {
	if mux == nil {
		panic("mux is nil")
	}

	if m.AssetsDir != "" {
		assets := http.FileServer(http.Dir(m.AssetsDir))
		for _, prefix := range AssetPrefixes {
			mux.Handle(prefix, http.StripPrefix(prefix[:len(prefix)-1], assets))
		}
	}

	mux.Handle("/", NewRootHandler(m))
}

// RootHandler serves the experiment directory and its index page.
type RootHandler struct {
	files http.Handler
	index string
}

// NewRootHandler creates a new root handler.
func NewRootHandler(m Mounts) *RootHandler {
	h := &RootHandler{}
	if m.ExperimentDir == "" {
		h.files = http.FileServer(FS())
		return h
	}
	h.files = http.FileServer(http.Dir(m.ExperimentDir))
	if m.IndexFile != "" {
		h.index = filepath.Join(m.ExperimentDir, m.IndexFile)
	}
	return h
}

// ServeHTTP serves the index file for "/" and static files for everything else.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && h.index != "" {
		http.ServeFile(w, r, h.index)
		return
	}
	h.files.ServeHTTP(w, r)
}
