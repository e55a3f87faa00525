// Package discovery lists the videos available on disk.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/stimulus"
	"github.com/okian/pairwise/pkg/metrics"
)

// ErrVideosDir is returned when the videos directory cannot be read.
var ErrVideosDir = errors.New("failed to read videos directory")

// DefaultExtensions are the video file extensions listed by a Scanner.
var DefaultExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"} //nolint:gochecknoglobals // allow-list

// Scanner lists videos from a directory. A flat scanner returns bare file
// names; a categorized scanner walks numeric folders and returns located items.
type Scanner struct {
	dir        string
	layout     experiment.Layout
	urlPrefix  string
	extensions map[string]struct{}
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithURLPrefix sets the URL prefix of categorized item paths.
func WithURLPrefix(prefix string) ScannerOption {
	return func(s *Scanner) { s.urlPrefix = prefix }
}

// WithExtensions replaces the extension allow-list. Matching is case-insensitive.
func WithExtensions(exts ...string) ScannerOption {
	return func(s *Scanner) {
		if len(exts) == 0 {
			return
		}
		s.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.extensions[e] = struct{}{}
		}
	}
}

// NewScanner returns a Scanner over dir.
func NewScanner(dir string, layout experiment.Layout, opts ...ScannerOption) *Scanner {
	s := &Scanner{dir: dir, layout: layout}
	WithExtensions(DefaultExtensions...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the scanned directory.
func (s *Scanner) Dir() string { return s.dir }

// Layout returns the scanner layout.
func (s *Scanner) Layout() experiment.Layout { return s.layout }

// List implements stimulus.Lister.
func (s *Scanner) List(ctx context.Context) ([]stimulus.Item, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVideosDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrVideosDir, s.dir)
	}

	var items []stimulus.Item
	if s.layout == experiment.LayoutCategorized {
		items, err = s.listCategorized(ctx)
	} else {
		items, err = s.listFlat(ctx)
	}
	if err != nil {
		return nil, err
	}
	metrics.UpdateVideosListed(string(s.layout), len(items))
	return items, nil
}

func (s *Scanner) listFlat(ctx context.Context) ([]stimulus.Item, error) {
	items := []stimulus.Item{}
	err := doublestar.GlobWalk(os.DirFS(s.dir), "*", func(p string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !s.allowed(p) {
			return nil
		}
		items = append(items, stimulus.File(p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVideosDir, err)
	}
	return items, nil
}

func (s *Scanner) listCategorized(ctx context.Context) ([]stimulus.Item, error) {
	items := []stimulus.Item{}
	err := doublestar.GlobWalk(os.DirFS(s.dir), "*/*", func(p string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !s.allowed(p) {
			return nil
		}
		folderName, file := path.Split(p)
		folderName = strings.TrimSuffix(folderName, "/")
		folder, ok := leadingInt(folderName)
		if !ok {
			return nil
		}
		items = append(items, stimulus.Item{
			Path:        s.urlPrefix + "/" + folderName + "/" + file,
			Folder:      folder,
			FullName:    file,
			Categorized: true,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVideosDir, err)
	}
	return items, nil
}

func (s *Scanner) allowed(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// leadingInt parses the decimal digits a folder name starts with, so "12"
// and "12-extra" both belong to folder 12.
func leadingInt(name string) (int, bool) {
	end := 0
	for end < len(name) && unicode.IsDigit(rune(name[end])) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
