// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/pairwise/internal/domain/experiment"
)

// Store drivers accepted by StoreDriver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// Experiment names the variant served by /api/sequence when none is given.
	Experiment string `koanf:"experiment"`

	// ExperimentDir is served at "/"; IndexFile is the page served for "/".
	ExperimentDir string `koanf:"experiment_dir"`
	IndexFile     string `koanf:"index_file"`

	// AssetsDir is served under /general_assets/.
	AssetsDir string `koanf:"assets_dir"`

	// VideosDir is listed by GET /api/videos.
	VideosDir string `koanf:"videos_dir"`

	// VideoLayout is flat or categorized.
	VideoLayout string `koanf:"video_layout"`

	// VideoURLPrefix prefixes categorized video paths.
	VideoURLPrefix string `koanf:"video_url_prefix"`

	// WatchVideos invalidates the cached listing when the directory changes.
	WatchVideos bool `koanf:"watch_videos"`

	// StoreDriver is memory, sqlite or mysql; StoreDSN is passed to it.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// TrialBudget and PracticeCount override the variant defaults when positive.
	TrialBudget   int `koanf:"trial_budget"`
	PracticeCount int `koanf:"practice_count"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":3000",
		Experiment:     experiment.Novel.Name,
		IndexFile:      "index.html",
		VideosDir:      "general_assets/25-abstract-animations",
		VideoLayout:    string(experiment.LayoutCategorized),
		VideoURLPrefix: "/general_assets/25-abstract-animations",
		WatchVideos:    true,
		StoreDriver:    DriverSQLite,
		StoreDSN:       "pairwise.db",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.VideoLayout != string(experiment.LayoutFlat) && c.VideoLayout != string(experiment.LayoutCategorized):
		return fmt.Errorf("%w: video_layout must be flat or categorized, got %q", ErrInvalidConfig, c.VideoLayout)
	case !slices.Contains([]string{DriverMemory, DriverSQLite, DriverMySQL}, c.StoreDriver):
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver != DriverMemory && c.StoreDSN == "":
		return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
	case c.TrialBudget < 0 || c.PracticeCount < 0:
		return fmt.Errorf("%w: trial_budget and practice_count must not be negative", ErrInvalidConfig)
	}
	v, err := experiment.Lookup(c.Experiment)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if v.Discover && v.Layout != c.Layout() {
		return fmt.Errorf("%w: experiment %s discovers a %s listing but video_layout is %s",
			ErrInvalidConfig, v.Name, v.Layout, c.VideoLayout)
	}
	return nil
}

// Layout returns VideoLayout as an experiment.Layout.
func (c *Config) Layout() experiment.Layout {
	return experiment.Layout(c.VideoLayout)
}
