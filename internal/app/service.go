// Package service provides the experiment service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/okian/pairwise/internal/adapters/discovery"
	repository "github.com/okian/pairwise/internal/adapters/repository"
	"github.com/okian/pairwise/internal/domain/experiment"
	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/stimulus"
	"github.com/okian/pairwise/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service serves video listings, trial sequences and log persistence.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	scanner *discovery.Scanner
	lister  stimulus.Lister

	// Configuration
	storeDriver    string
	storeDSN       string
	storeOpts      []repository.Option
	videosDir      string
	layout         experiment.Layout
	urlPrefix      string
	watchVideos    bool
	defaultVariant string
	trialBudget    int
	practiceCount  int
	newSeed        func() int64

	// State
	started    bool
	background *errgroup.Group
	stopBg     context.CancelFunc
	logged     atomic.Int64
	logFailed  atomic.Int64
	planned    atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore selects the log store driver and its DSN.
func WithStore(driver, dsn string, opts ...repository.Option) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
			s.storeDSN = dsn
			s.storeOpts = opts
		}
	}
}

// WithVideos sets the videos directory, its layout and the URL prefix used
// for categorized paths.
func WithVideos(dir string, layout experiment.Layout, urlPrefix string) Option {
	return func(s *Service) {
		if dir != "" {
			s.videosDir = dir
		}
		if layout != "" {
			s.layout = layout
		}
		if urlPrefix != "" {
			s.urlPrefix = urlPrefix
		}
	}
}

// WithWatchVideos toggles listing invalidation on directory changes.
func WithWatchVideos(watch bool) Option {
	return func(s *Service) {
		s.watchVideos = watch
	}
}

// WithDefaultVariant sets the variant planned when a request names none.
func WithDefaultVariant(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultVariant = name
		}
	}
}

// WithTrialBudget overrides every variant's trial budget.
func WithTrialBudget(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.trialBudget = n
		}
	}
}

// WithPracticeCount overrides every variant's practice count.
func WithPracticeCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.practiceCount = n
		}
	}
}

// WithSeedSource sets how seeds are drawn for unseeded sequence requests.
func WithSeedSource(fn func() int64) Option {
	return func(s *Service) {
		if fn != nil {
			s.newSeed = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:    repository.DriverMemory,
		videosDir:      "general_assets/videos",
		layout:         experiment.LayoutFlat,
		urlPrefix:      "/general_assets/videos",
		defaultVariant: experiment.Novel.Name,
		newSeed:        random.NewSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and the video listing, and starts the directory
// watcher when enabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting experiment service...")

	store, err := repository.Open(ctx, s.storeDriver, s.storeDSN, s.storeOpts...)
	if err != nil {
		return fmt.Errorf("open %s store: %w", s.storeDriver, err)
	}
	s.store = store

	s.scanner = discovery.NewScanner(s.videosDir, s.layout, discovery.WithURLPrefix(s.urlPrefix))
	s.lister = s.scanner

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopBg = cancel
	s.background, bgCtx = errgroup.WithContext(bgCtx)
	if s.watchVideos {
		s.startWatcher(bgCtx)
	}

	s.started = true
	s.logger.Info(ctx, "experiment service started",
		logger.String("store", s.storeDriver),
		logger.String("videos_dir", s.videosDir),
		logger.String("layout", string(s.layout)),
		logger.Bool("watch_videos", s.watchVideos),
	)
	return nil
}

// startWatcher caches the listing and runs a directory watcher that
// invalidates it. When the directory cannot be watched the listing is read
// on every request.
func (s *Service) startWatcher(ctx context.Context) {
	if _, err := os.Stat(s.videosDir); err != nil {
		s.logger.Warn(ctx, "videos directory not watchable", logger.String("dir", s.videosDir), logger.Error(err))
		return
	}
	cache := discovery.NewCachedLister(s.scanner)
	w, err := discovery.NewWatcher(s.videosDir, cache, s.logger.Named("watcher"))
	if err != nil {
		s.logger.Warn(ctx, "videos watcher disabled", logger.Error(err))
		return
	}
	s.lister = cache
	s.background.Go(func() error { return w.Run(ctx) })
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping experiment service...")

	s.stopBg()
	if err := s.background.Wait(); err != nil {
		s.logger.Error(ctx, "background task failed", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "experiment service stopped")
}

// ListVideos returns the current video listing.
func (s *Service) ListVideos(ctx context.Context) ([]stimulus.Item, error) {
	s.mu.RLock()
	lister := s.lister
	s.mu.RUnlock()
	if lister == nil {
		return nil, ErrNotStarted
	}
	return lister.List(ctx)
}

// VideoLayout returns the configured videos directory layout.
func (s *Service) VideoLayout() experiment.Layout {
	return s.layout
}

// LogTrial persists one trial record.
func (s *Service) LogTrial(ctx context.Context, rec *model.LogRecord) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		s.logFailed.Add(1)
		return ErrNotStarted
	}
	if err := store.Save(ctx, rec); err != nil {
		s.logFailed.Add(1)
		return err
	}
	s.logged.Add(1)
	return nil
}

// PlanSequence generates a trial sequence for the named variant, or the
// default variant when name is empty. The assignment carries the seed the
// sequence was drawn from, so unseeded sessions can be replayed. Variants that discover their stimuli
// read them from the local video listing when its layout matches theirs, and
// use their fallback list otherwise.
func (s *Service) PlanSequence(ctx context.Context, name string, seed *int64) (experiment.Assignment, error) {
	if name == "" {
		name = s.defaultVariant
	}
	v, err := experiment.Lookup(name)
	if err != nil {
		return experiment.Assignment{}, err
	}
	v = v.WithBudget(s.trialBudget)
	if s.practiceCount > 0 {
		v = v.WithPracticeCount(s.practiceCount)
	}

	s.mu.RLock()
	lister := s.lister
	layout := s.layout
	log := s.logger
	s.mu.RUnlock()
	if log == nil {
		log = logger.Nop()
	}

	var discovered stimulus.Source
	switch {
	case lister == nil || !v.Discover:
	case v.Layout != layout:
		log.Debug(ctx, "video listing layout does not match variant, using its fallback list",
			logger.String("variant", v.Name),
			logger.String("variantLayout", string(v.Layout)),
			logger.String("listingLayout", string(layout)),
		)
	default:
		discovered = stimulus.RemoteSource(lister)
	}

	sd := s.newSeed()
	if seed != nil {
		sd = *seed
	}
	seq, err := experiment.Plan(ctx, v, discovered, random.New(sd), log.Named("planner"))
	if err != nil {
		return experiment.Assignment{Variant: v, Seed: sd}, err
	}
	s.planned.Add(1)
	return experiment.Assignment{Variant: v, Seed: sd, Sequence: seq}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"store":          s.storeDriver,
		"layout":         string(s.layout),
		"defaultVariant": s.defaultVariant,
		"variants":       experiment.Names(),
		"logged":         s.logged.Load(),
		"logFailures":    s.logFailed.Load(),
		"planned":        s.planned.Load(),
	}
	if s.started {
		if n, err := s.store.Count(context.Background()); err == nil {
			stats["storedRecords"] = n
		}
	}
	return stats
}
