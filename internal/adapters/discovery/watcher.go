package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/pairwise/pkg/logger"
)

// Watcher invalidates a CachedLister when the videos directory changes.
type Watcher struct {
	root  string
	cache *CachedLister
	fsw   *fsnotify.Watcher
	log   logger.Logger
}

// NewWatcher watches root and its immediate subdirectories.
func NewWatcher(root string, cache *CachedLister, log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &Watcher{root: root, cache: cache, fsw: fsw, log: log}
	if err := w.addWatches(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addWatches() error {
	if err := w.fsw.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.addDir(filepath.Join(w.root, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) addDir(path string) {
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn(context.Background(), "failed to watch directory",
			logger.String("path", path),
			logger.Error(err),
		)
	}
}

// Run processes file system events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.log.Info(ctx, "watching videos directory", logger.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error(ctx, "watcher error", logger.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addDir(ev.Name)
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	w.cache.Invalidate()
	w.log.Debug(ctx, "videos changed, listing invalidated",
		logger.String("path", ev.Name),
		logger.String("op", ev.Op.String()),
	)
}
