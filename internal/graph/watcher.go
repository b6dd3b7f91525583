package graph

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceWatcher invalidates bundle cache entries when their symbol-table
// artifacts change on disk. Parent directories are watched so atomic
// rename-into-place writes (the common indexer behavior) are seen.
type SourceWatcher struct {
	cache     *BundleCache
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration

	mu      sync.Mutex
	sources map[string]string // absolute path -> source ID as registered
	pending map[string]bool
	timer   *time.Timer
	done    chan struct{}
}

func NewSourceWatcher(cache *BundleCache, debounce time.Duration) (*SourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &SourceWatcher{
		cache:     cache,
		fsWatcher: fsw,
		debounce:  debounce,
		sources:   make(map[string]string),
		pending:   make(map[string]bool),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch registers a symbol-table artifact path for invalidation.
func (w *SourceWatcher) Watch(sourceID string) error {
	abs, err := filepath.Abs(sourceID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.sources[abs] = sourceID
	w.mu.Unlock()

	return w.fsWatcher.Add(filepath.Dir(abs))
}

func (w *SourceWatcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			sourceID, tracked := w.sources[abs]
			if tracked {
				w.pending[sourceID] = true
				if w.timer != nil {
					w.timer.Stop()
				}
				w.timer = time.AfterFunc(w.debounce, w.flush)
			}
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("source watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *SourceWatcher) flush() {
	w.mu.Lock()
	sources := make([]string, 0, len(w.pending))
	for s := range w.pending {
		sources = append(sources, s)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	for _, sourceID := range sources {
		if _, cached := w.cache.Peek(sourceID); !cached {
			continue
		}
		w.cache.Invalidate(sourceID)
		slog.Info("symbol table changed, bundle invalidated", "source", sourceID)
	}
}

func (w *SourceWatcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsWatcher.Close()
}
