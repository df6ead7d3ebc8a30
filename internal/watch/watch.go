// Package watch triggers library syncs when a locally installed
// launcher rewrites its database. GOG Galaxy and Amazon Games both keep
// a SQLite file on disk; a change to either means the library changed
// outside of us.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gamehoard/internal/jobs"
	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

const debounceWindow = 2 * time.Second

// JobStarter is the trigger target, satisfied by *jobs.Engine.
type JobStarter interface {
	Start(ctx context.Context, jobType string, force bool) (string, error)
}

// Watcher maps launcher database files to store sync jobs.
type Watcher struct {
	engine   JobStarter
	debounce time.Duration

	mu      sync.Mutex
	targets map[string]string // absolute file path -> store name
	timers  map[string]*time.Timer
}

// New builds a watcher over the launcher paths currently configured in
// settings. Unconfigured paths are skipped.
func New(engine JobStarter, reg *settings.Registry) *Watcher {
	w := &Watcher{
		engine:   engine,
		debounce: debounceWindow,
		targets:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
	w.addTarget(reg.String(settings.KeyGOGDBPath, ""), store.StoreGOG)
	w.addTarget(reg.String(settings.KeyAmazonDBPath, ""), store.StoreAmazon)
	return w
}

func (w *Watcher) addTarget(path, storeName string) {
	if path == "" {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		logging.Get(logging.CategoryWatch).Warn("Cannot resolve %s watch path %q: %v", storeName, path, err)
		return
	}
	w.targets[abs] = storeName
}

// Run watches until ctx is done. Launchers replace their database file
// rather than updating it in place, so the parent directory is watched
// and events are filtered by file name.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.targets) == 0 {
		logging.Watch("No launcher databases configured, watcher idle")
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	for path, storeName := range w.targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			logging.Get(logging.CategoryWatch).Warn("Cannot watch %s directory %q: %v", storeName, dir, err)
			continue
		}
		dirs[dir] = true
		logging.Watch("Watching %s database at %s", storeName, path)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryWatch).Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	storeName, ok := w.targets[abs]
	if !ok {
		return
	}
	logging.WatchDebug("%s database changed (%s), debouncing", storeName, event.Op)
	w.scheduleSync(ctx, storeName)
}

// scheduleSync arms (or re-arms) the per-store debounce timer. Launcher
// writes come in bursts; only the last one in a window fires a sync.
func (w *Watcher) scheduleSync(ctx context.Context, storeName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[storeName]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[storeName] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, storeName)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		jobType := jobs.StoreSyncType(storeName)
		id, err := w.engine.Start(ctx, jobType, false)
		switch {
		case err == nil:
			logging.Watch("%s database changed, started %s (job %s)", storeName, jobType, id)
		case err == jobs.ErrAlreadyRunning:
			logging.WatchDebug("%s sync already running (job %s)", storeName, id)
		default:
			logging.Get(logging.CategoryWatch).Warn("Failed to start %s after file change: %v", jobType, err)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, timer := range w.timers {
		timer.Stop()
		delete(w.timers, name)
	}
}
