package sources

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of events (editors often write, chmod and rename)
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher reports changes to the files backing a file upstream.
// fsnotify watches directories, so every directory containing a source is added
// and events are mapped back to source ids.
type Watcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string][]string
	dirs     []string
	onChange func(id string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the registry's sources under the fetcher's root.
// onChange is called with a source id after its file settles.
func NewWatcher(fetcher *FileFetcher, registry *Registry, onChange func(id string)) (*Watcher, error) {
	paths := make(map[string][]string)
	dirSet := make(map[string]bool)
	var dirs []string
	for _, src := range registry.All() {
		path, err := fetcher.Resolve(src)
		if err != nil {
			return nil, err
		}
		path = filepath.Clean(path)
		paths[path] = append(paths[path], src.ID)
		if dir := filepath.Dir(path); !dirSet[dir] {
			dirSet[dir] = true
			dirs = append(dirs, dir)
		}
	}

	return &Watcher{
		paths:    paths,
		dirs:     dirs,
		onChange: onChange,
		debounce: DefaultWatchDebounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Directories that do not exist yet are skipped with a warning.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			slog.Warn("Cannot watch source directory", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 && len(w.dirs) > 0 {
		_ = fsw.Close()
		return fmt.Errorf("none of the %d source directories could be watched", len(w.dirs))
	}

	w.watcher = fsw
	w.done = make(chan struct{})
	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	slog.Info("Watching file upstream for changes", "directories", watched)
	return nil
}

// Stop stops watching and blocks until the event loop exits. Pending debounced
// notifications are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			for _, id := range w.paths[filepath.Clean(event.Name)] {
				w.schedule(id)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		running := w.running
		w.mu.Unlock()

		if running {
			slog.Debug("Source file changed", "source", id)
			w.onChange(id)
		}
	})
}
