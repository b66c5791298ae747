// Package watcher reloads local OpenAPI spec files when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alucardeht/elk-mcp/internal/logger"
)

var log = logger.ForComponent("watcher")

// Handler is called with the last event seen for a watched file in a debounce
// window.
type Handler func(FileEvent)

// Watcher tracks individual files. It watches their parent directories, since
// editors commonly save by writing a temp file and renaming it over the target,
// which drops a watch placed on the file itself.
type Watcher struct {
	config      WatcherConfig
	fsWatcher   *fsnotify.Watcher
	fsWatcherMu sync.Mutex
	debouncer   *Debouncer
	files       map[string]Handler
	dirs        map[string]int
	mu          sync.RWMutex
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func New(config WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:    config,
		fsWatcher: fsWatcher,
		files:     make(map[string]Handler),
		dirs:      make(map[string]int),
	}
	w.debouncer = NewDebouncer(config.DebounceWindow, config.MaxBatchSize, w.onFlush)

	return w, nil
}

// Watch registers handler for path. Watching the same path again replaces its
// handler.
func (w *Watcher) Watch(path string, handler Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; ok {
		w.files[abs] = handler
		return nil
	}

	if w.dirs[dir] == 0 {
		w.fsWatcherMu.Lock()
		err := w.fsWatcher.Add(dir)
		w.fsWatcherMu.Unlock()
		if err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.dirs[dir]++
	w.files[abs] = handler
	log.Info("watching spec file", "path", abs)
	return nil
}

func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)

	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		w.fsWatcherMu.Lock()
		w.fsWatcher.Remove(dir)
		w.fsWatcherMu.Unlock()
	}
}

// Files returns the watched paths.
func (w *Watcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	log.Info("starting spec watcher")
	go w.handleEvents()

	return nil
}

func (w *Watcher) handleEvents() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			fileEvent := w.convertEvent(event)
			if fileEvent == nil {
				continue
			}
			log.Debug("spec file event", "path", event.Name, "op", event.Op.String())
			w.debouncer.Add(*fileEvent)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) convertEvent(event fsnotify.Event) *FileEvent {
	path := filepath.Clean(event.Name)

	w.mu.RLock()
	_, watched := w.files[path]
	w.mu.RUnlock()
	if !watched {
		return nil
	}

	var eventType EventType

	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventModify
	case event.Has(fsnotify.Remove):
		eventType = EventDelete
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	default:
		return nil
	}

	return &FileEvent{
		Path:      path,
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (w *Watcher) onFlush(events []FileEvent) {
	for _, event := range events {
		// A rename or delete followed by a fresh write within the window shows
		// up as the last event only; trust the filesystem over the event type.
		if event.Gone() {
			if _, err := os.Stat(event.Path); err == nil {
				event.Type = EventModify
			} else {
				log.Warn("watched spec file disappeared", "path", event.Path)
				continue
			}
		}

		w.mu.RLock()
		handler := w.files[event.Path]
		w.mu.RUnlock()

		if handler != nil {
			handler(event)
		}
	}
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	var done chan struct{}
	if w.running {
		w.running = false
		w.cancel()
		done = w.done
	}
	w.mu.Unlock()

	if done != nil {
		log.Info("stopping spec watcher")
		<-done
	}
	w.debouncer.Stop()

	w.fsWatcherMu.Lock()
	defer w.fsWatcherMu.Unlock()
	return w.fsWatcher.Close()
}
