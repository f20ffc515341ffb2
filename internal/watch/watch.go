// Package watch reports debounced file changes inside one directory using
// fsnotify.
//
// Watching the directory rather than the file keeps working when editors or
// atomic writers replace the file through a rename.
package watch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher calls a function once a burst of matching file events has settled.
type Watcher struct {
	dir      string
	match    func(path string) bool
	debounce time.Duration
	onChange func()

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	runMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a [Watcher].
type Option func(*Watcher)

// WithDebounce sets how long the directory must be quiet before onChange
// runs. Default: 250ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter restricts the events that trigger onChange to paths for which
// match returns true. By default every event counts.
func WithFilter(match func(path string) bool) Option {
	return func(w *Watcher) {
		if match != nil {
			w.match = match
		}
	}
}

// New starts watching dir. onChange runs on its own goroutine and never
// concurrently with itself.
func New(dir string, onChange func(), opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		match:    func(string) bool { return true },
		debounce: defaultDebounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: add %q: %w", dir, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Stop ends the watch and waits for the event loop to exit. A pending
// debounced call is dropped. Stop is idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod || !w.match(ev.Name) {
				continue
			}
			slog.Debug("watch: file event", "op", ev.Op.String(), "path", ev.Name)
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: fsnotify error", "dir", w.dir, "err", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

// fire serialises onChange calls; a timer that fires while a previous call
// is still running waits for it.
func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.onChange()
}
