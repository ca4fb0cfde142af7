// Package watch reloads credentials when potfiles in the handshakes directory change.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/potfile"
)

// DefaultDebounce is how long a potfile must be quiet before a reload.
const DefaultDebounce = 500 * time.Millisecond

const tick = 100 * time.Millisecond

// Reloader rebuilds the credential index.
type Reloader interface {
	LoadCredentials() (int, error)
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int       `json:"events"`
	Reloads       int       `json:"reloads"`
	Errors        int       `json:"errors"`
	LastEventTime time.Time `json:"last_event_time"`
	LastEventPath string    `json:"last_event_path"`
	LastEventType string    `json:"last_event_type"`
}

// Watcher watches one directory for potfile changes and calls the Reloader
// once the changes settle.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	target   Reloader
	logger   *zap.Logger
	pending  map[string]time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    Stats
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher for dir. It does not start watching until Start.
func New(dir string, target Reloader, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIO(dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		watcher:  fw,
		dir:      dir,
		target:   target,
		logger:   logger.Named("watch"),
		pending:  make(map[string]time.Time),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It is non-blocking and a no-op when already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return errors.NewIO(w.dir, err)
	}
	w.logger.Info("watching potfiles", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent records a potfile event for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !potfile.IsPotfile(filepath.Base(event.Name)) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	w.logger.Debug("potfile event", zap.String("path", event.Name), zap.String("op", eventType))

	now := time.Now()
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	w.pending[event.Name] = now
	w.mu.Unlock()
}

// flush reloads once if any pending event has settled past the debounce window.
// Events still inside the window stay pending for the next tick.
func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			delete(w.pending, path)
			settled++
		}
	}
	w.mu.Unlock()

	if settled == 0 {
		return
	}

	n, err := w.target.LoadCredentials()
	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Reloads++
	}
	w.mu.Unlock()
	if err != nil {
		w.logger.Error("reloading potfiles", zap.Error(err))
		return
	}
	w.logger.Info("potfiles reloaded", zap.Int("count", n), zap.Int("changed", settled))
}
