// Package watcher rebuilds the catalog when its source document changes. Events are debounced
// and rebuilds run one at a time; changes during a rebuild queue exactly one more.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// RebuildFunc rebuilds the catalog from the watched source.
type RebuildFunc func(ctx context.Context) error

// Watcher watches one source markdown file (and its sibling images directory) and invokes a
// rebuild callback after changes settle.
type Watcher struct {
	source    string
	imagesDir string
	rebuild   RebuildFunc
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	kick     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
	rebuilds int
	lastErr  error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long events must be quiet before a rebuild (default 400ms).
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for source. rebuild is called after changes settle.
func NewWatcher(source string, rebuild RebuildFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	stem := strings.TrimSuffix(abs, filepath.Ext(abs))
	w := &Watcher{
		source:    abs,
		imagesDir: stem + "_images",
		rebuild:   rebuild,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Source returns the absolute path of the watched document.
func (w *Watcher) Source() string { return w.source }

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors often replace the file, which drops a file-level watch.
	if err := fw.Add(filepath.Dir(w.source)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.source), err)
	}
	if info, err := os.Stat(w.imagesDir); err == nil && info.IsDir() {
		if err := fw.Add(w.imagesDir); err != nil {
			w.logger.Debug("watcher failed to add images directory", zap.String("path", w.imagesDir), zap.Error(err))
		}
	}
	w.watcher = fw
	w.started = true
	w.logger.Info("watching catalog source", zap.String("source", w.source), zap.Duration("debounce", w.debounce))

	w.wg.Add(2)
	go w.run(ctx, fw)
	go w.worker(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case path == w.source:
	case path == w.imagesDir:
		if ev.Has(fsnotify.Create) {
			if err := fw.Add(path); err != nil {
				w.logger.Debug("watcher failed to add images directory", zap.String("path", path), zap.Error(err))
			}
		}
	case filepath.Dir(path) == w.imagesDir:
	default:
		return
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	w.schedule()
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Trigger)
}

// Trigger queues a rebuild. At most one rebuild is pending at any time.
func (w *Watcher) Trigger() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.kick:
			if _, err := os.Stat(w.source); err != nil {
				w.logger.Warn("catalog source unavailable, skipping rebuild", zap.String("source", w.source), zap.Error(err))
				continue
			}
			start := time.Now()
			err := w.rebuild(ctx)
			w.mu.Lock()
			w.rebuilds++
			w.lastErr = err
			w.mu.Unlock()
			if err != nil {
				w.logger.Error("catalog rebuild failed", zap.Error(err))
				continue
			}
			w.logger.Info("catalog rebuilt", zap.String("source", w.source), zap.Duration("took", time.Since(start)))
		}
	}
}

// Rebuilds returns the number of completed rebuild attempts and the last error.
func (w *Watcher) Rebuilds() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds, w.lastErr
}

// Stop stops the watcher, waits for a running rebuild to finish and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	_ = w.watcher.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}
