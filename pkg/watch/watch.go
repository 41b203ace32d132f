// Package watch re-runs a callback when units below a root directory change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/execconf/execconf/pkg/telemetry"
	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the debounce delay between the last change and a reload.
const DefaultDelay = 300 * time.Millisecond

// ReloadFunc is called after a debounced batch of changes.
type ReloadFunc func(ctx context.Context) error

// Watcher watches a root directory tree for unit changes.
type Watcher struct {
	rootDir    string
	extensions []string
	delay      time.Duration
	logger     *telemetry.Logger
	events     *telemetry.EventPublisher

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
}

// New creates a Watcher for rootDir. Only files with one of the extensions
// trigger a reload; an empty list accepts every file.
func New(rootDir string, extensions []string, logger *telemetry.Logger) *Watcher {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	exts := make([]string, len(extensions))
	for i, ext := range extensions {
		exts[i] = strings.TrimPrefix(ext, ".")
	}
	return &Watcher{
		rootDir:    rootDir,
		extensions: exts,
		delay:      DefaultDelay,
		logger:     logger.NewComponentLogger("watch"),
	}
}

// WithDelay sets the debounce delay.
func (w *Watcher) WithDelay(d time.Duration) *Watcher {
	w.delay = d
	return w
}

// WithEvents publishes a reload event for every relevant change.
func (w *Watcher) WithEvents(ep *telemetry.EventPublisher) *Watcher {
	w.events = ep
	return w
}

// Run watches until ctx is done, calling reload after each batch of changes.
// Reload errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, reload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher
	defer watcher.Close()

	if err := w.watchDirectory(w.rootDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.rootDir, err)
	}
	w.logger.Infof("watching %s", w.rootDir)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event, reload ReloadFunc) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchDirectory(event.Name); err != nil {
				w.logger.WithError(err).Warnf("failed to watch %s", event.Name)
			}
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.relevant(event.Name) {
		return
	}

	w.logger.WithField("op", event.Op.String()).Debugf("unit changed: %s", event.Name)
	if err := w.events.PublishReload(event.Name, event.Op.String()); err != nil {
		w.logger.WithError(err).Warn("failed to publish event")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := reload(ctx); err != nil {
			w.logger.WithError(err).Error("reload failed")
		}
	})
}

// relevant reports whether a changed file can be a unit.
func (w *Watcher) relevant(name string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, strings.TrimPrefix(filepath.Ext(name), "."))
}

// watchDirectory adds dirPath and every directory below it to the watcher.
func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
