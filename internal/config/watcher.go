package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/me/postpilot/internal/metrics"
)

// Watcher re-applies the config file whenever it changes on disk. Invalid
// files are logged and ignored, so the last good config stays in effect.
type Watcher struct {
	path     string
	target   Target
	metrics  *metrics.Metrics
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	reloads int
}

// NewWatcher creates a watcher for path. m may be nil.
func NewWatcher(path string, target Target, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		target:   target,
		metrics:  m,
		logger:   logger.With("component", "config-watcher", "path", path),
		debounce: 250 * time.Millisecond,
	}
}

// Reloads returns how many successful reloads have been applied.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself because editors often replace files by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching config file")

	var pending <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Collapse bursts of events from a single save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			w.Reload(ctx)
		}
	}
}

// Reload loads and applies the file once.
func (w *Watcher) Reload(ctx context.Context) bool {
	f, err := LoadFile(w.path)
	if err == nil {
		err = f.Apply(ctx, w.target)
	}
	if err != nil {
		w.metrics.ConfigReload(false)
		w.logger.Error("config reload failed; keeping previous config", "error", err)
		return false
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.metrics.ConfigReload(true)
	w.logger.Info("config reloaded", "templates", len(f.Templates), "slots", len(f.Slots), "engine", f.Engine != nil)
	return true
}
