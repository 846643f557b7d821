// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reloads a canvas file into a Store whenever it changes on disk.
//
// # Description
//
// The parent directory is watched rather than the file itself, because
// editors and SaveFile replace the file by rename, which drops a direct
// watch. Events for other names in the directory are ignored. Bursts of
// events are collapsed with a debounce window and produce one reload.
//
// A file that fails to decode is logged and skipped; the store keeps its
// previous snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads happen on a single goroutine.
type FileWatcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*Snapshot, error)

	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// FileWatcherOptions configures the FileWatcher.
type FileWatcherOptions struct {
	// DebounceWindow is how long to wait for more events before reloading.
	// Default: 100ms
	DebounceWindow time.Duration

	// Logger receives reload diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// OnReload, if set, is called after every reload attempt.
	OnReload func(*Snapshot, error)
}

// DefaultFileWatcherOptions returns sensible defaults.
func DefaultFileWatcherOptions() FileWatcherOptions {
	return FileWatcherOptions{
		DebounceWindow: 100 * time.Millisecond,
	}
}

// NewFileWatcher creates a watcher that reloads path into store.
//
// # Inputs
//
//   - path: Canvas file to watch.
//   - store: Store to replace on change.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *FileWatcher: Ready-to-use watcher (call Start to begin watching).
//   - error: Non-nil if the fsnotify watcher could not be created.
func NewFileWatcher(path string, store *Store, opts *FileWatcherOptions) (*FileWatcher, error) {
	if opts == nil {
		defaults := DefaultFileWatcherOptions()
		opts = &defaults
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultFileWatcherOptions().DebounceWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		path:     abs,
		store:    store,
		watcher:  watcher,
		debounce: opts.DebounceWindow,
		logger:   logger.With(slog.String("component", "canvas_watcher"), slog.String("path", abs)),
		onReload: opts.OnReload,
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Both goroutines exit on Stop or ctx cancellation.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *FileWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// One pending signal is enough; the reload reads the latest file.
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *FileWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.events:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *FileWatcher) reload() {
	snap, err := LoadFile(w.path)
	if err == nil {
		snap, err = w.store.Replace(snap.Nodes(), snap.Connections())
	}
	if err != nil {
		w.logger.Warn("canvas reload failed", slog.String("error", err.Error()))
	} else {
		w.logger.Info("canvas reloaded",
			slog.Int("nodes", snap.Len()),
			slog.Uint64("version", snap.Version()))
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}
