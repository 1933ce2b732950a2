// Package watcher feeds out-of-band edits in the storage root into the
// change journal.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/wstore/internal/storage"
)

// Source labels changes discovered by the watcher.
const Source = "watcher"

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before reconciling.
const DefaultDebounce = 200 * time.Millisecond

// Reconciler records differences between disk and the journal snapshot for a subtree.
type Reconciler interface {
	Reconcile(ctx context.Context, rel, source string) (int, error)
}

// Watch starts an fsnotify watcher on root and reconciles every touched
// path until ctx is cancelled. New directories created at runtime are added
// to the watch list. Events are collected per path and flushed once the tree
// has been quiet for debounce, so a temp-write-then-rename is seen as one
// change. Paths written through the service are already in the snapshot and
// reconcile to nothing.
func Watch(ctx context.Context, root string, r Reconciler, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	dirty := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for rel := range dirty {
				n, err := r.Reconcile(ctx, rel, Source)
				if err != nil {
					logger.Warn("watcher: reconcile failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Debug("watcher: recorded changes", slog.String("path", rel), slog.Int("changes", n))
				}
			}
			clear(dirty)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if storage.IsTemp(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			rel, ok := relPath(root, ev.Name)
			if !ok {
				continue
			}
			dirty[rel] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relPath converts an event path to a slash-separated path relative to root.
func relPath(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
