// Package watcher turns fsnotify notifications for a vault into note
// lifecycle events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mocsync/internal/dispatch"
	"github.com/starford/mocsync/internal/moc"
)

// DefaultRenameWindow is how long a rename waits for its matching create.
const DefaultRenameWindow = 250 * time.Millisecond

// Handler receives lifecycle events. It is called from the watch loop, so
// events are handled one at a time and in order.
type Handler func(ev dispatch.Event)

type pendingRename struct {
	path string
	info os.FileInfo // identity of the file before it was renamed, may be nil
	at   time.Time
}

// Watch starts an fsnotify watcher on root and delivers note events to handle
// until ctx is cancelled. A symlinked root is resolved first, so event paths
// are under the resolved directory.
//
// fsnotify reports a rename as Rename on the old path followed by Create on
// the new one. A Create is delivered as a moved event only when it is the
// same file (os.SameFile) as a rename pending for less than window; a rename
// left unpaired (the note moved out of the vault) is delivered as deleted.
// New directories are added to the watch list and notes already inside them
// are delivered as created.
func Watch(ctx context.Context, root string, window time.Duration, logger *slog.Logger, handle Handler) error {
	if window <= 0 {
		window = DefaultRenameWindow
	}

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	root = resolved

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Identity of every note seen so far, used to pair renames.
	known := make(map[string]os.FileInfo)
	remember := func(path string) {
		if info, err := os.Stat(path); err == nil {
			known[path] = info
		}
	}

	if err := addDirsRecursive(w, root, remember); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var pending []pendingRename
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(window)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(window)
		}
	}

	// flush delivers renames older than the window as deletions.
	flush := func(now time.Time) {
		kept := pending[:0]
		for _, p := range pending {
			if now.Sub(p.at) >= window {
				logger.Debug("watcher: unpaired rename", slog.String("path", p.path))
				handle(dispatch.Event{Kind: dispatch.KindDeleted, Path: p.path})
				continue
			}
			kept = append(kept, p)
		}
		pending = kept
		if len(pending) > 0 {
			scheduleFlush()
		}
	}

	// takeRename removes and returns the pending rename of the same file as
	// info, if any.
	takeRename := func(info os.FileInfo, now time.Time) (string, bool) {
		if info == nil {
			return "", false
		}
		for i := len(pending) - 1; i >= 0; i-- {
			p := pending[i]
			if p.info == nil || now.Sub(p.at) >= window || !os.SameFile(p.info, info) {
				continue
			}
			pending = append(pending[:i], pending[i+1:]...)
			return p.path, true
		}
		return "", false
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped", slog.Int("dropped_renames", len(pending)))
			return nil

		case now := <-flushCh:
			flush(now)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			switch {
			case ev.Has(fsnotify.Create):
				info, statErr := os.Stat(path)
				if statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path, remember); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", path))
					}
					createdInDir(path, handle)
					continue
				}
				if !moc.IsNote(path) {
					continue
				}
				if statErr == nil {
					known[path] = info
				} else {
					info = nil
				}
				if old, ok := takeRename(info, time.Now()); ok {
					handle(dispatch.Event{Kind: dispatch.KindMoved, OldPath: old, Path: path})
					continue
				}
				handle(dispatch.Event{Kind: dispatch.KindCreated, Path: path})

			case ev.Has(fsnotify.Remove):
				if moc.IsNote(path) {
					delete(known, path)
					handle(dispatch.Event{Kind: dispatch.KindDeleted, Path: path})
				}

			case ev.Has(fsnotify.Rename):
				if moc.IsNote(path) {
					pending = append(pending, pendingRename{path: path, info: known[path], at: time.Now()})
					delete(known, path)
					scheduleFlush()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			// Overflow means events were lost; the registry tolerates that.
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// createdInDir delivers a created event for every note inside a new directory.
func createdInDir(dirPath string, handle Handler) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !moc.IsNote(path) {
			return nil
		}
		handle(dispatch.Event{Kind: dispatch.KindCreated, Path: path})
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher and
// passes every note found to seen.
func addDirsRecursive(w *fsnotify.Watcher, root string, seen func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if moc.IsNote(path) {
			seen(path)
		}
		return nil
	})
}
