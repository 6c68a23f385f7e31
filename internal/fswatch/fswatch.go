// Package fswatch adapts github.com/fsnotify/fsnotify into a stream of
// debounce.Event values: recursive watch registration at startup, a
// select-based watch loop, and create/write/remove dispatch, with no
// baseline comparison or content hashing — the patch builder reads file
// contents itself.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/cartograph/internal/debounce"
)

// renamePairWindow is how long a lone Rename event waits for the paired
// Create fsnotify emits for the destination path before it is reported as a
// plain deletion instead.
const renamePairWindow = 50 * time.Millisecond

// EventFunc receives every translated filesystem event. The orchestrator
// supplies one that filters self-writes before folding the event into its
// accumulator; tests can supply one that just appends to a slice.
type EventFunc func(debounce.Event)

// FsWatcher abstracts *fsnotify.Watcher so tests can inject a mock.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }

// Watcher walks a directory tree, registers recursive fsnotify watches, and
// translates every observed change into a debounce.Event delivered to an
// EventFunc.
type Watcher struct {
	logger         *slog.Logger
	watcherFactory func() (FsWatcher, error)
	excludePaths   map[string]struct{}

	mu          sync.Mutex
	pendingFrom string
	renameTimer *time.Timer
}

// New creates a Watcher. excludePaths are slash-separated, relative to the
// watched root; any directory matching one is unwatched once its initial
// walk completes, so creates inside it are never seen.
func New(logger *slog.Logger, excludePaths []string) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	excl := make(map[string]struct{}, len(excludePaths))

	for _, p := range excludePaths {
		excl[filepath.ToSlash(filepath.Clean(p))] = struct{}{}
	}

	return &Watcher{
		logger:       logger,
		excludePaths: excl,
		watcherFactory: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWrapper{w: w}, nil
		},
	}
}

// Watch registers recursive watches under root, then blocks calling emit for
// every observed change until ctx is canceled (returning nil) or the
// watcher itself fails. If fsnotify reports a queue overflow, Watch signals
// rescan (a non-blocking send) instead of dying — a burst of events may
// have been dropped, and only a full directory rescan by the caller can
// restore consistency.
func (w *Watcher) Watch(ctx context.Context, root string, emit EventFunc, rescan chan<- struct{}) error {
	watcher, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("fswatch: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if walkErr := w.addWatchesRecursive(watcher, root); walkErr != nil {
		return fmt.Errorf("fswatch: adding initial watches: %w", walkErr)
	}

	w.unwatchExcluded(watcher, root)

	return w.watchLoop(ctx, watcher, root, emit, rescan)
}

// addWatchesRecursive walks root and adds a watch on every directory,
// excluded or not — exclusions are removed afterward by unwatchExcluded so
// that the directory is still enumerated once (for an initial full scan
// elsewhere) but generates no further events.
func (w *Watcher) addWatchesRecursive(watcher FsWatcher, root string) error {
	return filepath.WalkDir(root, func(fsPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("fswatch: walk error during watch setup", "path", fsPath, "error", walkErr.Error())

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if addErr := watcher.Add(fsPath); addErr != nil {
			w.logger.Warn("fswatch: failed to add watch", "path", fsPath, "error", addErr.Error())
		}

		return nil
	})
}

func (w *Watcher) unwatchExcluded(watcher FsWatcher, root string) {
	for rel := range w.excludePaths {
		abs := filepath.Join(root, filepath.FromSlash(rel))

		if err := watcher.Remove(abs); err != nil {
			w.logger.Debug("fswatch: unwatching excluded path", "path", rel, "error", err.Error())
		}
	}
}

func (w *Watcher) isExcluded(rel string) bool {
	for p := range w.excludePaths {
		if rel == p || len(rel) > len(p) && rel[:len(p)+1] == p+"/" {
			return true
		}
	}

	return false
}

func (w *Watcher) watchLoop(
	ctx context.Context, watcher FsWatcher, root string, emit EventFunc, rescan chan<- struct{},
) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			w.handleEvent(watcher, root, ev, emit)

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			if errors.Is(watchErr, fsnotify.ErrEventOverflow) {
				w.logger.Warn("fswatch: event queue overflow, requesting rescan")
				trySignal(rescan)

				continue
			}

			w.logger.Warn("fswatch: watcher error", "error", watchErr.Error())
		}
	}
}

func trySignal(rescan chan<- struct{}) {
	select {
	case rescan <- struct{}{}:
	default:
	}
}

func (w *Watcher) handleEvent(watcher FsWatcher, root string, ev fsnotify.Event, emit EventFunc) {
	// Mode-only changes never affect document content or structure.
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		w.logger.Warn("fswatch: computing relative path", "path", ev.Name, "error", err.Error())

		return
	}

	rel = filepath.ToSlash(rel)

	if w.isExcluded(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Rename):
		w.handleRename(rel, emit)
	case ev.Has(fsnotify.Create):
		w.handleCreate(watcher, root, rel, ev.Name, emit)
	case ev.Has(fsnotify.Write):
		emit(debounce.Event{Kind: debounce.Modify, Path: rel})
	case ev.Has(fsnotify.Remove):
		emit(debounce.Event{Kind: debounce.Delete, Path: rel})
	}
}

// handleRename records path as awaiting a paired Create, flushing any
// previously pending rename (whose window must already have elapsed, since
// fsnotify reports these sequentially) as a plain deletion first.
func (w *Watcher) handleRename(path string, emit EventFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingFrom != "" {
		if w.renameTimer != nil {
			w.renameTimer.Stop()
		}

		emit(debounce.Event{Kind: debounce.Delete, Path: w.pendingFrom})
	}

	w.pendingFrom = path
	w.renameTimer = time.AfterFunc(renamePairWindow, func() { w.resolvePendingAsDelete(path, emit) })
}

func (w *Watcher) resolvePendingAsDelete(path string, emit EventFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingFrom != path {
		return
	}

	w.pendingFrom = ""
	emit(debounce.Event{Kind: debounce.Delete, Path: path})
}

// handleCreate pairs a pending rename if one is waiting, otherwise treats
// the path as a genuinely new file or directory, recursively scanning and
// watching a new directory's contents the same way the initial walk did.
func (w *Watcher) handleCreate(watcher FsWatcher, root, rel, abs string, emit EventFunc) {
	w.mu.Lock()
	from := w.pendingFrom

	if from != "" {
		if w.renameTimer != nil {
			w.renameTimer.Stop()
		}

		w.pendingFrom = ""
	}

	w.mu.Unlock()

	if from != "" {
		emit(debounce.Event{IsRename: true, From: from, To: rel})

		return
	}

	info, err := os.Stat(abs)
	if err != nil {
		w.logger.Debug("fswatch: stat failed for created path", "path", rel, "error", err.Error())

		return
	}

	if !info.IsDir() {
		emit(debounce.Event{Kind: debounce.Create, Path: rel})

		return
	}

	if addErr := watcher.Add(abs); addErr != nil {
		w.logger.Warn("fswatch: failed to add watch on new directory", "path", rel, "error", addErr.Error())
	}

	if w.isExcluded(rel) {
		if rmErr := watcher.Remove(abs); rmErr != nil {
			w.logger.Debug("fswatch: unwatching newly-created excluded directory", "path", rel, "error", rmErr.Error())
		}

		return
	}

	w.scanNewDirectory(watcher, root, abs, rel, emit)
}

// scanNewDirectory walks a directory that just appeared, emitting a Create
// for every entry and recursing into (and watching) subdirectories. This
// catches entries created between the directory's own creation and the
// watch being registered on it.
func (w *Watcher) scanNewDirectory(watcher FsWatcher, root, dirAbs, dirRel string, emit EventFunc) {
	entries, err := os.ReadDir(dirAbs)
	if err != nil {
		w.logger.Debug("fswatch: scanning new directory", "path", dirRel, "error", err.Error())

		return
	}

	for _, entry := range entries {
		entryAbs := filepath.Join(dirAbs, entry.Name())
		entryRel := filepath.ToSlash(filepath.Join(dirRel, entry.Name()))

		if w.isExcluded(entryRel) {
			continue
		}

		if entry.IsDir() {
			if addErr := watcher.Add(entryAbs); addErr != nil {
				w.logger.Warn("fswatch: failed to add watch on nested directory", "path", entryRel, "error", addErr.Error())
			}

			emit(debounce.Event{Kind: debounce.Create, Path: entryRel})
			w.scanNewDirectory(watcher, root, entryAbs, entryRel, emit)

			continue
		}

		emit(debounce.Event{Kind: debounce.Create, Path: entryRel})
	}
}
