// Package orchestrator runs the live event loop that keeps a knowledge
// graph in sync with a watched directory: filesystem changes flow in
// through internal/fswatch and internal/debounce, get turned into graph
// updates via internal/patchbuilder and internal/graphengine, and the
// corrective writes the graph produces flow back out to disk after
// internal/conflict has had a chance to flag anything that raced them.
// A handful of goroutines rely on internal/debounce's own locking to keep
// this simple: a new event arriving while a batch is mid-flight simply
// accumulates into the Debouncer's freshly-cleared map, building the next
// batch, rather than needing to be folded into the one already taken.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cartograph/internal/conflict"
	"github.com/tonimelisma/cartograph/internal/config"
	"github.com/tonimelisma/cartograph/internal/debounce"
	"github.com/tonimelisma/cartograph/internal/docmodel"
	"github.com/tonimelisma/cartograph/internal/fswatch"
	"github.com/tonimelisma/cartograph/internal/graphengine"
	"github.com/tonimelisma/cartograph/internal/patchbuilder"
	"github.com/tonimelisma/cartograph/internal/pathnode"
)

type queuedWrites struct {
	writes   []graphengine.Write
	patchIdx uint32
}

// Orchestrator owns the graph, the watch, and the bookkeeping (self-writes,
// conflict patch table) that lets filesystem-originated and engine-
// originated writes coexist without the engine's own corrective writes
// looping back around as new filesystem events.
type Orchestrator struct {
	holder    *config.Holder
	watchRoot string
	indices   []graphengine.IndexDef
	logger    *slog.Logger

	graphMu sync.RWMutex
	graph   *graphengine.Graph

	detector  *conflict.Detector
	debouncer *debounce.Debouncer
	watcher   *fswatch.Watcher

	selfWritesMu sync.Mutex
	selfWrites   map[string]struct{}

	writesQueue chan queuedWrites
}

// New builds an Orchestrator over a shared config Holder, so a SIGHUP
// reload that calls holder.Update is visible to every future parse and
// every query-surface read without restarting the process. The watch
// itself — its root directory and its excluded-paths set — is fixed at
// construction time from the config snapshot current at that moment;
// changing WatchDir or ExcludePaths via a later reload has no effect on
// an already-running watch, only on how subsequently (re)parsed documents
// are interpreted.
//
// Call Run to load the graph and start serving filesystem events; Graph
// may not be called usefully until Run's initial build has completed.
func New(holder *config.Holder, indices []graphengine.IndexDef, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := holder.Config()

	return &Orchestrator{
		holder:      holder,
		watchRoot:   cfg.WatchDir,
		indices:     indices,
		logger:      logger,
		detector:    conflict.NewDetector(logger),
		debouncer:   debounce.New(logger),
		watcher:     fswatch.New(logger, cfg.ExcludePaths),
		selfWrites:  make(map[string]struct{}),
		writesQueue: make(chan queuedWrites, 256),
	}
}

// Graph returns the live graph. Safe to call concurrently with Run; a full
// rescan swaps the pointer out from under in-flight readers, who keep
// whatever snapshot they already had.
func (o *Orchestrator) Graph() *graphengine.Graph {
	o.graphMu.RLock()
	defer o.graphMu.RUnlock()

	return o.graph
}

func (o *Orchestrator) parseConfig() pathnode.ParseConfig {
	cfg := o.holder.Config()

	return pathnode.ParseConfig{
		Format:          docmodel.Markdown,
		LinkTypes:       cfg.LinkTypes,
		DefaultLinkType: cfg.DefaultLinkType,
		ActionKeywords:  cfg.ActionKeywords,
		Tags:            cfg.Tags,
	}
}

// Run performs the initial full scan, then serves filesystem events until
// ctx is canceled. It returns once every goroutine it started has
// finished.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.rebuild(ctx); err != nil {
		return fmt.Errorf("orchestrator: initial build: %w", err)
	}

	rescan := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)

	// Watch must be called (and its notify channel installed) before the
	// filesystem watcher starts delivering events, or an Add arriving in
	// that window would be stored but never wake the debounce timer. The
	// debounce duration, like the watch root, is fixed for this Run call's
	// lifetime — a later reload changes it only for the next restart.
	batches := o.debouncer.Watch(gctx, o.holder.Config().DebounceDuration)

	g.Go(func() error {
		return o.watcher.Watch(gctx, o.watchRoot, o.handleFsEvent, rescan)
	})

	g.Go(func() error {
		return o.runPatchLoop(gctx, rescan, batches)
	})

	g.Go(func() error {
		return o.drainWrites(gctx)
	})

	return g.Wait()
}

// buildFresh performs a full directory scan and runs it through the graph
// engine as a single patch, mirroring graphengine.FromDir but keeping the
// corrective writes the build itself produced (FromDir discards them;
// those writes are exactly what a from-scratch knowledge graph needs to
// flush — e.g. repairing a backlink whose target already existed on disk
// the first time it was seen).
func (o *Orchestrator) buildFresh(ctx context.Context) (*graphengine.Graph, []graphengine.Write, error) {
	var relPaths []string

	err := filepath.WalkDir(o.watchRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(o.watchRoot, path)
		if relErr != nil {
			return relErr
		}

		relPaths = append(relPaths, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scanning watch root: %w", err)
	}

	deb := debounce.FromDir(o.logger, relPaths)
	batch := deb.FlushImmediate()

	patch, err := patchbuilder.Build(ctx, o.watchRoot, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("building initial patch: %w", err)
	}

	g := graphengine.NewGraph(o.watchRoot, o.parseConfig(), o.indices, o.logger)

	writes, err := g.ProcessFSPatch(ctx, patch)
	if err != nil {
		return nil, nil, fmt.Errorf("processing initial patch: %w", err)
	}

	return g, writes, nil
}

// rebuild replaces the live graph with a freshly scanned one and registers
// its corrective writes with the conflict detector under a patch index of
// their own, exactly as an ordinary debounced batch would be. It is used
// both for the very first load and for recovering from a reported
// fsnotify queue overflow, where an unknown number of events were dropped
// and only a full rescan can restore a consistent view.
func (o *Orchestrator) rebuild(ctx context.Context) error {
	g, writes, err := o.buildFresh(ctx)
	if err != nil {
		return err
	}

	o.graphMu.Lock()
	o.graph = g
	o.graphMu.Unlock()

	patchIdx := o.detector.RegisterUpdate()
	o.enqueue(ctx, queuedWrites{writes: writes, patchIdx: patchIdx})

	return nil
}

// handleFsEvent is the fswatch.EventFunc: it drops an event that is
// exactly the echo of a write the engine itself just made, then folds
// whatever remains into the debouncer.
func (o *Orchestrator) handleFsEvent(ev debounce.Event) {
	if !ev.IsRename {
		if o.consumeSelfWrite(ev.Path) {
			if ev.Kind != debounce.Modify {
				o.logger.Warn("orchestrator: non-modify event on a path just written by the engine",
					"path", ev.Path, "event", ev.Kind.String())
			} else {
				return
			}
		}
	}

	o.debouncer.Add(ev)
}

func (o *Orchestrator) consumeSelfWrite(path string) bool {
	o.selfWritesMu.Lock()
	defer o.selfWritesMu.Unlock()

	_, ok := o.selfWrites[path]
	if ok {
		delete(o.selfWrites, path)
	}

	return ok
}

func (o *Orchestrator) recordSelfWrite(path string) {
	o.selfWritesMu.Lock()
	defer o.selfWritesMu.Unlock()

	o.selfWrites[path] = struct{}{}
}

// runPatchLoop consumes debounced batches, commits each to the conflict
// detector's patch table, and spawns the build-then-apply work for it
// without waiting for that work to finish — a later batch is free to start
// building while an earlier one is still diffing, since each owns an
// independent patch index and writes back to the shared queue
// independently.
func (o *Orchestrator) runPatchLoop(ctx context.Context, rescan chan struct{}, batches <-chan debounce.DebouncedBatch) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-rescan:
			if err := o.rebuild(ctx); err != nil {
				o.logger.Error("orchestrator: rescan failed", "error", err.Error())
			}

		case batch, ok := <-batches:
			if !ok {
				return nil
			}

			patchIdx := o.detector.AddPatch(batch)

			wg.Add(1)

			go func() {
				defer wg.Done()
				o.buildAndApply(ctx, batch, patchIdx)
			}()
		}
	}
}

func (o *Orchestrator) buildAndApply(ctx context.Context, batch debounce.DebouncedBatch, patchIdx uint32) {
	patch, err := patchbuilder.Build(ctx, o.watchRoot, batch)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Error("orchestrator: building patch", "error", err.Error())
		}

		return
	}

	writes, err := o.Graph().ProcessFSPatch(ctx, patch)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Error("orchestrator: applying patch", "error", err.Error())
		}

		return
	}

	o.enqueue(ctx, queuedWrites{writes: writes, patchIdx: patchIdx})
}

func (o *Orchestrator) enqueue(ctx context.Context, qw queuedWrites) {
	select {
	case o.writesQueue <- qw:
	case <-ctx.Done():
	}
}

// drainWrites is the one place writes actually hit disk: for every queued
// batch it asks the conflict detector which writes survived, then applies
// each survivor according to its Conflict classification.
func (o *Orchestrator) drainWrites(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case qw, ok := <-o.writesQueue:
			if !ok {
				return nil
			}

			o.applyQueued(qw)
		}
	}
}

func (o *Orchestrator) applyQueued(qw queuedWrites) {
	survivors, err := o.detector.DetectConflicts(qw.patchIdx, qw.writes)
	if err != nil {
		o.logger.Error("orchestrator: detecting conflicts", "patch", qw.patchIdx, "error", err.Error())

		return
	}

	for _, w := range survivors {
		switch w.Conflict.Kind {
		case graphengine.ConflictNone:
			if err := o.writeToDisk(w); err != nil {
				o.logger.Error("orchestrator: writing corrective content", "path", w.Path, "error", err.Error())

				continue
			}

			o.recordSelfWrite(w.Path)

		case graphengine.ConflictSimple:
			o.logger.Error("orchestrator: write conflicts with a concurrent change to the same path, dropping",
				"path", w.Path)

		case graphengine.ConflictMulti:
			o.logger.Error("orchestrator: write's target path is ambiguous after concurrent renames, dropping",
				"path", w.Path, "candidates", w.Conflict.Paths)
		}
	}
}

func (o *Orchestrator) writeToDisk(w graphengine.Write) error {
	full := filepath.Join(o.watchRoot, w.Path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	return os.WriteFile(full, []byte(w.Contents), 0o644)
}

// EnqueueOtherWrite submits a write that originated outside the filesystem
// watch (e.g. a mutation made through a query surface) so it passes
// through the same conflict-detection path a filesystem-originated write
// does, and so its path is recorded against every currently open patch's
// other-writes set.
func (o *Orchestrator) EnqueueOtherWrite(ctx context.Context, path, contents string) {
	patchIdx := o.detector.RegisterUpdate()

	o.enqueue(ctx, queuedWrites{
		writes:   []graphengine.Write{{Path: path, Contents: contents, Source: graphengine.WriteOther}},
		patchIdx: patchIdx,
	})
}
