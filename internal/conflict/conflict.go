// Package conflict detects collisions between the corrective writes a
// reconciliation pass wants to make and whatever has happened to the
// filesystem (or via an out-of-band write) since that pass started reading.
// It does not resolve conflicts, only flags them: resolution is left to
// whatever consumes the flagged Write. It reuses internal/debounce's own
// event-combination rules as the "events since" accumulator instead of a
// bespoke one.
package conflict

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tonimelisma/cartograph/internal/debounce"
	"github.com/tonimelisma/cartograph/internal/graphengine"
)

// ErrUnknownPatch is returned when DetectConflicts is called with a patch
// index that was never registered, or whose conflicts were already
// detected for every update that depended on it.
var ErrUnknownPatch = errors.New("conflict: unknown or already-closed patch index")

// patchTableEntry tracks one open patch: how many pending
// updates still depend on this patch, every event that has occurred since
// it started processing (accumulated via a plain Debouncer), and the set
// of paths an out-of-band write has already claimed.
type patchTableEntry struct {
	refCount    int
	eventsSince *debounce.Debouncer
	otherWrites map[string]struct{}
}

func newPatchTableEntry(logger *slog.Logger) *patchTableEntry {
	return &patchTableEntry{eventsSince: debounce.New(logger), otherWrites: make(map[string]struct{})}
}

// Detector is a process-wide conflict detector: one entry per patch
// currently being processed somewhere in the pipeline, indexed by a
// monotonically increasing patch number.
type Detector struct {
	mu sync.Mutex

	table        map[uint32]*patchTableEntry
	nextPatch    uint32
	nextRefCount int
	logger       *slog.Logger
}

// NewDetector creates an empty Detector, seeded with a theoretical entry
// for patch 0 (the next patch that will actually occur).
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		table:  map[uint32]*patchTableEntry{0: newPatchTableEntry(logger)},
		logger: logger,
	}
}

// RegisterUpdate records that a new update (e.g. an out-of-band write) is
// starting right now, returning the patch index its later DetectConflicts
// call must use.
func (d *Detector) RegisterUpdate() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextRefCount++

	return d.nextPatch
}

// AddPatch folds batch's events into every still-open patch's accumulator
// (so each knows what happened since it started) and opens a new
// theoretical next patch, returning the index processing of batch should
// pass to DetectConflicts once it produces writes.
func (d *Detector) AddPatch(batch debounce.DebouncedBatch) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.table {
		foldBatch(entry.eventsSince, batch)
	}

	if d.nextRefCount == 0 {
		delete(d.table, d.nextPatch)
	} else {
		d.table[d.nextPatch].refCount = d.nextRefCount
	}

	d.nextRefCount = 1
	d.nextPatch++
	d.table[d.nextPatch] = newPatchTableEntry(d.logger)

	return d.nextPatch
}

// foldBatch replays batch's already-coalesced entries into acc, the same
// way the filesystem events that produced batch would have been replayed
// one at a time.
func foldBatch(acc *debounce.Debouncer, batch debounce.DebouncedBatch) {
	for _, pe := range batch {
		if pe.OldestPath != pe.Path {
			acc.Add(debounce.Event{IsRename: true, From: pe.OldestPath, To: pe.Path})
		}

		if pe.HasEvent {
			acc.Add(debounce.Event{Kind: pe.Event, Path: pe.Path})
		}
	}
}

// pathRenameKind classifies how a path named in the conflict table was
// renamed since the patch being checked started.
type pathRenameKind int

const (
	renameNone pathRenameKind = iota
	renameOne
	renameMany
)

type pathRename struct {
	kind   pathRenameKind
	target string          // renameOne
	others map[string]bool // renameMany
}

func (r *pathRename) add(path string) {
	switch r.kind {
	case renameNone:
		r.kind = renameOne
		r.target = path
	case renameOne:
		if r.target == path {
			return
		}

		r.kind = renameMany
		r.others = map[string]bool{r.target: true, path: true}
		r.target = ""
	case renameMany:
		r.others[path] = true
	}
}

type conflictTableEntry struct {
	rename pathRename
	event  *debounce.EventKind
}

// buildConflictTable turns a snapshot of events-since into a lookup keyed
// by the *old* path of each entry.
func buildConflictTable(snapshot debounce.DebouncedBatch) map[string]*conflictTableEntry {
	table := make(map[string]*conflictTableEntry)

	get := func(path string) *conflictTableEntry {
		te, ok := table[path]
		if !ok {
			te = &conflictTableEntry{}
			table[path] = te
		}

		return te
	}

	for _, pe := range snapshot {
		if pe.OldestPath != pe.Path {
			get(pe.OldestPath).rename.add(pe.Path)

			if pe.HasEvent {
				ev := pe.Event
				get(pe.Path).event = &ev
			}

			continue
		}

		if pe.HasEvent {
			ev := pe.Event
			get(pe.Path).event = &ev
		}
	}

	return table
}

// DetectConflicts filters writes against everything that has happened
// since the update identified by patchIdx started (registered via
// RegisterUpdate or AddPatch), adjusting renamed paths, dropping writes to
// deleted or independently-modified paths, and flagging irresolvable
// multi-rename collisions. Writes from an out-of-band source take
// precedence over a filesystem write to the same path; this requires
// out-of-band writes to call DetectConflicts before the corresponding
// filesystem reconciliation does.
func (d *Detector) DetectConflicts(patchIdx uint32, writes []graphengine.Write) ([]graphengine.Write, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.table[patchIdx]
	if !ok {
		return nil, fmt.Errorf("conflict: patch %d: %w", patchIdx, ErrUnknownPatch)
	}

	conflictTable := buildConflictTable(entry.eventsSince.Snapshot())

	out := make([]graphengine.Write, 0, len(writes))

	for _, w := range writes {
		resolved, keep := resolveWrite(conflictTable, w)
		if !keep {
			continue
		}

		switch resolved.Source {
		case graphengine.WriteOther:
			for _, other := range d.table {
				other.otherWrites[resolved.Path] = struct{}{}
			}
		case graphengine.WriteFilesystem:
			if _, claimed := entry.otherWrites[resolved.Path]; claimed {
				continue
			}
		}

		out = append(out, resolved)
	}

	d.releasePatch(patchIdx)

	return out, nil
}

// resolveWrite walks w's path through the conflict table, following
// renames until it lands on an unrenamed path, a multi-rename collision,
// or nothing recorded at all.
func resolveWrite(table map[string]*conflictTableEntry, w graphengine.Write) (graphengine.Write, bool) {
	path := w.Path

	for {
		te, ok := table[path]
		if !ok {
			w.Path = path

			return w, true
		}

		switch te.rename.kind {
		case renameOne:
			path = te.rename.target

			continue
		case renameMany:
			paths := make([]string, 0, len(te.rename.others))
			for p := range te.rename.others {
				paths = append(paths, p)
			}

			sort.Strings(paths)

			w.Path = path
			w.Conflict = graphengine.Conflict{Kind: graphengine.ConflictMulti, Paths: paths}

			return w, true
		}

		// renameNone: judge by whatever event followed.
		if te.event == nil {
			w.Path = path

			return w, true
		}

		switch *te.event {
		case debounce.Delete:
			return graphengine.Write{}, false
		case debounce.Create, debounce.Modify:
			if w.Source == graphengine.WriteFilesystem {
				return graphengine.Write{}, false
			}

			w.Path = path
			w.Conflict = graphengine.Conflict{Kind: graphengine.ConflictSimple}

			return w, true
		}

		w.Path = path

		return w, true
	}
}

// releasePatch decrements patchIdx's reference count (or the theoretical
// next patch's, tracked separately), discarding its table entry once
// nothing depends on it anymore.
func (d *Detector) releasePatch(patchIdx uint32) {
	if patchIdx == d.nextPatch {
		d.nextRefCount--

		return
	}

	entry := d.table[patchIdx]
	entry.refCount--

	if entry.refCount <= 0 {
		delete(d.table, patchIdx)
	}
}
