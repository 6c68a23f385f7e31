// Package debounce collapses a stream of per-path filesystem events into
// DebouncedBatch values, coalescing renames and combining same-path event
// pairs, with the timer-reset idiom adapted from internal/sync's Buffer.
package debounce

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventKind distinguishes the three non-rename event kinds.
type EventKind int

const (
	Create EventKind = iota
	Modify
	Delete
)

func (k EventKind) String() string {
	switch k {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a single filesystem observation fed to the Debouncer.
type Event struct {
	Kind EventKind
	Path string
	// From/To are set only for renames; Kind is ignored for those.
	IsRename bool
	From     string
	To       string
}

// entry is the per-path accumulator: the oldest path this final path was
// ever known under, and the combined event (if any) still pending.
type entry struct {
	oldestPath string
	hasOldest  bool
	hasEvent   bool
	event      EventKind
}

// PathEntry is one row of a DebouncedBatch: the combined record for a
// single (final) path.
type PathEntry struct {
	Path       string
	OldestPath string // equals Path if no rename was involved
	HasEvent   bool
	Event      EventKind
}

// DebouncedBatch is a snapshot of every path with a pending record,
// ordered by path for determinism.
type DebouncedBatch []PathEntry

// Debouncer accumulates events under a single mutex, exposing both an
// immediate flush and a debounce-timer-driven channel, mirroring
// internal/sync's Buffer.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*entry
	notify  chan struct{}
	logger  *slog.Logger
}

// New creates an empty Debouncer.
func New(logger *slog.Logger) *Debouncer {
	return &Debouncer{pending: make(map[string]*entry), logger: logger}
}

// FromDir seeds a Debouncer with one Create event per path in paths,
// mirroring from_dir(d)'s initial full-scan behaviour.
func FromDir(logger *slog.Logger, paths []string) *Debouncer {
	d := New(logger)

	for _, p := range paths {
		d.Add(Event{Kind: Create, Path: p})
	}

	return d
}

// Add records a single event, applying the rename or combination rule.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addLocked(ev)

	if d.notify != nil {
		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
}

func (d *Debouncer) addLocked(ev Event) {
	if ev.IsRename {
		d.applyRename(ev.From, ev.To)

		return
	}

	e, ok := d.pending[ev.Path]
	if !ok {
		d.pending[ev.Path] = &entry{hasEvent: true, event: ev.Kind}

		return
	}

	if !e.hasEvent {
		e.hasEvent = true
		e.event = ev.Kind

		return
	}

	e.event = combine(e.event, ev.Kind)
}

// combine implements the two-event combination table: Create then Delete
// collapses to Delete, Modify stays Modify regardless of what follows
// (Create or Modify), Delete then Delete stays Delete, and Delete then
// Create or Modify yields Modify. Renames never appear here — they're
// handled by applyRename.
func combine(first, second EventKind) EventKind {
	switch first {
	case Create:
		if second == Delete {
			return Delete
		}

		return Create
	case Modify:
		if second == Delete {
			return Delete
		}

		return Modify
	case Delete:
		if second == Delete {
			return Delete
		}

		return Modify
	default:
		return second
	}
}

// applyRename moves the entry under from (if any) to to, gaining from as
// its oldest path unless it already had one; an entry already sitting at
// to is superseded, not merged.
func (d *Debouncer) applyRename(from, to string) {
	e, ok := d.pending[from]
	if !ok {
		d.pending[to] = &entry{oldestPath: from, hasOldest: true}

		return
	}

	delete(d.pending, from)

	if !e.hasOldest {
		e.oldestPath = from
		e.hasOldest = true
	}

	d.pending[to] = e
}

// FlushImmediate returns every pending entry, sorted by path, and clears
// the buffer.
func (d *Debouncer) FlushImmediate() DebouncedBatch {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}

	batch := make(DebouncedBatch, 0, len(d.pending))

	for path, e := range d.pending {
		oldest := path
		if e.hasOldest {
			oldest = e.oldestPath
		}

		batch = append(batch, PathEntry{
			Path: path, OldestPath: oldest, HasEvent: e.hasEvent, Event: e.event,
		})
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	d.pending = make(map[string]*entry)

	return batch
}

// Snapshot returns every pending entry, sorted by path, without clearing the
// buffer — a non-destructive read for callers (the conflict detector) that
// need to inspect accumulated events without consuming them.
func (d *Debouncer) Snapshot() DebouncedBatch {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}

	batch := make(DebouncedBatch, 0, len(d.pending))

	for path, e := range d.pending {
		oldest := path
		if e.hasOldest {
			oldest = e.oldestPath
		}

		batch = append(batch, PathEntry{
			Path: path, OldestPath: oldest, HasEvent: e.hasEvent, Event: e.event,
		})
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	return batch
}

// Len reports how many distinct paths are currently pending.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}

// Watch returns a channel that emits a DebouncedBatch after debounce
// elapses with no new Add call, resetting on every Add, until ctx is
// canceled (at which point any remaining batch is drained once more).
func (d *Debouncer) Watch(ctx context.Context, debounce time.Duration) <-chan DebouncedBatch {
	out := make(chan DebouncedBatch, 1)

	d.mu.Lock()
	d.notify = make(chan struct{}, 1)
	d.mu.Unlock()

	go d.watchLoop(ctx, debounce, out)

	return out
}

func (d *Debouncer) watchLoop(ctx context.Context, debounce time.Duration, out chan<- DebouncedBatch) {
	defer close(out)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	active := false

	for {
		select {
		case <-ctx.Done():
			if batch := d.FlushImmediate(); batch != nil {
				select {
				case out <- batch:
				default:
					if d.logger != nil {
						d.logger.Warn("debounce final drain discarded", "paths", len(batch))
					}
				}
			}

			return

		case _, ok := <-d.notify:
			if !ok {
				return
			}

			if !timer.Stop() && active {
				<-timer.C
			}

			timer.Reset(debounce)
			active = true

		case <-timer.C:
			active = false

			if batch := d.FlushImmediate(); batch != nil {
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
