// Package graphengine holds the live, in-memory knowledge graph and the
// two-stage locked protocol that reconciles it against filesystem patches:
// a pair of sync.RWMutex guards (one over the nodes/invalid-connections/
// indices maps, one over path membership) plus a per-path RWMutex for
// document content — see DESIGN.md for the reasoning behind this lock
// layout.
package graphengine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tonimelisma/cartograph/internal/debounce"
	"github.com/tonimelisma/cartograph/internal/docmodel"
	"github.com/tonimelisma/cartograph/internal/patchbuilder"
	"github.com/tonimelisma/cartograph/internal/pathnode"
)

// pathSlot is one entry in the paths map: the current PathNode plus a lock
// guarding its content (as opposed to its presence in the map, which is
// guarded by Graph.pathsMu).
type pathSlot struct {
	mu   sync.RWMutex
	node *pathnode.PathNode
}

type indexEntry struct {
	def     IndexDef
	members map[docmodel.Identifier]string
}

// Graph is the process-wide live knowledge graph. Created once via NewGraph
// or FromDir and thereafter mutated only through ProcessFSPatch.
type Graph struct {
	watchRoot string
	cfg       pathnode.ParseConfig
	logger    *slog.Logger

	// mapsMu guards nodes, invalidConnections, and every index's membership
	// map. Always acquired before pathsMu, matching the fixed global order.
	mapsMu             sync.RWMutex
	nodes              map[docmodel.Identifier]string
	invalidConnections map[docmodel.Identifier]map[docmodel.Identifier]struct{}
	indices            map[string]*indexEntry

	// pathsMu guards the existence of entries in paths (not their content).
	pathsMu sync.RWMutex
	paths   map[string]*pathSlot
}

// NewGraph creates an empty graph over watchRoot with no files loaded yet.
// Most callers want FromDir instead.
func NewGraph(watchRoot string, cfg pathnode.ParseConfig, indexDefs []IndexDef, logger *slog.Logger) *Graph {
	indices := make(map[string]*indexEntry, len(indexDefs))
	for _, d := range indexDefs {
		indices[d.Name] = &indexEntry{def: d, members: make(map[docmodel.Identifier]string)}
	}

	return &Graph{
		watchRoot:          watchRoot,
		cfg:                cfg,
		logger:             logger,
		nodes:              make(map[docmodel.Identifier]string),
		invalidConnections: make(map[docmodel.Identifier]map[docmodel.Identifier]struct{}),
		indices:            indices,
		paths:              make(map[string]*pathSlot),
	}
}

// FromDir builds a graph by recursively reading every file under watchRoot:
// it fabricates a full-scan DebouncedBatch via debounce.FromDir, turns it
// into a Patch, and runs it through the same ProcessFSPatch pipeline used
// for live events.
func FromDir(ctx context.Context, watchRoot string, cfg pathnode.ParseConfig, indexDefs []IndexDef, logger *slog.Logger) (*Graph, error) {
	var relPaths []string

	err := filepath.WalkDir(watchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(watchRoot, path)
		if rerr != nil {
			return rerr
		}

		relPaths = append(relPaths, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning watch root: %w", err)
	}

	deb := debounce.FromDir(logger, relPaths)
	batch := deb.FlushImmediate()

	patch, err := patchbuilder.Build(ctx, watchRoot, batch)
	if err != nil {
		return nil, fmt.Errorf("building initial patch: %w", err)
	}

	g := NewGraph(watchRoot, cfg, indexDefs, logger)

	if _, err := g.ProcessFSPatch(ctx, patch); err != nil {
		return nil, fmt.Errorf("processing initial patch: %w", err)
	}

	return g, nil
}

// WatchRoot returns the directory this graph was built from.
func (g *Graph) WatchRoot() string { return g.watchRoot }
