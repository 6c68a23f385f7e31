package graphengine

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cartograph/internal/docfmt"
	"github.com/tonimelisma/cartograph/internal/docmodel"
	"github.com/tonimelisma/cartograph/internal/patchbuilder"
	"github.com/tonimelisma/cartograph/internal/pathnode"
)

// ProcessFSPatch is the engine's single entry point for filesystem-
// originated changes: renames first (Phase A), then concurrent per-path
// diff generation (Phase B), then the two-stage locked apply (Phase C),
// returning the corrective writes the reconciliation produced.
func (g *Graph) ProcessFSPatch(ctx context.Context, patch patchbuilder.Patch) ([]Write, error) {
	g.applyRenames(patch.Renames)

	instrs, pending, err := g.buildInstructions(ctx, patch)
	if err != nil {
		return nil, err
	}

	stage2, writeback := g.applyStage1(instrs, pending)

	fromWriteback := g.applyStage2(stage2)
	for p := range fromWriteback {
		writeback[p] = true
	}

	return g.buildCorrectiveWrites(writeback), nil
}

// applyRenames is Phase A: exclusive, under both map locks in the global
// order, moving each PathNode (and its nodes/index entries) from its old
// path to its new one.
func (g *Graph) applyRenames(renames [][2]string) {
	if len(renames) == 0 {
		return
	}

	g.mapsMu.Lock()
	g.pathsMu.Lock()
	defer g.pathsMu.Unlock()
	defer g.mapsMu.Unlock()

	for _, r := range renames {
		from, to := r[0], r[1]

		slot, ok := g.paths[from]
		if !ok {
			continue
		}

		delete(g.paths, from)
		slot.node.Path = to

		for id := range slot.node.NodeIDs {
			g.nodes[id] = to
		}

		for _, idx := range g.indices {
			for id, p := range idx.members {
				if p == from {
					idx.members[id] = to
				}
			}
		}

		g.paths[to] = slot
	}
}

type diffResult struct {
	path   string
	instrs []pathnode.GraphUpdate
	newPN  *pathnode.PathNode
}

func toContentsResult(pp patchbuilder.PathPatch) pathnode.ContentsResult {
	return pathnode.ContentsResult{Text: pp.Contents, Err: pp.Err}
}

// buildInstructions is Phase B: with paths read-locked, concurrently diffs
// every deletion, modification, and creation, then concatenates the
// results in deletions-then-modifications-then-creations order. A
// modification whose path isn't currently tracked is demoted to a
// creation.
func (g *Graph) buildInstructions(ctx context.Context, patch patchbuilder.Patch) ([]pathnode.GraphUpdate, map[string]*pathnode.PathNode, error) {
	g.pathsMu.RLock()
	defer g.pathsMu.RUnlock()

	var modificationJobs []patchbuilder.PathPatch

	var creationJobs []patchbuilder.PathPatch

	for _, pp := range patch.Modifications {
		if _, ok := g.paths[pp.Path]; ok {
			modificationJobs = append(modificationJobs, pp)
		} else {
			creationJobs = append(creationJobs, pp)
		}
	}

	creationJobs = append(creationJobs, patch.Creations...)

	delResults := make([][]pathnode.GraphUpdate, len(patch.Deletions))
	modResults := make([]diffResult, len(modificationJobs))
	creResults := make([]diffResult, len(creationJobs))

	grp, gctx := errgroup.WithContext(ctx)

	for i, path := range patch.Deletions {
		i, path := i, path

		grp.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			slot, ok := g.paths[path]
			if !ok {
				return nil
			}

			slot.mu.RLock()
			delResults[i] = slot.node.Delete()
			slot.mu.RUnlock()

			return nil
		})
	}

	for i, pp := range modificationJobs {
		i, pp := i, pp

		grp.Go(func() error {
			slot := g.paths[pp.Path]

			slot.mu.RLock()
			newPN, upds := slot.node.Update(pp.Path, toContentsResult(pp), g.cfg)
			slot.mu.RUnlock()

			modResults[i] = diffResult{path: pp.Path, instrs: upds, newPN: newPN}

			return nil
		})
	}

	for i, pp := range creationJobs {
		i, pp := i, pp

		grp.Go(func() error {
			newPN, upds := pathnode.New(pp.Path, toContentsResult(pp), g.cfg)
			creResults[i] = diffResult{path: pp.Path, instrs: upds, newPN: newPN}

			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, nil, err
	}

	var instrs []pathnode.GraphUpdate

	pending := make(map[string]*pathnode.PathNode)

	for _, upds := range delResults {
		instrs = append(instrs, upds...)
	}

	for _, r := range modResults {
		instrs = append(instrs, pathnode.GraphUpdate{Kind: pathnode.ModifyPathNode, Path: r.path})
		instrs = append(instrs, r.instrs...)
		pending[r.path] = r.newPN
	}

	for _, r := range creResults {
		instrs = append(instrs, pathnode.GraphUpdate{Kind: pathnode.CreatePathNode, Path: r.path})
		instrs = append(instrs, r.instrs...)
		pending[r.path] = r.newPN
	}

	return instrs, pending, nil
}

// applyStage1 applies every map-mutation instruction (CreatePathNode,
// ModifyPathNode, DeletePathNode, AddNode, RemoveNode,
// RemoveInvalidConnection) under both map locks held together, computing
// index membership changes inline for AddNode/RemoveNode since indices
// share the same lock as nodes in this implementation. It returns the
// Stage-2 instruction stream (RemoveBacklink, CheckConnection) plus the set
// of paths Stage 1 already knows need a corrective write (synthesised-id
// stabilisation).
func (g *Graph) applyStage1(instrs []pathnode.GraphUpdate, pending map[string]*pathnode.PathNode) ([]pathnode.GraphUpdate, map[string]bool) {
	g.mapsMu.Lock()
	g.pathsMu.Lock()
	defer g.pathsMu.Unlock()
	defer g.mapsMu.Unlock()

	var stage2 []pathnode.GraphUpdate

	writeback := make(map[string]bool)

	for _, u := range instrs {
		switch u.Kind {
		case pathnode.CreatePathNode:
			g.paths[u.Path] = &pathSlot{node: pending[u.Path]}
		case pathnode.ModifyPathNode:
			if slot, ok := g.paths[u.Path]; ok {
				slot.node = pending[u.Path]
			} else {
				g.paths[u.Path] = &pathSlot{node: pending[u.Path]}
			}
		case pathnode.DeletePathNode:
			delete(g.paths, u.Path)
		case pathnode.AddNode:
			g.nodes[u.ID] = u.Path
			g.applyAddNodeIndices(u, pending, writeback)
			g.promoteInvalidReferrers(u.ID, &stage2)
		case pathnode.RemoveNode:
			delete(g.nodes, u.ID)

			for _, idx := range g.indices {
				delete(idx.members, u.ID)
			}
		case pathnode.RemoveInvalidConnection:
			if refs, ok := g.invalidConnections[u.To]; ok {
				delete(refs, u.From)

				if len(refs) == 0 {
					delete(g.invalidConnections, u.To)
				}
			}
		default:
			stage2 = append(stage2, u)
		}
	}

	return stage2, writeback
}

// applyAddNodeIndices evaluates every index's predicate for a just-added
// node and updates membership, and marks the node's path for write-back if
// its id was synthesised (id stabilisation).
func (g *Graph) applyAddNodeIndices(u pathnode.GraphUpdate, pending map[string]*pathnode.PathNode, writeback map[string]bool) {
	pn, ok := pending[u.Path]
	if !ok || pn.Document == nil {
		return
	}

	node, ok := pn.Document.Node(u.ID)
	if !ok {
		return
	}

	if node.SynthesizedID {
		writeback[u.Path] = true
	}

	effectiveTags := pn.Document.EffectiveTags(u.ID)

	for _, idx := range g.indices {
		_, isMember := idx.members[u.ID]
		matches := idx.def.Predicate(node, effectiveTags)

		switch {
		case matches && !isMember:
			idx.members[u.ID] = u.Path
		case !matches && isMember:
			delete(idx.members, u.ID)
		}
	}
}

// promoteInvalidReferrers handles "any entry at invalid_connections[id] is
// extracted and each referring source becomes an additional
// CheckConnection{from, to: id}": a self-referencing entry is left in
// place rather than promoted, per the permanently-invalid self-loop rule.
func (g *Graph) promoteInvalidReferrers(id docmodel.Identifier, stage2 *[]pathnode.GraphUpdate) {
	referrers, ok := g.invalidConnections[id]
	if !ok {
		return
	}

	_, selfLoop := referrers[id]

	for s := range referrers {
		if s == id {
			continue
		}

		*stage2 = append(*stage2, pathnode.GraphUpdate{Kind: pathnode.CheckConnection, From: s, To: id})
	}

	if selfLoop {
		g.invalidConnections[id] = map[docmodel.Identifier]struct{}{id: {}}
	} else {
		delete(g.invalidConnections, id)
	}
}

// applyStage2 resolves the node ids touched by RemoveBacklink/CheckConnection
// to their current paths, locks the distinct paths in sorted order, and
// applies each instruction. It returns the set of paths that need a
// corrective write because a connection out of one of their nodes was
// just validated.
func (g *Graph) applyStage2(stage2 []pathnode.GraphUpdate) map[string]bool {
	if len(stage2) == 0 {
		return nil
	}

	touched := make(map[docmodel.Identifier]struct{})

	for _, u := range stage2 {
		switch u.Kind {
		case pathnode.RemoveBacklink:
			touched[u.ID] = struct{}{}
		case pathnode.CheckConnection:
			touched[u.From] = struct{}{}
			touched[u.To] = struct{}{}
		}
	}

	g.mapsMu.RLock()

	pathSet := make(map[string]struct{})
	for id := range touched {
		if p, ok := g.nodes[id]; ok {
			pathSet[p] = struct{}{}
		}
	}

	g.mapsMu.RUnlock()

	sortedPaths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		sortedPaths = append(sortedPaths, p)
	}

	sort.Strings(sortedPaths)

	g.pathsMu.RLock()

	locked := make(map[string]*pathSlot, len(sortedPaths))
	for _, p := range sortedPaths {
		if slot, ok := g.paths[p]; ok {
			slot.mu.Lock()
			locked[p] = slot
		}
	}

	g.pathsMu.RUnlock()

	writeback := make(map[string]bool)

	g.mapsMu.Lock()

	idToPath := func(id docmodel.Identifier) (string, bool) { p, ok := g.nodes[id]; return p, ok }

	for _, u := range stage2 {
		switch u.Kind {
		case pathnode.RemoveBacklink:
			if p, ok := idToPath(u.ID); ok {
				if slot, ok2 := locked[p]; ok2 {
					slot.node.Document.RemoveBacklink(u.ID, u.From)
				}
			}
		case pathnode.CheckConnection:
			g.applyCheckConnection(u, locked, idToPath, writeback)
		}
	}

	g.mapsMu.Unlock()

	for _, slot := range locked {
		slot.mu.Unlock()
	}

	return writeback
}

func (g *Graph) applyCheckConnection(u pathnode.GraphUpdate, locked map[string]*pathSlot, idToPath func(docmodel.Identifier) (string, bool), writeback map[string]bool) {
	fromPath, fromOK := idToPath(u.From)
	toPath, toOK := idToPath(u.To)

	if !toOK {
		if fromOK {
			if slot, ok := locked[fromPath]; ok {
				slot.node.Document.InvalidateConnection(u.From, u.To)
			}
		}

		if g.invalidConnections[u.To] == nil {
			g.invalidConnections[u.To] = make(map[docmodel.Identifier]struct{})
		}

		g.invalidConnections[u.To][u.From] = struct{}{}

		return
	}

	toSlot, ok := locked[toPath]
	if !ok {
		return
	}

	toSlot.node.Document.AddBacklink(u.To, u.From)
	title := toSlot.node.Document.Title(u.To, pathnode.FormatForPath(toPath, g.cfg.Format))

	if fromOK {
		if fromSlot, ok := locked[fromPath]; ok {
			fromSlot.node.Document.ValidateConnection(u.From, u.To, title)
			writeback[fromPath] = true
		}
	}
}

// buildCorrectiveWrites serialises every path scheduled for write-back
// (synthesised-id stabilisation or a validated/retitled connection) to its
// current on-disk text.
func (g *Graph) buildCorrectiveWrites(writeback map[string]bool) []Write {
	paths := make([]string, 0, len(writeback))
	for p := range writeback {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	var writes []Write

	for _, p := range paths {
		g.pathsMu.RLock()
		slot, ok := g.paths[p]
		g.pathsMu.RUnlock()

		if !ok {
			continue
		}

		slot.mu.RLock()
		doc := slot.node.Document
		slot.mu.RUnlock()

		if doc == nil {
			continue
		}

		format := pathnode.FormatForPath(p, g.cfg.Format)
		text := docfmt.SerializeDocument(doc.Attributes, doc.Materialize(format), format)

		writes = append(writes, Write{Path: p, Contents: text, Source: WriteFilesystem, Conflict: Conflict{Kind: ConflictNone}})
	}

	return writes
}
