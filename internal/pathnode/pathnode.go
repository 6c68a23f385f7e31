package pathnode

import (
	"path/filepath"
	"strings"

	"github.com/tonimelisma/cartograph/internal/docfmt"
	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// ParseConfig carries the configuration values the parser and tokenizer
// need; it is a narrow view of internal/config.Config. Format is the
// fallback used for a path whose extension isn't recognized — ordinarily
// every path's own extension (.md/.markdown vs .org) picks its format, so
// a single watched directory can mix both document kinds.
type ParseConfig struct {
	Format          docmodel.Format
	LinkTypes       []string
	DefaultLinkType string
	ActionKeywords  []string
	Tags            []string
}

// FormatForPath picks a document's format from its extension, falling back
// to cfg.Format for anything patchbuilder's extension filter wouldn't
// actually hand it. Exported so callers outside this package (the graph
// engine's write-back path) can pick the right format for a path without
// assuming the whole watched directory shares one.
func FormatForPath(path string, fallback docmodel.Format) docmodel.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".org":
		return docmodel.Org
	case ".md", ".markdown":
		return docmodel.Markdown
	default:
		return fallback
	}
}

// PathNode is the per-file state: its last successful parse (if any), the
// set of node ids it currently contributes, and the last parse error (if
// any).
type PathNode struct {
	Path     string
	Document *docmodel.ConnectedDocument
	NodeIDs  map[docmodel.Identifier]struct{}
	Err      error
}

// ContentsResult is the outcome of reading a file: either its text or the
// I/O error encountered.
type ContentsResult struct {
	Text string
	Err  error
}

func idSet(doc *docmodel.ConnectedDocument) map[docmodel.Identifier]struct{} {
	ids := doc.IDs()
	set := make(map[docmodel.Identifier]struct{}, len(ids))

	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// New parses a brand-new file into a PathNode, diffing against an empty
// prior id set — every id it contains is therefore "added". Does not
// include the CreatePathNode instruction; the caller (graph engine Phase B)
// prepends that itself.
func New(path string, contents ContentsResult, cfg ParseConfig) (*PathNode, []GraphUpdate) {
	return diff(&PathNode{Path: path, NodeIDs: map[docmodel.Identifier]struct{}{}}, path, contents, cfg)
}

// Update diffs a new parse of path against pn's previous state. Does not
// include ModifyPathNode; the caller prepends that.
func (pn *PathNode) Update(newPath string, contents ContentsResult, cfg ParseConfig) (*PathNode, []GraphUpdate) {
	return diff(pn, newPath, contents, cfg)
}

func diff(old *PathNode, path string, contents ContentsResult, cfg ParseConfig) (*PathNode, []GraphUpdate) {
	if contents.Err != nil {
		return &PathNode{Path: path, Document: old.Document, NodeIDs: old.NodeIDs, Err: contents.Err}, nil
	}

	format := FormatForPath(path, cfg.Format)

	attrs, root, err := docfmt.ParseDocument(contents.Text, format, cfg.ActionKeywords, cfg.Tags)
	if err != nil {
		return &PathNode{Path: path, Document: old.Document, NodeIDs: old.NodeIDs, Err: err}, nil
	}

	doc := docmodel.FromDocument(root, attrs, format, cfg.LinkTypes, cfg.DefaultLinkType)
	newIDs := idSet(doc)

	var updates []GraphUpdate

	for id := range old.NodeIDs {
		if _, stillPresent := newIDs[id]; stillPresent {
			continue
		}

		updates = append(updates, removedNodeUpdates(old.Document, id)...)
	}

	for id := range newIDs {
		if _, existedBefore := old.NodeIDs[id]; existedBefore {
			continue
		}

		updates = append(updates, addedNodeUpdates(doc, id, path)...)
	}

	for id := range newIDs {
		if _, existedBefore := old.NodeIDs[id]; !existedBefore {
			continue
		}

		updates = append(updates, retainedNodeUpdates(old.Document, doc, id, format)...)
	}

	return &PathNode{Path: path, Document: doc, NodeIDs: newIDs}, updates
}

// removedNodeUpdates handles one id present before but absent now: for
// every outbound connection it had, emit RemoveBacklink (if it was valid)
// or RemoveInvalidConnection (if not), then RemoveNode.
func removedNodeUpdates(oldDoc *docmodel.ConnectedDocument, id docmodel.Identifier) []GraphUpdate {
	var updates []GraphUpdate

	for target, pc := range oldDoc.Connections(id) {
		if pc.Valid {
			updates = append(updates, updRemoveBacklink(target, id))
		} else {
			updates = append(updates, updRemoveInvalidConnection(id, target))
		}
	}

	updates = append(updates, updRemoveNode(id))

	return updates
}

// addedNodeUpdates handles one id present now but absent before: AddNode,
// plus CheckConnection for every outbound link.
func addedNodeUpdates(doc *docmodel.ConnectedDocument, id docmodel.Identifier, path string) []GraphUpdate {
	updates := []GraphUpdate{updAddNode(id, path)}

	for target := range doc.Connections(id) {
		updates = append(updates, updCheckConnection(id, target))
	}

	return updates
}

// retainedNodeUpdates handles one id present both before and now: transfer
// still-valid connections to unchanged targets, CheckConnection for new
// targets, RemoveBacklink/RemoveInvalidConnection for dropped targets, and
// (if the rendered title changed) CheckConnection for every backlink
// source so their rendered titles refresh.
func retainedNodeUpdates(oldDoc, newDoc *docmodel.ConnectedDocument, id docmodel.Identifier, format docmodel.Format) []GraphUpdate {
	var updates []GraphUpdate

	oldConns := oldDoc.Connections(id)
	newConns := newDoc.Connections(id)

	for target, pc := range newConns {
		if oldPC, existedBefore := oldConns[target]; existedBefore && oldPC.Valid {
			pc.Valid = true

			continue
		}

		updates = append(updates, updCheckConnection(id, target))
	}

	for target, pc := range oldConns {
		if _, stillPresent := newConns[target]; stillPresent {
			continue
		}

		if pc.Valid {
			updates = append(updates, updRemoveBacklink(target, id))
		} else {
			updates = append(updates, updRemoveInvalidConnection(id, target))
		}
	}

	oldSCN, hasOld := oldDoc.SingleNode(id)
	newSCN, hasNew := newDoc.SingleNode(id)

	if hasOld && hasNew {
		for b := range oldSCN.Backlinks {
			newSCN.Backlinks[b] = struct{}{}
		}
	}

	if hasNew && oldDoc.Title(id, format) != newDoc.Title(id, format) {
		for b := range newSCN.Backlinks {
			updates = append(updates, updCheckConnection(b, id))
		}
	}

	return updates
}

// Delete produces the full instruction sequence for a path that has
// disappeared: per node on the path, RemoveBacklink/RemoveInvalidConnection
// for every outbound connection plus RemoveNode, followed by
// DeletePathNode.
func (pn *PathNode) Delete() []GraphUpdate {
	var updates []GraphUpdate

	for id := range pn.NodeIDs {
		updates = append(updates, removedNodeUpdates(pn.Document, id)...)
	}

	updates = append(updates, updDeletePathNode(pn.Path))

	return updates
}
