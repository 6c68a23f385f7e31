package graphengine

import (
	"errors"
	"sort"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// ErrNodeNotFound is returned by GetNode when id isn't a live node.
var ErrNodeNotFound = errors.New("graphengine: node not found")

// ErrPathNotFound is returned by path-keyed queries for an untracked path.
var ErrPathNotFound = errors.New("graphengine: path not tracked")

// NodeOptions selects which (potentially expensive) fields a GetNode call
// populates, mirroring the query surface's {body, metadata, children,
// connections, child_connections, contextualized, format} parameters.
type NodeOptions struct {
	Body             bool
	Metadata         bool
	Children         bool
	Connections      bool
	ChildConnections bool
	Contextualized   bool
	Format           docmodel.Format
}

// NodeConnection is one outbound connection, rendered for the query
// surface.
type NodeConnection struct {
	To       docmodel.Identifier
	Valid    bool
	Variants []docmodel.Variant
}

// Node is the query surface's rendering of a live graph node.
type Node struct {
	ID          docmodel.Identifier
	Level       int
	Title       string
	Body        *string
	Tags        []string
	AllTags     []string
	Metadata    *docmodel.NodeMetadata
	Connections []NodeConnection
	Backlinks   []docmodel.Identifier
	Children    []*Node
}

// GetNode returns id's current rendering, acquiring only the locks the
// requested options need.
func (g *Graph) GetNode(id docmodel.Identifier, opts NodeOptions) (*Node, error) {
	g.mapsMu.RLock()
	path, ok := g.nodes[id]
	g.mapsMu.RUnlock()

	if !ok {
		return nil, ErrNodeNotFound
	}

	g.pathsMu.RLock()
	slot, ok := g.paths[path]
	g.pathsMu.RUnlock()

	if !ok {
		return nil, ErrNodeNotFound
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()

	if slot.node.Document == nil {
		return nil, ErrNodeNotFound
	}

	out := g.buildNode(slot.node.Document, id, opts, nil)
	if out == nil {
		return nil, ErrNodeNotFound
	}

	return out, nil
}

func (g *Graph) buildNode(doc *docmodel.ConnectedDocument, id docmodel.Identifier, opts NodeOptions, parentTags []string) *Node {
	raw, ok := doc.Node(id)
	if !ok {
		return nil
	}

	title := doc.Title(id, opts.Format)
	if opts.Contextualized {
		title = doc.ContextualizedTitle(id, opts.Format)
	}

	out := &Node{
		ID:      id,
		Level:   raw.Level,
		Title:   title,
		Tags:    raw.Tags,
		AllTags: raw.AllTags(parentTags),
	}

	if opts.Body {
		if b, has := doc.Body(id, opts.Format); has {
			out.Body = &b
		}
	}

	if opts.Metadata {
		out.Metadata = raw.Metadata
	}

	if opts.Connections {
		out.Connections = connectionList(doc.Connections(id))
		out.Backlinks = doc.Backlinks(id)
		sort.Slice(out.Backlinks, func(i, j int) bool { return out.Backlinks[i].String() < out.Backlinks[j].String() })
	}

	if opts.Children {
		childOpts := opts
		if !opts.ChildConnections {
			childOpts.Connections = false
		}

		for _, c := range raw.Children {
			if child := g.buildNode(doc, c.ID, childOpts, out.AllTags); child != nil {
				out.Children = append(out.Children, child)
			}
		}
	}

	return out
}

func connectionList(m map[docmodel.Identifier]*docmodel.ParallelConnections) []NodeConnection {
	out := make([]NodeConnection, 0, len(m))

	for to, pc := range m {
		out = append(out, NodeConnection{To: to, Valid: pc.Valid, Variants: pc.Variants})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].To.String() < out[j].To.String() })

	return out
}

// ListNodes returns every live node id, sorted.
func (g *Graph) ListNodes() []docmodel.Identifier {
	g.mapsMu.RLock()
	defer g.mapsMu.RUnlock()

	out := make([]docmodel.Identifier, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out
}

// ListPaths returns every tracked path, sorted, regardless of whether it
// currently holds a successfully parsed document.
func (g *Graph) ListPaths() []string {
	g.pathsMu.RLock()
	defer g.pathsMu.RUnlock()

	out := make([]string, 0, len(g.paths))
	for p := range g.paths {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

// ListIndex returns the member ids of the named index, sorted, or false if
// no such index is configured.
func (g *Graph) ListIndex(name string) ([]docmodel.Identifier, bool) {
	g.mapsMu.RLock()
	defer g.mapsMu.RUnlock()

	idx, ok := g.indices[name]
	if !ok {
		return nil, false
	}

	out := make([]docmodel.Identifier, 0, len(idx.members))
	for id := range idx.members {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	return out, true
}

// PathErrors reports the last parse error (if any) and the set of invalid
// connection targets for every node on the given path.
type PathErrors struct {
	ParseError          string
	InvalidConnections []docmodel.Identifier
}

// Errors returns PathErrors for path, or ErrPathNotFound if path isn't
// tracked.
func (g *Graph) Errors(path string) (PathErrors, error) {
	g.pathsMu.RLock()
	slot, ok := g.paths[path]
	g.pathsMu.RUnlock()

	if !ok {
		return PathErrors{}, ErrPathNotFound
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()

	var out PathErrors

	if slot.node.Err != nil {
		out.ParseError = slot.node.Err.Error()
	}

	if slot.node.Document != nil {
		seen := make(map[docmodel.Identifier]struct{})

		for id := range slot.node.NodeIDs {
			for to, pc := range slot.node.Document.Connections(id) {
				if pc.Valid {
					continue
				}

				if _, dup := seen[to]; dup {
					continue
				}

				seen[to] = struct{}{}
				out.InvalidConnections = append(out.InvalidConnections, to)
			}
		}
	}

	sort.Slice(out.InvalidConnections, func(i, j int) bool {
		return out.InvalidConnections[i].String() < out.InvalidConnections[j].String()
	})

	return out, nil
}

// RootID returns the root node id for path, or ErrPathNotFound.
func (g *Graph) RootID(path string) (docmodel.Identifier, error) {
	g.pathsMu.RLock()
	slot, ok := g.paths[path]
	g.pathsMu.RUnlock()

	if !ok || slot.node.Document == nil {
		return docmodel.Identifier{}, ErrPathNotFound
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()

	return slot.node.Document.Root.ID, nil
}
