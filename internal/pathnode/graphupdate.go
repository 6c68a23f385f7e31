// Package pathnode implements the per-file PathNode type and its diff
// algorithm: parsing a new version of a document and comparing it against
// the previous parse to produce the exact GraphUpdate instruction stream
// the graph engine must apply.
package pathnode

import "github.com/tonimelisma/cartograph/internal/docmodel"

// UpdateKind enumerates the instruction taxonomy a diff can produce: exactly
// CreatePathNode, ModifyPathNode, DeletePathNode, AddNode, RemoveNode,
// AddNodeToIndex, RemoveNodeFromIndex, RemoveBacklink,
// RemoveInvalidConnection, CheckConnection. No explicit InvalidateConnection
// exists — CheckConnection performs invalidation when its target is absent.
type UpdateKind int

const (
	CreatePathNode UpdateKind = iota
	ModifyPathNode
	DeletePathNode
	AddNode
	RemoveNode
	AddNodeToIndex
	RemoveNodeFromIndex
	RemoveBacklink
	RemoveInvalidConnection
	CheckConnection
)

func (k UpdateKind) String() string {
	switch k {
	case CreatePathNode:
		return "create_path_node"
	case ModifyPathNode:
		return "modify_path_node"
	case DeletePathNode:
		return "delete_path_node"
	case AddNode:
		return "add_node"
	case RemoveNode:
		return "remove_node"
	case AddNodeToIndex:
		return "add_node_to_index"
	case RemoveNodeFromIndex:
		return "remove_node_from_index"
	case RemoveBacklink:
		return "remove_backlink"
	case RemoveInvalidConnection:
		return "remove_invalid_connection"
	case CheckConnection:
		return "check_connection"
	default:
		return "unknown"
	}
}

// GraphUpdate is one instruction in the stream a diff produces. Not every
// field is meaningful for every Kind; see the per-kind constructors below.
type GraphUpdate struct {
	Kind UpdateKind

	Path string // CreatePathNode, ModifyPathNode, DeletePathNode, AddNode

	ID   docmodel.Identifier // AddNode, RemoveNode, RemoveBacklink.On, CheckConnection.From
	From docmodel.Identifier // RemoveBacklink, RemoveInvalidConnection, CheckConnection
	To   docmodel.Identifier // RemoveBacklink, RemoveInvalidConnection, CheckConnection

	IndexName string // AddNodeToIndex, RemoveNodeFromIndex
}

func updCreatePathNode(path string) GraphUpdate { return GraphUpdate{Kind: CreatePathNode, Path: path} }
func updModifyPathNode(path string) GraphUpdate { return GraphUpdate{Kind: ModifyPathNode, Path: path} }
func updDeletePathNode(path string) GraphUpdate { return GraphUpdate{Kind: DeletePathNode, Path: path} }

func updAddNode(id docmodel.Identifier, path string) GraphUpdate {
	return GraphUpdate{Kind: AddNode, ID: id, Path: path}
}

func updRemoveNode(id docmodel.Identifier) GraphUpdate {
	return GraphUpdate{Kind: RemoveNode, ID: id}
}

func updRemoveBacklink(on, from docmodel.Identifier) GraphUpdate {
	return GraphUpdate{Kind: RemoveBacklink, ID: on, From: from}
}

func updRemoveInvalidConnection(from, to docmodel.Identifier) GraphUpdate {
	return GraphUpdate{Kind: RemoveInvalidConnection, From: from, To: to}
}

func updCheckConnection(from, to docmodel.Identifier) GraphUpdate {
	return GraphUpdate{Kind: CheckConnection, From: from, To: to}
}
