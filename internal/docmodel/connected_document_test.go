package docmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDocument_BuildsIDMapAndScrubsTree(t *testing.T) {
	childID := NewIdentifier()
	rootID := NewIdentifier()

	raw := &Node{
		ID: rootID, Title: "Root Note",
		Children: []*Node{
			{ID: childID, Title: "see [child](link:" + childID.String() + ")"},
		},
	}

	doc := FromDocument(raw, "", Markdown, []string{"link"}, "link")

	assert.Equal(t, "", doc.Root.Title)
	require.Len(t, doc.Root.Children, 1)
	assert.Equal(t, "", doc.Root.Children[0].Title)

	assert.Equal(t, "Root Note", doc.Title(rootID, Markdown))

	n, ok := doc.Node(childID)
	require.True(t, ok)
	assert.Equal(t, childID, n.ID)
}

func TestFromDocument_RegistersOutboundConnections(t *testing.T) {
	targetID := NewIdentifier()
	rootID := NewIdentifier()

	raw := &Node{ID: rootID, Title: "links to [x](link:" + targetID.String() + ")"}
	doc := FromDocument(raw, "", Markdown, []string{"link"}, "link")

	conns := doc.Connections(rootID)
	require.Contains(t, conns, targetID)
	assert.Len(t, conns[targetID].Variants, 1)
	assert.Equal(t, "x", conns[targetID].Variants[0].Title)
}

func TestConnectedDocument_BacklinkAddRemove(t *testing.T) {
	a := NewIdentifier()
	b := NewIdentifier()

	doc := FromDocument(&Node{ID: a, Title: "a"}, "", Markdown, []string{"link"}, "link")
	doc.IDMap[b] = &SingleConnectedNode{Backlinks: make(map[Identifier]struct{}), Connections: make(map[Identifier]*ParallelConnections)}

	doc.AddBacklink(b, a)
	assert.ElementsMatch(t, []Identifier{a}, doc.Backlinks(b))

	doc.RemoveBacklink(b, a)
	assert.Empty(t, doc.Backlinks(b))
}

func TestConnectedDocument_ValidateAndInvalidateConnection(t *testing.T) {
	sourceID := NewIdentifier()
	targetID := NewIdentifier()

	raw := &Node{ID: sourceID, Title: "[x](link:" + targetID.String() + ")"}
	doc := FromDocument(raw, "", Markdown, []string{"link"}, "link")

	doc.ValidateConnection(sourceID, targetID, "New Title")
	conns := doc.Connections(sourceID)
	require.True(t, conns[targetID].Valid)
	assert.Equal(t, "New Title", conns[targetID].Variants[0].Title)
	assert.Equal(t, "[New Title](link:"+targetID.String()+")", doc.Title(sourceID, Markdown))

	doc.InvalidateConnection(sourceID, targetID)
	assert.False(t, conns[targetID].Valid)
}
