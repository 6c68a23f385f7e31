package docmodel

// Variant is one occurrence of a link from a source node to a particular
// target, distinguished from other links to the same target by its
// position in ParallelConnections.Variants.
type Variant struct {
	Type  string
	Title string
}

// ParallelConnections groups every link from one source node to one target
// id: whether that target currently resolves to a live node, plus the
// ordered sequence of {type, title} variants the source used to reach it.
type ParallelConnections struct {
	Valid    bool
	Variants []Variant
}

// SingleConnectedNode is the per-node record within a ConnectedDocument:
// tokenised title/body, the unified connection table, the node's position
// in the document tree, and its backlinks.
type SingleConnectedNode struct {
	TitleTokens ConnectedString
	BodyTokens  *ConnectedString

	// Connections indexes only node-target links (TargetNode). Resource
	// links are rendered straight from their tokens and never tracked here,
	// since they carry no validity state.
	Connections map[Identifier]*ParallelConnections

	Position  []int
	Backlinks map[Identifier]struct{}
}

// ConnectedDocument is a parsed document: a scrubbed Node tree (title/body
// strings emptied — the real strings live only in IDMap) plus the
// tokenised per-node records and the document's raw attribute block.
type ConnectedDocument struct {
	Root       *Node
	IDMap      map[Identifier]*SingleConnectedNode
	Attributes string

	nodeIndex map[Identifier]*Node
}

// FromDocument tokenises raw's title/body at every node into a
// ConnectedDocument, building scrubbed copies of the nodes as it goes
// (raw itself is left unmodified), applied across the whole tree rather
// than one node at a time.
func FromDocument(raw *Node, attributes string, format Format, linkTypes []string, defaultType string) *ConnectedDocument {
	doc := &ConnectedDocument{
		IDMap:      make(map[Identifier]*SingleConnectedNode),
		Attributes: attributes,
		nodeIndex:  make(map[Identifier]*Node),
	}

	doc.Root = scrubTree(raw, nil, doc, format, linkTypes, defaultType)

	return doc
}

func scrubTree(n *Node, position []int, doc *ConnectedDocument, format Format, linkTypes []string, defaultType string) *Node {
	titleTokens := ParseConnectedString(n.Title, format, linkTypes, defaultType)

	var bodyTokens *ConnectedString

	if n.HasBody {
		bt := ParseConnectedString(n.Body, format, linkTypes, defaultType)
		bodyTokens = &bt
	}

	counts := make(map[Identifier]int)
	titleTokens.assignVariants(counts)

	if bodyTokens != nil {
		bodyTokens.assignVariants(counts)
	}

	connections := make(map[Identifier]*ParallelConnections)

	registerLinks(titleTokens.Links(), connections)

	if bodyTokens != nil {
		registerLinks(bodyTokens.Links(), connections)
	}

	scn := &SingleConnectedNode{
		TitleTokens: titleTokens,
		BodyTokens:  bodyTokens,
		Connections: connections,
		Position:    append([]int(nil), position...),
		Backlinks:   make(map[Identifier]struct{}),
	}

	doc.IDMap[n.ID] = scn

	scrubbed := &Node{
		ID: n.ID, Level: n.Level, Tags: n.Tags, Metadata: n.Metadata,
		SynthesizedID: n.SynthesizedID,
	}
	doc.nodeIndex[n.ID] = scrubbed

	scrubbed.Children = make([]*Node, len(n.Children))
	for i, c := range n.Children {
		scrubbed.Children[i] = scrubTree(c, append(position, i), doc, format, linkTypes, defaultType)
	}

	return scrubbed
}

func registerLinks(links []RawConnection, connections map[Identifier]*ParallelConnections) {
	for _, l := range links {
		if l.Kind != TargetNode {
			continue
		}

		pc := connections[l.Target]
		if pc == nil {
			pc = &ParallelConnections{}
			connections[l.Target] = pc
		}

		for len(pc.Variants) <= l.VariantIndex {
			pc.Variants = append(pc.Variants, Variant{})
		}

		pc.Variants[l.VariantIndex] = Variant{Type: l.Type, Title: l.Title}
	}
}

// Node returns the scrubbed node with the given id, if present in this
// document.
func (d *ConnectedDocument) Node(id Identifier) (*Node, bool) {
	n, ok := d.nodeIndex[id]
	return n, ok
}

// SingleNode returns the tokenised record for id, if present.
func (d *ConnectedDocument) SingleNode(id Identifier) (*SingleConnectedNode, bool) {
	scn, ok := d.IDMap[id]
	return scn, ok
}

// Title renders the node id's title in the given format, substituting
// current link titles from its connection table.
func (d *ConnectedDocument) Title(id Identifier, format Format) string {
	scn, ok := d.IDMap[id]
	if !ok {
		return ""
	}

	return scn.TitleTokens.Render(format, scn.Connections)
}

// Body renders the node id's body, if it has one.
func (d *ConnectedDocument) Body(id Identifier, format Format) (string, bool) {
	scn, ok := d.IDMap[id]
	if !ok || scn.BodyTokens == nil {
		return "", false
	}

	return scn.BodyTokens.Render(format, scn.Connections), true
}

// Connections returns id's outbound node-target connections (excluding
// resource links), keyed by target.
func (d *ConnectedDocument) Connections(id Identifier) map[Identifier]*ParallelConnections {
	scn, ok := d.IDMap[id]
	if !ok {
		return nil
	}

	return scn.Connections
}

// Backlinks returns the set of node ids that connect into id.
func (d *ConnectedDocument) Backlinks(id Identifier) []Identifier {
	scn, ok := d.IDMap[id]
	if !ok {
		return nil
	}

	out := make([]Identifier, 0, len(scn.Backlinks))
	for b := range scn.Backlinks {
		out = append(out, b)
	}

	return out
}

// AddBacklink records that from connects into on.
func (d *ConnectedDocument) AddBacklink(on, from Identifier) {
	if scn, ok := d.IDMap[on]; ok {
		scn.Backlinks[from] = struct{}{}
	}
}

// RemoveBacklink removes the record that from connects into on.
func (d *ConnectedDocument) RemoveBacklink(on, from Identifier) {
	if scn, ok := d.IDMap[on]; ok {
		delete(scn.Backlinks, from)
	}
}

// InvalidateConnection marks every variant of on's connection to to as
// invalid.
func (d *ConnectedDocument) InvalidateConnection(on, to Identifier) {
	if scn, ok := d.IDMap[on]; ok {
		if pc, ok := scn.Connections[to]; ok {
			pc.Valid = false
		}
	}
}

// ValidateConnection marks on's connection to to as valid and updates every
// variant's title to toTitle (the target's current rendered title).
func (d *ConnectedDocument) ValidateConnection(on, to Identifier, toTitle string) {
	scn, ok := d.IDMap[on]
	if !ok {
		return
	}

	pc, ok := scn.Connections[to]
	if !ok {
		return
	}

	pc.Valid = true

	for i := range pc.Variants {
		pc.Variants[i].Title = toTitle
	}
}

// IDs returns every node id present in this document.
func (d *ConnectedDocument) IDs() []Identifier {
	out := make([]Identifier, 0, len(d.IDMap))
	for id := range d.IDMap {
		out = append(out, id)
	}

	return out
}

// Materialize rebuilds a full Node tree with Title/Body restored from the
// tokenised form (current connection titles substituted), suitable for
// serialisation back to text.
func (d *ConnectedDocument) Materialize(format Format) *Node {
	return d.materializeNode(d.Root, format)
}

func (d *ConnectedDocument) materializeNode(n *Node, format Format) *Node {
	body, hasBody := d.Body(n.ID, format)

	out := &Node{
		ID: n.ID, Level: n.Level, Tags: n.Tags, Metadata: n.Metadata,
		SynthesizedID: n.SynthesizedID,
		Title:         d.Title(n.ID, format),
		Body:          body,
		HasBody:       hasBody,
	}

	out.Children = make([]*Node, len(n.Children))
	for i, c := range n.Children {
		out.Children[i] = d.materializeNode(c, format)
	}

	return out
}

// EffectiveTags returns id's own tags unioned with every ancestor's tags,
// derived by walking Root along the node's stored Position.
func (d *ConnectedDocument) EffectiveTags(id Identifier) []string {
	scn, ok := d.IDMap[id]
	if !ok {
		return nil
	}

	node := d.Root
	tags := append([]string(nil), node.Tags...)

	for _, idx := range scn.Position {
		if idx < 0 || idx >= len(node.Children) {
			break
		}

		node = node.Children[idx]
		tags = append(tags, node.Tags...)
	}

	return tags
}

// ContextualizedTitle renders id's title prefixed with a "/"-joined
// breadcrumb of its ancestors' titles, derived from its stored Position.
func (d *ConnectedDocument) ContextualizedTitle(id Identifier, format Format) string {
	scn, ok := d.IDMap[id]
	if !ok {
		return ""
	}

	crumbs := make([]string, 0, len(scn.Position)+1)

	node := d.Root
	crumbs = append(crumbs, d.Title(node.ID, format))

	for _, idx := range scn.Position {
		if idx < 0 || idx >= len(node.Children) {
			break
		}

		node = node.Children[idx]
		crumbs = append(crumbs, d.Title(node.ID, format))
	}

	out := crumbs[0]
	for _, c := range crumbs[1:] {
		out += "/" + c
	}

	return out
}
