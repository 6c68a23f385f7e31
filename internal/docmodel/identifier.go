package docmodel

import "github.com/google/uuid"

// Identifier is the 128-bit stable identifier every node carries. It is
// opaque to the reconciliation pipeline beyond equality and string
// round-tripping.
type Identifier = uuid.UUID

// NewIdentifier synthesises a fresh identifier, used by the parser when a
// node's ID property is missing.
func NewIdentifier() Identifier {
	return uuid.New()
}

// ParseIdentifier attempts to read s as an Identifier. Returns false if s
// is not a valid UUID, in which case a link target string is treated as an
// opaque resource reference rather than a node connection.
func ParseIdentifier(s string) (Identifier, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Identifier{}, false
	}

	return id, true
}
