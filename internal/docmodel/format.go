// Package docmodel holds the in-memory representation of a parsed document:
// tokenised titles/bodies with typed links, per-node connection tables, and
// backlinks. It is the data model that internal/docfmt populates and
// internal/pathnode/internal/graphengine operate on.
package docmodel

// Format identifies the on-disk document dialect.
type Format int

const (
	// Markdown documents use YAML frontmatter and [title](type:id) links.
	Markdown Format = iota
	// Org documents use #+title:/#+tags: leading lines and [[type:id][title]] links.
	Org
)

func (f Format) String() string {
	switch f {
	case Markdown:
		return "markdown"
	case Org:
		return "org"
	default:
		return "unknown"
	}
}
