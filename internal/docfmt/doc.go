// Package docfmt implements the parse/serialize contract for documents:
// turning raw Markdown or Org text into a docmodel.Node tree plus an
// attributes block, and back.
package docfmt

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// ParseError reports a failure to parse one document. It is always
// attributed to a single path by the caller (internal/pathnode); this
// package itself is path-agnostic.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}

	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrDuplicateID is returned when two nodes in the same document declare
// the same id property.
var ErrDuplicateID = errors.New("duplicate id within document")

// ParseDocument parses text per format, returning the raw attributes block
// (YAML frontmatter text or leading #+ lines, verbatim) and the root node
// tree. Every node carries an id; ids missing from the source are
// synthesised and flagged via Node.SynthesizedID. actionKeywords are the
// configured leading heading markers (e.g. "TODO", "DONE"); validTags, if
// non-empty, restricts which tags a node may declare.
func ParseDocument(text string, format docmodel.Format, actionKeywords, validTags []string) (attributes string, root *docmodel.Node, err error) {
	switch format {
	case docmodel.Markdown:
		return parseMarkdownDocument(text, actionKeywords, validTags)
	case docmodel.Org:
		return parseOrgDocument(text, actionKeywords, validTags)
	default:
		return "", nil, &ParseError{Reason: "unknown format"}
	}
}

// SerializeDocument is the exact inverse of ParseDocument given unchanged
// inputs: attributes plus a root tree render back to the same bytes,
// modulo the whitespace normalisation each format's writer applies.
func SerializeDocument(attributes string, root *docmodel.Node, format docmodel.Format) string {
	switch format {
	case docmodel.Markdown:
		return serializeMarkdownDocument(attributes, root)
	case docmodel.Org:
		return serializeOrgDocument(attributes, root)
	default:
		return ""
	}
}
