package docmodel

import "strings"

// tokenKind distinguishes the two kinds of entries in a ConnectedString.
type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenLink
)

// stringToken is one element of a ConnectedString's token stream.
type stringToken struct {
	kind    tokenKind
	literal string
	link    RawConnection
}

// ConnectedString is a parse of a title or body as an alternating sequence
// of literal text spans and link tokens. It is built once by
// ParseConnectedString and thereafter only read by rendering.
type ConnectedString struct {
	tokens []stringToken
}

// ParseConnectedString scans s for the format's link syntax, producing a
// token stream via a character-by-character scan (not a general
// Markdown/Org AST walk) because the target grammar (typed links keyed by
// a raw UUID, not a URL) isn't something a general-purpose Markdown/Org
// parser models directly.
func ParseConnectedString(s string, format Format, linkTypes []string, defaultType string) ConnectedString {
	var (
		tokens   []stringToken
		literal  strings.Builder
		match    strings.Builder
		inTitle  bool
		inTarget bool
	)

	runes := []rune(s)
	i := 0

	flushLiteral := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, stringToken{kind: tokenLiteral, literal: literal.String()})
			literal.Reset()
		}
	}

	for i < len(runes) {
		c := runes[i]

		switch {
		case !inTitle && !inTarget:
			switch format {
			case Markdown:
				if c == '[' {
					inTitle = true
					match.WriteRune(c)
					flushLiteral()
					i++

					continue
				}
			case Org:
				if c == '[' && i+1 < len(runes) && runes[i+1] == '[' {
					inTitle = true
					match.WriteRune(c)
					match.WriteRune(runes[i+1])
					flushLiteral()
					i += 2

					continue
				}
			}

			literal.WriteRune(c)
			i++

		case inTitle:
			isBoundary := (format == Markdown && c == ']' && i+1 < len(runes) && runes[i+1] == '(') ||
				(format == Org && c == ']' && i+1 < len(runes) && runes[i+1] == '[')

			if isBoundary {
				inTitle = false
				inTarget = true
				match.WriteRune(c)

				if format == Markdown {
					match.WriteRune('(')
					i += 2
				} else {
					match.WriteRune('[')
					i += 2
				}

				continue
			}

			match.WriteRune(c)
			i++

		case inTarget:
			isEnd := (format == Markdown && c == ')') ||
				(format == Org && c == ']' && i+1 < len(runes) && runes[i+1] == ']')

			if isEnd {
				inTarget = false
				match.WriteRune(c)

				if format == Org {
					match.WriteRune(']')
					i += 2
				} else {
					i++
				}

				full := match.String()
				match.Reset()

				var (
					conn RawConnection
					ok   bool
				)

				if format == Markdown {
					conn, ok = parseMarkdownLink(full, linkTypes, defaultType)
				} else {
					conn, ok = parseOrgLink(full, linkTypes, defaultType)
				}

				if ok {
					tokens = append(tokens, stringToken{kind: tokenLink, link: conn})
				} else {
					tokens = append(tokens, stringToken{kind: tokenLiteral, literal: full})
				}

				continue
			}

			match.WriteRune(c)
			i++
		}
	}

	flushLiteral()

	if match.Len() > 0 {
		tokens = append(tokens, stringToken{kind: tokenLiteral, literal: match.String()})
	}

	return ConnectedString{tokens: tokens}
}

// Links returns every link token's RawConnection, in document order.
func (cs ConnectedString) Links() []RawConnection {
	out := make([]RawConnection, 0, len(cs.tokens))

	for _, t := range cs.tokens {
		if t.kind == tokenLink {
			out = append(out, t.link)
		}
	}

	return out
}

// assignVariants walks the token stream in order, assigning each node-target
// link token a VariantIndex distinguishing repeated links to the same
// target (the stable (target_id, variant_index) pairing), and advances the
// shared per-target counter counts.
func (cs *ConnectedString) assignVariants(counts map[Identifier]int) {
	for i := range cs.tokens {
		if cs.tokens[i].kind != tokenLink || cs.tokens[i].link.Kind != TargetNode {
			continue
		}

		target := cs.tokens[i].link.Target
		idx := counts[target]
		cs.tokens[i].link.VariantIndex = idx
		counts[target] = idx + 1
	}
}

// Render reproduces the original text, reading each node-target link's
// current title/type from connections (which the graph engine mutates in
// place as titles propagate) and leaving resource-target links untouched.
func (cs ConnectedString) Render(format Format, connections map[Identifier]*ParallelConnections) string {
	var b strings.Builder

	for _, t := range cs.tokens {
		switch t.kind {
		case tokenLiteral:
			b.WriteString(t.literal)
		case tokenLink:
			if t.link.Kind == TargetResource {
				b.WriteString(renderLink(format, t.link, t.link.Title))
				continue
			}

			pc := connections[t.link.Target]
			if pc == nil || t.link.VariantIndex >= len(pc.Variants) {
				b.WriteString(renderLink(format, t.link, t.link.Title))
				continue
			}

			variant := pc.Variants[t.link.VariantIndex]
			b.WriteString(renderLink(format, RawConnection{
				Kind: TargetNode, Target: t.link.Target, Type: variant.Type,
			}, variant.Title))
		}
	}

	return b.String()
}

func renderLink(format Format, conn RawConnection, title string) string {
	var target string

	if conn.Kind == TargetNode {
		target = conn.Target.String()
	} else {
		target = conn.Resource
	}

	if format == Markdown {
		return "[" + title + "](" + conn.Type + ":" + target + ")"
	}

	return "[[" + conn.Type + ":" + target + "][" + title + "]]"
}
