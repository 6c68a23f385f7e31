package docfmt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(meta.Meta))

// splitFrontmatter isolates the raw "---\n...\n---" block so it can be
// preserved byte-for-byte in the attributes string; the block is decoded
// with yaml.v3, and goldmark only ever parses the text after it.
func splitFrontmatter(text string) (raw string, rest string) {
	if !strings.HasPrefix(text, "---\n") && text != "---" {
		return "", text
	}

	body := strings.TrimPrefix(text, "---\n")

	idx := strings.Index(body, "\n---")
	if idx == -1 {
		return "", text
	}

	raw = body[:idx]

	after := body[idx+len("\n---"):]
	after = strings.TrimPrefix(after, "\n")

	return raw, after
}

func parseMarkdownDocument(text string, actionKeywords, validTags []string) (string, *docmodel.Node, error) {
	frontmatter, body := splitFrontmatter(text)

	title := ""

	var tags []string

	if frontmatter != "" {
		var fm struct {
			Title string   `yaml:"title"`
			Tags  []string `yaml:"tags"`
		}

		if err := yaml.Unmarshal([]byte(frontmatter), &fm); err != nil {
			return "", nil, &ParseError{Reason: "malformed frontmatter", Err: err}
		}

		title = fm.Title
		tags = fm.Tags
	}

	if err := checkTags(tags, validTags); err != nil {
		return "", nil, &ParseError{Reason: "root tags", Err: err}
	}

	source := []byte(body)
	reader := text.NewReader(source)
	doc := markdownParser.Parser().Parse(reader, parser.WithContext(parser.NewContext()))

	headings := collectMarkdownHeadings(doc, source)

	root := &docmodel.Node{Title: title, Tags: tags, HasBody: false}

	bodyStart := 0
	if len(headings) > 0 {
		bodyStart = bytes.LastIndexByte(source[:headings[0].start], '\n') + 1
	} else {
		bodyStart = len(source)
	}

	rootProps, rootRest := extractMarkdownProperties(strings.TrimSpace(string(source[:bodyStart])))
	if rootRest != "" {
		root.Body, root.HasBody = rootRest, true
	}

	if err := buildMarkdownTree(root, headings, 0, len(headings), 1, source, actionKeywords, validTags); err != nil {
		return "", nil, err
	}

	id, synth := resolveID(rootProps)
	root.ID = id
	root.SynthesizedID = synth

	if err := checkDuplicateIDs(root); err != nil {
		return "", nil, &ParseError{Reason: "duplicate id", Err: err}
	}

	return frontmatter, root, nil
}

type mdHeading struct {
	level int
	title string
	start int // byte offset where this heading's section body begins
	end   int // byte offset where this heading's section ends (next heading of level <= this, or EOF)
}

func collectMarkdownHeadings(doc ast.Node, source []byte) []mdHeading {
	var headings []mdHeading

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		title := headingText(h, source)

		lines := h.Lines()

		end := len(source)
		if lines.Len() > 0 {
			end = lines.At(lines.Len() - 1).Stop
		}

		headings = append(headings, mdHeading{level: h.Level, title: title, start: end})

		return ast.WalkSkipChildren, nil
	})

	for i := range headings {
		headings[i].end = len(source)

		for j := i + 1; j < len(headings); j++ {
			if headings[j].level <= headings[i].level {
				headings[i].end = bytes.LastIndexByte(source[:headings[j].start], '\n') + 1

				break
			}
		}
	}

	return headings
}

func headingText(h *ast.Heading, source []byte) string {
	var b bytes.Buffer

	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		} else if leaf, ok := c.(interface{ Text([]byte) []byte }); ok {
			b.Write(leaf.Text(source))
		}
	}

	return strings.TrimSpace(b.String())
}

// buildMarkdownTree consumes headings[start:end) as a sequence of sibling
// subtrees at the given level, appending children to parent.
func buildMarkdownTree(parent *docmodel.Node, headings []mdHeading, start, end, level int,
	source []byte, actionKeywords, validTags []string) error {
	i := start

	for i < end {
		h := headings[i]
		if h.level != level {
			return fmt.Errorf("unexpected heading level %d at offset %d", h.level, h.start)
		}

		childEnd := i + 1
		for childEnd < end && headings[childEnd].level > level {
			childEnd++
		}

		sectionEnd := len(source)
		if i+1 < len(headings) {
			sectionEnd = bytes.LastIndexByte(source[:headings[i+1].start], '\n') + 1
		}

		bodyText := strings.TrimSpace(string(source[h.start:sectionEnd]))

		props, rest := extractMarkdownProperties(bodyText)

		keyword, priority, title := splitActionKeyword(h.title, actionKeywords)

		tags, title := extractTrailingTags(title)

		if err := checkTags(tags, validTags); err != nil {
			return &ParseError{Reason: fmt.Sprintf("node %q", title), Err: err}
		}

		id, synth := resolveID(props)

		node := &docmodel.Node{
			ID: id, Level: level, Title: title, Tags: tags,
			SynthesizedID: synth,
		}

		if rest != "" {
			node.Body, node.HasBody = rest, true
		}

		node.Metadata = metadataFromProperties(props, keyword)
		if priority != "" {
			if node.Metadata == nil {
				node.Metadata = &docmodel.NodeMetadata{Properties: make(map[string]string)}
			}
			node.Metadata.Priority = priority
		}

		parent.Children = append(parent.Children, node)

		if err := buildMarkdownTree(node, headings, i+1, childEnd, level+1, source, actionKeywords, validTags); err != nil {
			return err
		}

		i = childEnd
	}

	return nil
}

// extractTrailingTags pulls a trailing ":tag1:tag2:" block off a heading
// title, Org-style, also accepted in Markdown headings for symmetry.
func extractTrailingTags(title string) ([]string, string) {
	title = strings.TrimSpace(title)

	if !strings.HasSuffix(title, ":") {
		return nil, title
	}

	lastSpace := strings.LastIndex(title, " ")
	if lastSpace == -1 {
		return nil, title
	}

	candidate := title[lastSpace+1:]
	if strings.Count(candidate, ":") < 2 || !strings.HasPrefix(candidate, ":") {
		return nil, title
	}

	tags := strings.Split(strings.Trim(candidate, ":"), ":")

	rest := strings.TrimSpace(title[:lastSpace])

	return tags, rest
}

func serializeMarkdownDocument(attributes string, root *docmodel.Node) string {
	var b strings.Builder

	if attributes != "" {
		b.WriteString("---\n")
		b.WriteString(attributes)
		b.WriteString("\n---\n\n")
	}

	writeMarkdownProperties(&b, root)

	if root.HasBody {
		b.WriteString(root.Body)
		b.WriteString("\n\n")
	}

	for _, c := range root.Children {
		writeMarkdownNode(&b, c)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeMarkdownNode(b *strings.Builder, n *docmodel.Node) {
	b.WriteString(strings.Repeat("#", n.Level))
	b.WriteString(" ")

	if n.Metadata != nil && n.Metadata.Keyword != "" {
		b.WriteString(n.Metadata.Keyword)
		b.WriteString(" ")
	}

	if n.Metadata != nil && n.Metadata.Priority != "" {
		b.WriteString("[#")
		b.WriteString(n.Metadata.Priority)
		b.WriteString("] ")
	}

	b.WriteString(n.Title)

	if len(n.Tags) > 0 {
		b.WriteString(" :")
		b.WriteString(strings.Join(n.Tags, ":"))
		b.WriteString(":")
	}

	b.WriteString("\n\n")

	writeMarkdownProperties(b, n)

	if n.HasBody {
		b.WriteString(n.Body)
		b.WriteString("\n\n")
	}

	for _, c := range n.Children {
		writeMarkdownNode(b, c)
	}
}

func writeMarkdownProperties(b *strings.Builder, n *docmodel.Node) {
	lines := []string{"ID: " + n.ID.String()}

	if n.Metadata != nil {
		if n.Metadata.Deadline != nil {
			lines = append(lines, "DEADLINE: "+formatTimestamp(*n.Metadata.Deadline))
		}

		if n.Metadata.Scheduled != nil {
			lines = append(lines, "SCHEDULED: "+formatTimestamp(*n.Metadata.Scheduled))
		}

		if n.Metadata.Closed != nil {
			lines = append(lines, "CLOSED: "+formatTimestamp(*n.Metadata.Closed))
		}

		for k, v := range n.Metadata.Properties {
			lines = append(lines, k+": "+v)
		}
	}

	b.WriteString("<!--PROPERTIES\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n-->\n\n")
}

func formatTimestamp(ts docmodel.Timestamp) string {
	layout := "2006-01-02 Mon"
	if ts.HasTime {
		layout = "2006-01-02 Mon 15:04"
	}

	return "<" + ts.Date.Format(layout) + ">"
}
