package docfmt

import (
	"fmt"
	"strings"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// parseOrgDocument has no ecosystem library to lean on for Org-mode; it
// scans leading #+key: lines for attributes, then heading lines ("*",
// "**", ...) for the node tree, mirroring the structure of the Markdown
// parser above.
func parseOrgDocument(text string, actionKeywords, validTags []string) (string, *docmodel.Node, error) {
	lines := strings.Split(text, "\n")

	var attrLines []string

	title := ""

	var tags []string

	i := 0

	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, "#+") {
			break
		}

		attrLines = append(attrLines, line)

		rest := strings.TrimPrefix(trimmed, "#+")

		idx := strings.Index(rest, ":")
		if idx == -1 {
			i++

			continue
		}

		key := strings.ToLower(rest[:idx])
		value := strings.TrimSpace(rest[idx+1:])

		switch key {
		case "title":
			title = value
		case "tags", "filetags":
			tags = append(tags, splitOrgTags(value)...)
		}

		i++
	}

	if err := checkTags(tags, validTags); err != nil {
		return "", nil, &ParseError{Reason: "root tags", Err: err}
	}

	attributes := strings.Join(attrLines, "\n")

	bodyLines := lines[i:]

	headings := collectOrgHeadings(bodyLines)

	root := &docmodel.Node{Title: title, Tags: tags}

	bodyEnd := len(bodyLines)
	if len(headings) > 0 {
		bodyEnd = headings[0].lineStart
	}

	rootProps, rootRest := extractOrgDrawer(strings.TrimSpace(strings.Join(bodyLines[:bodyEnd], "\n")))
	if rootRest != "" {
		root.Body, root.HasBody = rootRest, true
	}

	if err := buildOrgTree(root, headings, 0, len(headings), 1, bodyLines, actionKeywords, validTags); err != nil {
		return "", nil, err
	}

	id, synth := resolveID(rootProps)
	root.ID = id
	root.SynthesizedID = synth

	if err := checkDuplicateIDs(root); err != nil {
		return "", nil, &ParseError{Reason: "duplicate id", Err: err}
	}

	return attributes, root, nil
}

func splitOrgTags(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), ":")
	if s == "" {
		return nil
	}

	return strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
}

type orgHeading struct {
	level     int
	title     string
	lineStart int // line index of the heading's line
}

func collectOrgHeadings(lines []string) []orgHeading {
	var headings []orgHeading

	for i, line := range lines {
		trimmed := line

		level := 0
		for level < len(trimmed) && trimmed[level] == '*' {
			level++
		}

		if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
			continue
		}

		title := strings.TrimSpace(trimmed[level:])
		headings = append(headings, orgHeading{level: level, title: title, lineStart: i})
	}

	return headings
}

func buildOrgTree(parent *docmodel.Node, headings []orgHeading, start, end, level int,
	lines []string, actionKeywords, validTags []string) error {
	i := start

	for i < end {
		h := headings[i]
		if h.level != level {
			return fmt.Errorf("unexpected heading level %d at line %d", h.level, h.lineStart)
		}

		childEnd := i + 1
		for childEnd < end && headings[childEnd].level > level {
			childEnd++
		}

		sectionEnd := len(lines)
		if i+1 < len(headings) {
			sectionEnd = headings[i+1].lineStart
		}

		bodyText := strings.TrimSpace(strings.Join(lines[h.lineStart+1:sectionEnd], "\n"))

		props, rest := extractOrgDrawer(bodyText)

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

		if err := buildOrgTree(node, headings, i+1, childEnd, level+1, lines, actionKeywords, validTags); err != nil {
			return err
		}

		i = childEnd
	}

	return nil
}

func serializeOrgDocument(attributes string, root *docmodel.Node) string {
	var b strings.Builder

	if attributes != "" {
		b.WriteString(attributes)
		b.WriteString("\n\n")
	}

	writeOrgDrawer(&b, root)

	if root.HasBody {
		b.WriteString(root.Body)
		b.WriteString("\n\n")
	}

	for _, c := range root.Children {
		writeOrgNode(&b, c)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeOrgNode(b *strings.Builder, n *docmodel.Node) {
	b.WriteString(strings.Repeat("*", n.Level))
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

	b.WriteString("\n")

	writeOrgDrawer(b, n)

	if n.HasBody {
		b.WriteString(n.Body)
		b.WriteString("\n\n")
	}

	for _, c := range n.Children {
		writeOrgNode(b, c)
	}
}

func writeOrgDrawer(b *strings.Builder, n *docmodel.Node) {
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(":ID: " + n.ID.String() + "\n")

	if n.Metadata != nil {
		if n.Metadata.Deadline != nil {
			b.WriteString(":DEADLINE: " + formatTimestamp(*n.Metadata.Deadline) + "\n")
		}

		if n.Metadata.Scheduled != nil {
			b.WriteString(":SCHEDULED: " + formatTimestamp(*n.Metadata.Scheduled) + "\n")
		}

		if n.Metadata.Closed != nil {
			b.WriteString(":CLOSED: " + formatTimestamp(*n.Metadata.Closed) + "\n")
		}

		for k, v := range n.Metadata.Properties {
			b.WriteString(":" + k + ": " + v + "\n")
		}
	}

	b.WriteString(":END:\n")
}
