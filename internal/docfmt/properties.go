package docfmt

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// properties is a parsed PROPERTIES block: an ordered-irrelevant key/value
// map plus the reserved ID entry pulled out separately.
type properties struct {
	id     string
	hasID  bool
	values map[string]string
}

func newProperties() properties {
	return properties{values: make(map[string]string)}
}

func (p *properties) set(key, value string) {
	key = strings.ToUpper(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	if key == "ID" {
		p.id = value
		p.hasID = value != ""

		return
	}

	p.values[key] = value
}

// mdPropertiesRe matches a Markdown HTML-comment properties block:
// <!--PROPERTIES\nKEY: value\n...-->
var mdPropertiesRe = regexp.MustCompile(`(?s)^<!--PROPERTIES\n(.*?)\n?-->`)

// extractMarkdownProperties splits a leading PROPERTIES comment off body,
// returning the parsed properties and the remaining body text.
func extractMarkdownProperties(body string) (properties, string) {
	props := newProperties()

	m := mdPropertiesRe.FindStringSubmatchIndex(body)
	if m == nil {
		return props, body
	}

	block := body[m[2]:m[3]]
	for _, line := range strings.Split(block, "\n") {
		if idx := strings.Index(line, ":"); idx >= 0 {
			props.set(line[:idx], line[idx+1:])
		}
	}

	rest := strings.TrimLeft(body[m[1]:], "\n")

	return props, rest
}

// extractOrgDrawer splits a leading :PROPERTIES:/:END: drawer off body.
func extractOrgDrawer(body string) (properties, string) {
	props := newProperties()

	lines := strings.Split(body, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != ":PROPERTIES:" {
		return props, body
	}

	end := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == ":END:" {
			end = i

			break
		}

		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, ":")

		if idx := strings.Index(line, ":"); idx >= 0 {
			props.set(line[:idx], line[idx+1:])
		}
	}

	if end == -1 {
		return newProperties(), body
	}

	rest := strings.Join(lines[end+1:], "\n")
	rest = strings.TrimLeft(rest, "\n")

	return props, rest
}

// resolveID returns props.id as an Identifier, synthesising and flagging a
// fresh one if absent.
func resolveID(props properties) (id docmodel.Identifier, synthesized bool) {
	if props.hasID {
		if parsed, ok := docmodel.ParseIdentifier(props.id); ok {
			return parsed, false
		}
	}

	return docmodel.NewIdentifier(), true
}

// metadataFromProperties lifts DEADLINE/SCHEDULED/CLOSED/PRIORITY entries
// out of a parsed properties block into NodeMetadata, leaving the rest in
// Properties.
func metadataFromProperties(props properties, keyword string) *docmodel.NodeMetadata {
	md := &docmodel.NodeMetadata{Keyword: keyword, Properties: make(map[string]string)}

	for k, v := range props.values {
		switch k {
		case "DEADLINE":
			if ts, ok := parseTimestamp(v); ok {
				md.Deadline = &ts
			}
		case "SCHEDULED":
			if ts, ok := parseTimestamp(v); ok {
				md.Scheduled = &ts
			}
		case "CLOSED":
			if ts, ok := parseTimestamp(v); ok {
				md.Closed = &ts
			}
		case "PRIORITY":
			md.Priority = v
		default:
			md.Properties[k] = v
		}
	}

	if md.Deadline == nil && md.Scheduled == nil && md.Closed == nil &&
		md.Priority == "" && len(md.Properties) == 0 && keyword == "" {
		return nil
	}

	return md
}

// timestampRe matches "<2026-01-15 Wed>", "<2026-01-15 Wed 09:00>", and an
// optional trailing repeater like "+1w"/"++1m"/".+1d".
var timestampRe = regexp.MustCompile(`[<\[](\d{4})-(\d{2})-(\d{2})(?:\s+\w+)?(?:\s+(\d{2}):(\d{2}))?(?:\s+([.+]{1,2})(\d+)([dwmy]))?[>\]]`)

func parseTimestamp(s string) (docmodel.Timestamp, bool) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return docmodel.Timestamp{}, false
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	hasTime := m[4] != ""

	hour, minute := 0, 0
	if hasTime {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}

	ts := docmodel.Timestamp{
		Date:    time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC),
		HasTime: hasTime,
	}

	if m[6] != "" {
		amount, _ := strconv.Atoi(m[7])

		var kind docmodel.RepeaterKind

		switch m[6] {
		case "+":
			kind = docmodel.RepeaterCumulative
		case "++":
			kind = docmodel.RepeaterCatchUp
		case ".+":
			kind = docmodel.RepeaterRestart
		}

		var unit docmodel.RepeaterUnit

		switch m[8] {
		case "d":
			unit = docmodel.UnitDay
		case "w":
			unit = docmodel.UnitWeek
		case "m":
			unit = docmodel.UnitMonth
		case "y":
			unit = docmodel.UnitYear
		}

		ts.Repeater = &docmodel.Repeater{Kind: kind, Amount: amount, Unit: unit}
	}

	return ts, true
}

// splitActionKeyword strips a leading action keyword (e.g. "TODO", "DONE")
// and an optional "[#A]" priority cookie from a heading title, returning
// the remainder.
func splitActionKeyword(title string, actionKeywords []string) (keyword, priority, rest string) {
	rest = title

	for _, kw := range actionKeywords {
		if rest == kw || strings.HasPrefix(rest, kw+" ") {
			keyword = kw
			rest = strings.TrimSpace(strings.TrimPrefix(rest, kw))

			break
		}
	}

	if strings.HasPrefix(rest, "[#") {
		if idx := strings.Index(rest, "]"); idx > 0 {
			priority = rest[2:idx]
			rest = strings.TrimSpace(rest[idx+1:])
		}
	}

	return keyword, priority, rest
}
