package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// newTable returns a go-pretty table writer styled for plain terminal
// output: no outer border, no row separators, aligned columns divided by
// column separators, and a header rule.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	t.Style().Options.SeparateColumns = true
	t.Style().Options.DrawBorder = false

	return t
}

// formatAge renders the time since t in the short relative form
// ("3 minutes ago") that's easier to scan at a glance than a raw
// timestamp.
func formatAge(t time.Time) string {
	return humanize.RelTime(t, time.Now(), "ago", "from now")
}

// formatCount renders n with thousands separators via go-humanize, plus
// unit pluralized for n != 1.
func formatCount(n int, unit string) string {
	return humanize.Comma(int64(n)) + " " + unit + pluralSuffix(n)
}

func pluralSuffix(n int) string {
	if n == 1 {
		return ""
	}

	return "s"
}

// tableRow builds a go-pretty table.Row from a variadic list of cell
// values, avoiding a table.Row{...} literal at every call site.
func tableRow(cells ...any) table.Row { return table.Row(cells) }
