package docfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_PlainDate(t *testing.T) {
	ts, ok := parseTimestamp("<2026-03-05 Thu>")
	require.True(t, ok)
	assert.Equal(t, 2026, ts.Date.Year())
	assert.Equal(t, 3, int(ts.Date.Month()))
	assert.Equal(t, 5, ts.Date.Day())
	assert.False(t, ts.HasTime)
	assert.Nil(t, ts.Repeater)
}

func TestParseTimestamp_WithTimeAndWeeklyRepeater(t *testing.T) {
	ts, ok := parseTimestamp("<2026-03-05 Thu 09:30 +1w>")
	require.True(t, ok)
	assert.True(t, ts.HasTime)
	assert.Equal(t, 9, ts.Date.Hour())
	assert.Equal(t, 30, ts.Date.Minute())
	require.NotNil(t, ts.Repeater)
	assert.Equal(t, 1, ts.Repeater.Amount)
}

func TestParseTimestamp_NotATimestamp(t *testing.T) {
	_, ok := parseTimestamp("not a date")
	assert.False(t, ok)
}

func TestSplitActionKeyword_RecognisedKeyword(t *testing.T) {
	kw, priority, rest := splitActionKeyword("TODO [#B] write tests", []string{"TODO", "DONE"})
	assert.Equal(t, "TODO", kw)
	assert.Equal(t, "B", priority)
	assert.Equal(t, "write tests", rest)
}

func TestSplitActionKeyword_NoKeywordLeavesTitleUnchanged(t *testing.T) {
	kw, priority, rest := splitActionKeyword("Just a title", []string{"TODO", "DONE"})
	assert.Empty(t, kw)
	assert.Empty(t, priority)
	assert.Equal(t, "Just a title", rest)
}
