package docmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "markdown", Markdown.String())
	assert.Equal(t, "org", Org.String())
}
