package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultLinkTypeAutoCorrects(t *testing.T) {
	cfg := &Config{LinkTypes: []string{"idea", "goal"}}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "idea", cfg.DefaultLinkType)
}

func TestValidate_EmptyLinkTypesWithDefaultSetIsError(t *testing.T) {
	cfg := &Config{DefaultLinkType: "link"}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_DefaultNotMemberIsError(t *testing.T) {
	cfg := &Config{LinkTypes: []string{"idea"}, DefaultLinkType: "goal"}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_DebounceMillisConverted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceMillis = 500
	cfg.DebounceDuration = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration)
}

func TestHasTag_EmptyVocabularyAllowsAnything(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.HasTag("anything"))
}

func TestHasTag_RestrictedVocabulary(t *testing.T) {
	cfg := &Config{Tags: []string{"work", "home"}}
	assert.True(t, cfg.HasTag("work"))
	assert.False(t, cfg.HasTag("other"))
}

func TestIsActionKeyword(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsActionKeyword("TODO"))
	assert.False(t, cfg.IsActionKeyword("MAYBE"))
}
