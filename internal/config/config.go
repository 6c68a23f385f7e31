// Package config loads and validates the settings that govern a cartograph
// instance: the watched directory, the recognised link/tag vocabularies,
// debounce timing, and the query server's bind address.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyLinkType is returned when LinkTypes is empty but DefaultLinkType
// was explicitly set, or when the configured DefaultLinkType is not a
// member of LinkTypes.
var ErrEmptyLinkType = errors.New("default link type must be a member of link types")

// Config holds the settings read from a cartograph.toml (or equivalent)
// file at the watch root. Zero value is not valid; use DefaultConfig.
type Config struct {
	WatchDir string `toml:"-"` // set from the CLI, not the file

	ActionKeywords   []string      `toml:"action_keywords"`
	LinkTypes        []string      `toml:"link_types"`
	DefaultLinkType  string        `toml:"default_link_type"`
	Tags             []string      `toml:"tags"`
	DebounceDuration time.Duration `toml:"-"`
	DebounceMillis   int64         `toml:"debounce_duration_ms"`
	ExcludePaths     []string      `toml:"exclude_paths"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	LogDirectory string `toml:"log_directory"`
	LogLevel     string `toml:"log_level"`

	// Indices declares named, incrementally maintained subsets of the live
	// node set. The underlying engine predicate is a function of raw Node
	// structure; configuration exposes the one shape that's useful to
	// declare in a file without an embedded expression language — "nodes
	// carrying a given tag" — leaving room for code-defined predicates
	// registered directly against the engine for anything richer.
	Indices []IndexConfig `toml:"indices"`
}

// IndexConfig names one tag-based index: every live node carrying Tag
// (including by inheritance) is a member.
type IndexConfig struct {
	Name string `toml:"name"`
	Tag  string `toml:"tag"`
}

// DefaultConfig returns the configuration applied when no config file is
// found, or to fill in fields a partial file omits.
func DefaultConfig() *Config {
	return &Config{
		ActionKeywords:   []string{"TODO", "DONE"},
		LinkTypes:        []string{"link"},
		DefaultLinkType:  "link",
		Tags:             nil,
		DebounceDuration: 300 * time.Millisecond,
		DebounceMillis:   300,
		ExcludePaths:     nil,
		Host:             "127.0.0.1",
		Port:             8787,
		LogLevel:         "info",
	}
}

// Validate checks the invariants configuration must hold and applies one
// auto-correction: when LinkTypes is non-empty and DefaultLinkType is
// unset, the first configured link type becomes the default.
func (c *Config) Validate() error {
	if len(c.LinkTypes) > 0 && c.DefaultLinkType == "" {
		c.DefaultLinkType = c.LinkTypes[0]
	}

	if c.DefaultLinkType == "" {
		return fmt.Errorf("validating config: %w", ErrEmptyLinkType)
	}

	found := false

	for _, t := range c.LinkTypes {
		if t == c.DefaultLinkType {
			found = true
			break
		}
	}

	if !found {
		return fmt.Errorf("validating config: default link type %q: %w", c.DefaultLinkType, ErrEmptyLinkType)
	}

	if c.DebounceMillis > 0 {
		c.DebounceDuration = time.Duration(c.DebounceMillis) * time.Millisecond
	} else if c.DebounceDuration == 0 {
		c.DebounceDuration = 300 * time.Millisecond
	}

	if c.Port == 0 {
		c.Port = 8787
	}

	if c.Host == "" {
		c.Host = "127.0.0.1"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

// HasTag reports whether tag is in the configured tag vocabulary. An
// empty Tags list disables validation entirely (every tag is allowed).
func (c *Config) HasTag(tag string) bool {
	if len(c.Tags) == 0 {
		return true
	}

	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// HasLinkType reports whether ty is a recognised link type.
func (c *Config) HasLinkType(ty string) bool {
	for _, t := range c.LinkTypes {
		if t == ty {
			return true
		}
	}

	return false
}

// IsActionKeyword reports whether kw is one of the configured action
// keywords (e.g. "TODO", "DONE").
func (c *Config) IsActionKeyword(kw string) bool {
	for _, k := range c.ActionKeywords {
		if k == kw {
			return true
		}
	}

	return false
}
