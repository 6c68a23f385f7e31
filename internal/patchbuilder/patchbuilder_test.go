package patchbuilder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/debounce"
)

func TestBuild_ClassifiesCreationsModificationsDeletionsAndRenames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("hello"), 0o644))

	batch := debounce.DebouncedBatch{
		{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Create},
		{Path: "b.md", OldestPath: "old.md", HasEvent: true, Event: debounce.Modify},
		{Path: "c.md", OldestPath: "c.md", HasEvent: true, Event: debounce.Delete},
	}

	patch, err := Build(context.Background(), dir, batch)
	require.NoError(t, err)

	require.Len(t, patch.Creations, 1)
	assert.Equal(t, "a.md", patch.Creations[0].Path)
	assert.Equal(t, "hello", patch.Creations[0].Contents)

	assert.Equal(t, [][2]string{{"old.md", "b.md"}}, patch.Renames)
	assert.Equal(t, []string{"c.md"}, patch.Deletions)
}

func TestBuild_IgnoresUntrackedExtensions(t *testing.T) {
	dir := t.TempDir()

	batch := debounce.DebouncedBatch{
		{Path: "readme.txt", OldestPath: "readme.txt", HasEvent: true, Event: debounce.Create},
	}

	patch, err := Build(context.Background(), dir, batch)
	require.NoError(t, err)
	assert.Empty(t, patch.Creations)
}

func TestBuild_MissingFileIsSkippedNotErrored(t *testing.T) {
	dir := t.TempDir()

	batch := debounce.DebouncedBatch{
		{Path: "gone.md", OldestPath: "gone.md", HasEvent: true, Event: debounce.Modify},
	}

	patch, err := Build(context.Background(), dir, batch)
	require.NoError(t, err)
	assert.Empty(t, patch.Modifications)
}
