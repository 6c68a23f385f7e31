package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/debounce"
	"github.com/tonimelisma/cartograph/internal/graphengine"
)

func TestDetectConflicts_UnrelatedWritePassesThrough(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "a", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, "a.md", writes[0].Path)
	assert.Equal(t, graphengine.ConflictNone, writes[0].Conflict.Kind)
}

func TestDetectConflicts_UnknownPatchErrors(t *testing.T) {
	d := NewDetector(nil)

	_, err := d.DetectConflicts(999, nil)
	require.ErrorIs(t, err, ErrUnknownPatch)
}

func TestDetectConflicts_DeletedPathDropsFilesystemWrite(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	batch := debounce.DebouncedBatch{{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Delete}}
	d.AddPatch(batch)

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "stale", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	assert.Empty(t, writes, "a path deleted since the patch started must not be rewritten")
}

func TestDetectConflicts_ModifiedPathFlagsSimpleConflictForOtherSource(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	batch := debounce.DebouncedBatch{{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Modify}}
	d.AddPatch(batch)

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "from elsewhere", Source: graphengine.WriteOther},
	})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, graphengine.ConflictSimple, writes[0].Conflict.Kind)
}

func TestDetectConflicts_ModifiedPathDropsFilesystemWrite(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	batch := debounce.DebouncedBatch{{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Modify}}
	d.AddPatch(batch)

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "stale corrective write", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	assert.Empty(t, writes, "a filesystem write racing a newer modification of the same path is dropped, not clobbered")
}

func TestDetectConflicts_RenameFollowsToNewPath(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	batch := debounce.DebouncedBatch{{Path: "b.md", OldestPath: "a.md"}}
	d.AddPatch(batch)

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "still a.md by this write's reckoning", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, "b.md", writes[0].Path, "a write targeting a path renamed since the patch started follows the rename")
}

func TestDetectConflicts_AmbiguousMultiRenameFlagsConflictMulti(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	// a.md renamed to b.md, then a fresh a.md renamed in turn to c.md: the
	// original a.md's identity could now be either b.md or c.md.
	batch := debounce.DebouncedBatch{
		{Path: "b.md", OldestPath: "a.md"},
		{Path: "c.md", OldestPath: "a.md"},
	}
	d.AddPatch(batch)

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "ambiguous", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, graphengine.ConflictMulti, writes[0].Conflict.Kind)
	assert.Equal(t, []string{"b.md", "c.md"}, writes[0].Conflict.Paths)
}

func TestDetectConflicts_OtherWriteTakesPrecedenceOverFilesystemWrite(t *testing.T) {
	d := NewDetector(nil)

	otherIdx := d.RegisterUpdate()
	fsIdx := d.RegisterUpdate()

	_, err := d.DetectConflicts(otherIdx, []graphengine.Write{
		{Path: "a.md", Contents: "from an out-of-band mutation", Source: graphengine.WriteOther},
	})
	require.NoError(t, err)

	writes, err := d.DetectConflicts(fsIdx, []graphengine.Write{
		{Path: "a.md", Contents: "stale reconciliation", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	assert.Empty(t, writes, "an out-of-band write to a path must suppress a later filesystem corrective write to it")
}

func TestAddPatch_AccumulatesAcrossMultipleBatchesForOneOpenPatch(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	d.AddPatch(debounce.DebouncedBatch{{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Create}})
	d.AddPatch(debounce.DebouncedBatch{{Path: "a.md", OldestPath: "a.md", HasEvent: true, Event: debounce.Delete}})

	writes, err := d.DetectConflicts(patchIdx, []graphengine.Write{
		{Path: "a.md", Contents: "stale", Source: graphengine.WriteFilesystem},
	})
	require.NoError(t, err)
	assert.Empty(t, writes, "a create immediately followed by a delete collapses to delete, still dropping the stale write")
}

func TestDetectConflicts_ClosesPatchEntryOnceCommitted(t *testing.T) {
	d := NewDetector(nil)

	patchIdx := d.RegisterUpdate()

	// Committing the patch via AddPatch gives it its own table entry with a
	// fixed reference count, distinct from the ever-open "next patch" slot.
	d.AddPatch(nil)

	_, err := d.DetectConflicts(patchIdx, nil)
	require.NoError(t, err)

	_, err = d.DetectConflicts(patchIdx, nil)
	assert.ErrorIs(t, err, ErrUnknownPatch, "a committed patch's conflicts are only ever detected once its reference count reaches zero")
}
