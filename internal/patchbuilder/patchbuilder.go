// Package patchbuilder turns a debounce.DebouncedBatch into a Patch: the
// set of renames, deletions, and (path, file-contents-or-error) pairs the
// graph engine needs to reconcile, reading file contents concurrently via
// golang.org/x/sync/errgroup.
package patchbuilder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cartograph/internal/debounce"
)

var trackedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".org":      true,
}

// PathPatch is one file's read result: either its current contents or the
// I/O error encountered reading it.
type PathPatch struct {
	Path     string
	Contents string
	Err      error
}

// Patch is the full set of filesystem-originated changes for one
// reconciliation pass.
type Patch struct {
	Renames       [][2]string
	Deletions     []string
	Creations     []PathPatch
	Modifications []PathPatch
}

// Build reads every path in batch concurrently, filtering to tracked
// document extensions and to paths that presently exist, and classifies
// each into renames/deletions/creations/modifications.
func Build(ctx context.Context, watchRoot string, batch debounce.DebouncedBatch) (Patch, error) {
	var patch Patch

	type job struct {
		path string
		kind string // "create" or "modify"
	}

	var jobs []job

	for _, e := range batch {
		if e.OldestPath != e.Path {
			patch.Renames = append(patch.Renames, [2]string{e.OldestPath, e.Path})
		}

		if !e.HasEvent {
			continue
		}

		if !isTracked(e.Path) {
			continue
		}

		switch e.Event {
		case debounce.Delete:
			patch.Deletions = append(patch.Deletions, e.Path)
		case debounce.Create:
			jobs = append(jobs, job{path: e.Path, kind: "create"})
		case debounce.Modify:
			jobs = append(jobs, job{path: e.Path, kind: "modify"})
		}
	}

	results := make([]PathPatch, len(jobs))

	g, gctx := errgroup.WithContext(ctx)

	for i, j := range jobs {
		i, j := i, j

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			full := filepath.Join(watchRoot, j.path)

			data, err := os.ReadFile(full)
			if err != nil {
				results[i] = PathPatch{Path: j.path, Err: err}

				return nil
			}

			results[i] = PathPatch{Path: j.path, Contents: string(data)}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Patch{}, err
	}

	for i, j := range jobs {
		pp := results[i]

		if pp.Err != nil && os.IsNotExist(pp.Err) {
			continue
		}

		switch j.kind {
		case "create":
			patch.Creations = append(patch.Creations, pp)
		case "modify":
			patch.Modifications = append(patch.Modifications, pp)
		}
	}

	return patch, nil
}

func isTracked(path string) bool {
	return trackedExtensions[strings.ToLower(filepath.Ext(path))]
}
