package docfmt

import (
	"fmt"

	"github.com/tonimelisma/cartograph/internal/docmodel"
)

// validTag reports whether tag is acceptable given the configured
// vocabulary. An empty vocabulary disables validation entirely.
func validTag(tag string, validTags []string) bool {
	if len(validTags) == 0 {
		return true
	}

	for _, t := range validTags {
		if t == tag {
			return true
		}
	}

	return false
}

// checkTags validates every tag against validTags, returning the first
// unknown tag as an error.
func checkTags(tags []string, validTags []string) error {
	for _, t := range tags {
		if !validTag(t, validTags) {
			return fmt.Errorf("unknown tag %q", t)
		}
	}

	return nil
}

// checkDuplicateIDs walks root and returns ErrDuplicateID if any id
// appears more than once.
func checkDuplicateIDs(root *docmodel.Node) error {
	seen := make(map[docmodel.Identifier]struct{})

	var dupErr error

	root.Walk(func(n *docmodel.Node) {
		if dupErr != nil {
			return
		}

		if _, ok := seen[n.ID]; ok {
			dupErr = ErrDuplicateID

			return
		}

		seen[n.ID] = struct{}{}
	})

	return dupErr
}
