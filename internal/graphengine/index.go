package graphengine

import "github.com/tonimelisma/cartograph/internal/docmodel"

// IndexDef names one incrementally maintained subset of the live node set.
// Predicate receives a node's scrubbed structure plus its effective
// (self-and-inherited) tag set and reports membership.
type IndexDef struct {
	Name      string
	Predicate func(n *docmodel.Node, effectiveTags []string) bool
}

// TagIndex builds the one predicate shape config exposes declaratively:
// every live node carrying tag (by inheritance or directly) is a member.
func TagIndex(name, tag string) IndexDef {
	return IndexDef{
		Name: name,
		Predicate: func(_ *docmodel.Node, effectiveTags []string) bool {
			for _, t := range effectiveTags {
				if t == tag {
					return true
				}
			}

			return false
		},
	}
}
