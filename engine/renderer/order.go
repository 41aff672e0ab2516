package renderer

import (
	"cmp"
	gomath "math"

	"golang.org/x/exp/slices"
)

// VisibilityOrder returns the pipeline indices sorted farthest first by the
// squared camera distance of their art object. Pipelines without an object
// sort as infinitely far. Equal distances keep registration order.
func VisibilityOrder(pipelines []*Pipeline, objects []ObjectState) []int {
	keys := make([]float64, len(pipelines))
	order := make([]int, len(pipelines))
	for i, p := range pipelines {
		order[i] = i
		keys[i] = gomath.Inf(1)
		if a := p.Art(); a >= 0 && a < len(objects) {
			keys[i] = float64(objects[a].Data.DistToCameraSqr)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(keys[b], keys[a])
	})
	return order
}

// sameOrder reports whether two permutations are identical.
func sameOrder(a, b []int) bool {
	return slices.Equal(a, b)
}
