package activation

import (
	"strings"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/nlp"
)

// positions maps a component id to the token indices where one of its matched examples
// starts. Components that cannot be located are absent from the map.
type positions map[string][]int

// findPositions locates the matched example texts of every detected component in the
// context tokens. Without tokens nothing can be located.
func findPositions(components []string, actx *models.AnalysisContext) positions {
	found := positions{}
	if len(actx.Tokens) == 0 {
		return found
	}
	wanted := models.NewIDSet(components...)
	for _, dm := range actx.DetectedMarkers {
		if !wanted.Has(dm.MarkerID) {
			continue
		}
		for _, example := range dm.ExamplesMatched {
			needle := nlp.Tokenize(example)
			if len(needle) == 0 {
				continue
			}
			for i := 0; i+len(needle) <= len(actx.Tokens); i++ {
				if tokensEqualFold(actx.Tokens[i:i+len(needle)], needle) {
					found[dm.MarkerID] = append(found[dm.MarkerID], i)
				}
			}
		}
	}
	return found
}

func tokensEqualFold(a, b []string) bool {
	for i := range b {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ordered returns the located ids following the order of ids.
func (p positions) ordered(ids []string) []string {
	out := make([]string, 0, len(p))
	for _, id := range ids {
		if len(p[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// flatten returns every position across components.
func (p positions) flatten() []int {
	var all []int
	for _, list := range p {
		all = append(all, list...)
	}
	return all
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
