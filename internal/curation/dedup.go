package curation

import (
	"sort"

	"hypoforge/domain/research"
)

// DefaultThreshold is the condition overlap above which concepts merge.
const DefaultThreshold = 0.75

// Deduplicator collapses near-duplicate concepts before drafting.
type Deduplicator struct {
	Enabled   bool
	Threshold float64
}

// Overlap is the Jaccard similarity of two concepts' condition sets. Two
// concepts without conditions do not overlap.
func Overlap(a, b research.Concept) float64 {
	setA := a.ConditionSet()
	setB := b.ConditionSet()
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inA := make(map[string]bool, len(setA))
	for _, c := range setA {
		inA[c] = true
	}
	intersection := 0
	for _, c := range setB {
		if inA[c] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Apply returns the surviving concepts in creation order and a report of the
// merges. Concepts are visited in creation order; each is folded into the
// most similar earlier survivor of the same hypothesis type whose overlap
// exceeds the threshold. The result depends only on the input set.
func (d Deduplicator) Apply(concepts []research.Concept) ([]research.Concept, research.DedupReport) {
	ordered := append([]research.Concept(nil), concepts...)
	sort.SliceStable(ordered, func(i, j int) bool { return earlier(ordered[i], ordered[j]) })

	report := research.DedupReport{Enabled: d.Enabled, Threshold: d.Threshold}
	for _, c := range ordered {
		report.InputIDs = append(report.InputIDs, c.ID)
	}
	if !d.Enabled {
		report.Survivors = append([]research.ConceptID(nil), report.InputIDs...)
		return append([]research.Concept(nil), concepts...), report
	}

	var survivors []research.Concept
	for _, c := range ordered {
		best, bestScore := -1, 0.0
		for i, s := range survivors {
			if s.HypothesisType != c.HypothesisType {
				continue
			}
			if score := Overlap(s, c); score > d.Threshold && score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			survivors = append(survivors, c)
			continue
		}
		merged, absorbed := merge(survivors[best], c)
		survivors[best] = merged
		report.Merges = append(report.Merges, research.Merge{
			Survivor: merged.ID,
			Absorbed: absorbed,
			Overlap:  bestScore,
		})
	}

	sort.SliceStable(survivors, func(i, j int) bool { return earlier(survivors[i], survivors[j]) })
	for _, s := range survivors {
		report.Survivors = append(report.Survivors, s.ID)
	}
	return survivors, report
}

// merge builds a new concept from a and b. The export-ready one survives;
// otherwise the earlier one does. Inputs are not modified.
func merge(a, b research.Concept) (research.Concept, research.ConceptID) {
	winner, loser := a, b
	if b.ExportReadyV1 && !a.ExportReadyV1 {
		winner, loser = b, a
	} else if a.ExportReadyV1 == b.ExportReadyV1 && earlier(b, a) {
		winner, loser = b, a
	}

	out := winner
	out.Conditions = append([]string(nil), winner.Conditions...)
	out.TicketIDs = union(winner.TicketIDs, loser.TicketIDs)
	out.HintKeys = union(winner.HintKeys, loser.HintKeys)
	out.MergedFrom = append(append([]research.ConceptID(nil), winner.MergedFrom...), loser.ID)
	out.MergedFrom = append(out.MergedFrom, loser.MergedFrom...)
	sort.Slice(out.MergedFrom, func(i, j int) bool { return out.MergedFrom[i] < out.MergedFrom[j] })
	if out.CreatedOrder > loser.CreatedOrder {
		out.CreatedOrder = loser.CreatedOrder
	}
	return out, loser.ID
}

func earlier(a, b research.Concept) bool {
	if a.CreatedOrder != b.CreatedOrder {
		return a.CreatedOrder < b.CreatedOrder
	}
	return a.ID < b.ID
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
