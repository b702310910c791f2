package research

import (
	"fmt"
	"sort"

	"hypoforge/domain/core"
)

// ConceptID identifies a concept by its grouping key.
type ConceptID string

// ConceptIDFor derives the concept identifier from its grouping key. It is a
// pure function: identical keys always yield identical ids.
func ConceptIDFor(h HypothesisType, m MechanismTag, r RegimeBias) ConceptID {
	sum := core.HashParts(string(h), string(m), string(r))
	return ConceptID(fmt.Sprintf("concept-%s-%s", h, sum.Short(12)))
}

// Concept groups tickets and hints under a shared hypothesis.
type Concept struct {
	ID                     ConceptID      `json:"id"`
	HypothesisType         HypothesisType `json:"hypothesis_type"`
	MechanismTag           MechanismTag   `json:"mechanism_tag"`
	RegimeBias             RegimeBias     `json:"regime_bias"`
	RecommendedEntryFamily EntryFamily    `json:"recommended_entry_family"`
	ExportReadyV1          bool           `json:"export_ready_v1"`
	// Conditions are the normalized entry conditions used for overlap scoring.
	Conditions []string `json:"conditions,omitempty"`
	TicketIDs  []string `json:"ticket_ids,omitempty"`
	HintKeys   []string `json:"hint_keys,omitempty"`
	// CreatedOrder is the synthesis order, used to break dedup ties.
	CreatedOrder int         `json:"created_order"`
	MergedFrom   []ConceptID `json:"merged_from,omitempty"`
}

// Validate checks the concept contract, including that the id matches the key.
func (c Concept) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("concept id cannot be empty")
	}
	if !c.HypothesisType.Valid() {
		return fmt.Errorf("concept %s: unknown hypothesis_type %q", c.ID, c.HypothesisType)
	}
	if !c.MechanismTag.Valid() || !c.RegimeBias.Valid() {
		return fmt.Errorf("concept %s: invalid grouping key (%s, %s)", c.ID, c.MechanismTag, c.RegimeBias)
	}
	if want := ConceptIDFor(c.HypothesisType, c.MechanismTag, c.RegimeBias); c.ID != want {
		return fmt.Errorf("concept %s: id does not match grouping key (want %s)", c.ID, want)
	}
	if !c.RecommendedEntryFamily.Valid() {
		return fmt.Errorf("concept %s: unknown recommended_entry_family %q", c.ID, c.RecommendedEntryFamily)
	}
	return nil
}

// ConditionSet returns the distinct conditions in sorted order.
func (c Concept) ConditionSet() []string {
	seen := make(map[string]bool, len(c.Conditions))
	out := make([]string, 0, len(c.Conditions))
	for _, cond := range c.Conditions {
		if cond == "" || seen[cond] {
			continue
		}
		seen[cond] = true
		out = append(out, cond)
	}
	sort.Strings(out)
	return out
}
