package research

import (
	"fmt"
)

// Finding is one observation a reviewer attached to a verdict.
type Finding struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Review is the verdict on exactly one draft version in one loop round.
type Review struct {
	DraftID              DraftID   `json:"draft_id"`
	DraftVersion         int       `json:"draft_version"`
	Iteration            int       `json:"iteration"`
	Verdict              Verdict   `json:"verdict"`
	RevisionInstructions []string  `json:"revision_instructions,omitempty"`
	ConfidenceScore      float64   `json:"confidence_score"`
	Findings             []Finding `json:"findings,omitempty"`
}

// Key is the storage key of the review.
func (r Review) Key() string {
	return fmt.Sprintf("%s.r%d", VersionKey(r.DraftID, r.DraftVersion), r.Iteration)
}

// HasWarnings reports whether any finding is warn-level or worse.
func (r Review) HasWarnings() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityWarn || f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks the review contract.
func (r Review) Validate() error {
	if r.DraftID == "" {
		return fmt.Errorf("review draft_id cannot be empty")
	}
	if r.DraftVersion < 1 {
		return fmt.Errorf("review of %s: draft_version must be >= 1", r.DraftID)
	}
	if !r.Verdict.Valid() {
		return fmt.Errorf("review of %s: unknown verdict %q", r.DraftID, r.Verdict)
	}
	if r.Verdict == VerdictRevise && len(r.RevisionInstructions) == 0 {
		return fmt.Errorf("review of %s: REVISE requires revision_instructions", r.DraftID)
	}
	if r.Verdict != VerdictRevise && len(r.RevisionInstructions) > 0 {
		return fmt.Errorf("review of %s: revision_instructions only allowed with REVISE", r.DraftID)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 100 {
		return fmt.Errorf("review of %s: confidence_score %.2f outside 0..100", r.DraftID, r.ConfidenceScore)
	}
	return nil
}
