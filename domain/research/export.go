package research

import (
	"hypoforge/domain/core"
)

// StrategySpec is the export transformation's output handed to the execution system.
type StrategySpec struct {
	CandidateID core.CandidateID `json:"candidate_id"`
	Name        string           `json:"name"`
	EntryFamily EntryFamily      `json:"entry_family"`
	Body        map[string]any   `json:"body"`
}

// ReviewLink is one step of the review chain behind an export.
type ReviewLink struct {
	DraftVersion int     `json:"draft_version"`
	Iteration    int     `json:"iteration"`
	Verdict      Verdict `json:"verdict"`
	Confidence   float64 `json:"confidence"`
}

// Provenance records where an exported strategy came from.
type Provenance struct {
	CandidateID    core.CandidateID `json:"candidate_id"`
	RunID          core.RunID       `json:"run_id"`
	ConceptID      ConceptID        `json:"concept_id"`
	DraftID        DraftID          `json:"draft_id"`
	DraftVersion   int              `json:"draft_version"`
	ReviewChain    []ReviewLink     `json:"review_chain"`
	IterationCount int              `json:"iteration_count"`
	StrictMode     bool             `json:"strict_mode"`
	ExportedAt     core.Timestamp   `json:"exported_at"`
}

// CandidateFor returns the stable export candidate id for a draft lineage.
func CandidateFor(id DraftID) core.CandidateID {
	return core.CandidateID(id)
}
