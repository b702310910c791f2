package run

import (
	"fmt"
	"strings"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
)

// Mode selects where a run starts and which stages it executes.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeFromTickets Mode = "from-tickets"
	ModeResume      Mode = "resume"
	ModeReviewOnly  Mode = "review-only"
)

// ParseMode parses a run mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeFull, ModeFromTickets, ModeResume, ModeReviewOnly:
		return m, nil
	}
	return "", fmt.Errorf("unknown run mode %q", s)
}

// Status is the coarse state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DraftState is a position in the review/revision state machine.
type DraftState string

const (
	DraftDrafted     DraftState = "drafted"
	DraftUnderReview DraftState = "under_review"
	DraftRevised     DraftState = "revised"
	DraftPassed      DraftState = "passed"
	DraftRejected    DraftState = "rejected"
	DraftDowngraded  DraftState = "downgraded"
)

// Terminal reports whether the state ends the draft's loop.
func (s DraftState) Terminal() bool {
	return s == DraftPassed || s == DraftRejected || s == DraftDowngraded
}

// FailureKind distinguishes the run-halting error classes.
type FailureKind string

const (
	FailureContract FailureKind = "contract_violation"
	FailureStage    FailureKind = "stage_failed"
)

// RunFingerprint identifies the determinism-relevant parameters of a run
type RunFingerprint struct {
	PlanHash    core.Hash `json:"plan_hash"`
	ConfigHash  core.Hash `json:"config_hash"`
	CodeVersion string    `json:"code_version"`
	Fingerprint core.Hash `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(planHash, configHash core.Hash, codeVersion string) RunFingerprint {
	return RunFingerprint{
		PlanHash:    planHash,
		ConfigHash:  configHash,
		CodeVersion: codeVersion,
		Fingerprint: core.HashParts("plan", planHash.String(), "config", configHash.String(), "code", codeVersion),
	}
}

// DraftStatus is the loop's view of one draft lineage.
type DraftStatus struct {
	DraftID   research.DraftID   `json:"draft_id"`
	ConceptID research.ConceptID `json:"concept_id"`
	State     DraftState         `json:"state"`
	Version   int                `json:"version"`
	// Ref points at the stored artifact of the current version.
	Ref         core.ArtifactRef `json:"ref"`
	LastVerdict research.Verdict `json:"last_verdict,omitempty"`
	// Rounds counts the reviews this lineage has received.
	Rounds int `json:"rounds"`
}

// ReviewRecord is one review appended by a review worker.
type ReviewRecord struct {
	DraftID      research.DraftID `json:"draft_id"`
	DraftVersion int              `json:"draft_version"`
	Iteration    int              `json:"iteration"`
	Verdict      research.Verdict `json:"verdict"`
	Confidence   float64          `json:"confidence"`
	Warned       bool             `json:"warned,omitempty"`
	Ref          core.ArtifactRef `json:"ref"`
}
