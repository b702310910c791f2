package run

import (
	"time"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// EventType names an entry in the run manifest log.
type EventType string

const (
	EventRunStarted         EventType = "run_started"
	EventResumeStarted      EventType = "resume_started"
	EventStageCompleted     EventType = "stage_completed"
	EventStageFailed        EventType = "stage_failed"
	EventReviewRecorded     EventType = "review_recorded"
	EventIterationCompleted EventType = "iteration_completed"
	EventExportDecision     EventType = "export_decision"
	EventRunCompleted       EventType = "run_completed"
	EventRunFailed          EventType = "run_failed"
)

// Event is one append-only manifest entry. Exactly one payload pointer is set,
// matching Type.
type Event struct {
	Seq  int64          `json:"seq"`
	Type EventType      `json:"type"`
	At   core.Timestamp `json:"at"`

	Run       *RunInfo         `json:"run,omitempty"`
	Resume    *ResumeInfo      `json:"resume,omitempty"`
	Execution *StageExecution  `json:"execution,omitempty"`
	Review    *ReviewRecord    `json:"review,omitempty"`
	Iteration *IterationRecord `json:"iteration,omitempty"`
	Export    *ExportDecision  `json:"export,omitempty"`
	Failure   *Failure         `json:"failure,omitempty"`
}

// RunInfo opens a run.
type RunInfo struct {
	RunID       core.RunID     `json:"run_id"`
	Mode        Mode           `json:"mode"`
	DryRun      bool           `json:"dry_run,omitempty"`
	Plan        []stage.Name   `json:"plan"`
	Ceiling     int            `json:"ceiling"`
	Fingerprint RunFingerprint `json:"fingerprint"`
}

// ResumeInfo re-opens a run at a stage. Every stage record from From onward is
// invalidated. LoopRounds is the round count the feedback loop continues from.
type ResumeInfo struct {
	From            stage.Name     `json:"from"`
	Mode            Mode           `json:"mode"`
	DryRun          bool           `json:"dry_run,omitempty"`
	Ceiling         int            `json:"ceiling"`
	LoopRounds      int            `json:"loop_rounds"`
	KeepDraftStates bool           `json:"keep_draft_states,omitempty"`
	Fingerprint     RunFingerprint `json:"fingerprint"`
}

// StageExecution records one stage invocation.
type StageExecution struct {
	Stage      stage.Name         `json:"stage"`
	Status     stage.Status       `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	StartedAt  core.Timestamp     `json:"started_at"`
	FinishedAt core.Timestamp     `json:"finished_at"`
	DurationMs int64              `json:"duration_ms"`
	Inputs     []core.ArtifactRef `json:"inputs,omitempty"`
	Outputs    []core.ArtifactRef `json:"outputs,omitempty"`
	// Imported marks output supplied from outside instead of by the stage.
	Imported bool `json:"imported,omitempty"`
	// Loop is set on the review stage's completion.
	Loop *LoopSummary `json:"loop,omitempty"`
}

// Duration returns the wall-clock duration of the execution.
func (e StageExecution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// LoopSummary closes the feedback loop.
type LoopSummary struct {
	Rounds int           `json:"rounds"`
	Drafts []DraftStatus `json:"drafts"`
}

// IterationRecord is flushed after every completed loop round.
type IterationRecord struct {
	Iteration int                `json:"iteration"`
	Drafts    []DraftStatus      `json:"drafts"`
	Outputs   []core.ArtifactRef `json:"outputs,omitempty"`
}

// ExportDecision records the gate's verdict for one terminal draft.
type ExportDecision struct {
	CandidateID core.CandidateID   `json:"candidate_id"`
	DraftID     research.DraftID   `json:"draft_id"`
	Version     int                `json:"version"`
	Eligible    bool               `json:"eligible"`
	Reason      string             `json:"reason"`
	DryRun      bool               `json:"dry_run,omitempty"`
	Exported    bool               `json:"exported"`
	Outputs     []core.ArtifactRef `json:"outputs,omitempty"`
}

// Failure names the stage and reason that halted a run.
type Failure struct {
	Stage  stage.Name  `json:"stage"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}
