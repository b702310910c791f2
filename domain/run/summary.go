package run

import (
	"hypoforge/domain/core"
	"hypoforge/domain/stage"
)

// Summary is the flattened outcome of one run, as shown by `runs` and the API.
type Summary struct {
	RunID      core.RunID     `json:"run_id"`
	Mode       Mode           `json:"mode"`
	Status     Status         `json:"status"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  core.Timestamp `json:"started_at"`
	FinishedAt core.Timestamp `json:"finished_at"`

	StagesCompleted int `json:"stages_completed"`
	LoopRounds      int `json:"loop_rounds"`
	Drafts          int `json:"drafts"`
	Passed          int `json:"passed"`
	Rejected        int `json:"rejected"`
	Downgraded      int `json:"downgraded"`
	Exported        int `json:"exported"`

	MeanConfidence   float64    `json:"mean_confidence"`
	MedianConfidence float64    `json:"median_confidence"`
	TotalStageMs     int64      `json:"total_stage_ms"`
	SlowestStage     stage.Name `json:"slowest_stage,omitempty"`

	FailedStage   stage.Name `json:"failed_stage,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}
