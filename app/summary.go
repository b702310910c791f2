package app

import (
	"github.com/montanaflynn/stats"

	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
)

// Summarize flattens a run state into its index row.
func Summarize(state *run.State) run.Summary {
	s := run.Summary{
		RunID:      state.RunID,
		Mode:       state.Mode,
		Status:     state.Status,
		DryRun:     state.DryRun,
		StartedAt:  state.StartedAt,
		LoopRounds: state.LoopRounds,
		Drafts:     len(state.Drafts),
		Exported:   len(state.ExportSet()),
	}
	if state.Status != run.StatusRunning {
		s.FinishedAt = state.UpdatedAt
	}
	if state.Failure != nil {
		s.FailedStage = state.Failure.Stage
		s.FailureReason = state.Failure.Reason
	}
	if state.DryRun {
		s.Exported = 0
	}

	for _, d := range state.Drafts {
		switch d.State {
		case run.DraftPassed:
			s.Passed++
		case run.DraftRejected:
			s.Rejected++
		case run.DraftDowngraded:
			s.Downgraded++
		}
	}

	var slowest int64 = -1
	for _, name := range stage.Order() {
		exec, ok := state.Stages[name]
		if !ok || exec.Status != stage.StatusOK {
			continue
		}
		s.StagesCompleted++
		s.TotalStageMs += exec.DurationMs
		if exec.DurationMs > slowest {
			slowest = exec.DurationMs
			s.SlowestStage = name
		}
	}

	// Confidence of each lineage's final review.
	final := make(map[research.DraftID]float64)
	for _, r := range state.Reviews {
		final[r.DraftID] = r.Confidence
	}
	if len(final) > 0 {
		data := make(stats.Float64Data, 0, len(final))
		for _, c := range final {
			data = append(data, c)
		}
		if mean, err := stats.Mean(data); err == nil {
			s.MeanConfidence, _ = stats.Round(mean, 4)
		}
		if median, err := stats.Median(data); err == nil {
			s.MedianConfidence, _ = stats.Round(median, 4)
		}
	}
	return s
}
