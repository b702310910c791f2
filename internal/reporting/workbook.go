package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook saves the report as an xlsx workbook with one sheet per
// section.
func WriteWorkbook(path string, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	s := r.Summary
	summary := [][]any{
		{"run_id", string(s.RunID)},
		{"mode", string(s.Mode)},
		{"status", string(s.Status)},
		{"dry_run", s.DryRun},
		{"started_at", s.StartedAt.String()},
		{"finished_at", finishedAt(r)},
		{"stages_completed", s.StagesCompleted},
		{"loop_rounds", s.LoopRounds},
		{"drafts", s.Drafts},
		{"passed", s.Passed},
		{"rejected", s.Rejected},
		{"downgraded", s.Downgraded},
		{"exported", s.Exported},
		{"mean_confidence", s.MeanConfidence},
		{"median_confidence", s.MedianConfidence},
		{"total_stage_ms", s.TotalStageMs},
		{"slowest_stage", string(s.SlowestStage)},
		{"failed_stage", string(s.FailedStage)},
		{"failure_reason", s.FailureReason},
	}
	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return err
	}
	if err := writeSheet(f, "Summary", []string{"field", "value"}, summary); err != nil {
		return err
	}

	var stages [][]any
	for _, row := range r.Stages {
		stages = append(stages, []any{string(row.Stage), string(row.Status), row.DurationMs, row.Outputs, row.Imported})
	}
	if err := writeSheet(f, "Stages", []string{"stage", "status", "duration_ms", "outputs", "imported"}, stages); err != nil {
		return err
	}

	var drafts [][]any
	for _, d := range r.Drafts {
		drafts = append(drafts, []any{string(d.DraftID), string(d.ConceptID), string(d.State), d.Version, d.Rounds, string(d.LastVerdict)})
	}
	if err := writeSheet(f, "Drafts", []string{"draft_id", "concept_id", "state", "version", "reviews", "last_verdict"}, drafts); err != nil {
		return err
	}

	var reviews [][]any
	for _, rev := range r.Reviews {
		reviews = append(reviews, []any{rev.Iteration, string(rev.DraftID), rev.DraftVersion, string(rev.Verdict), rev.Confidence, rev.Warned})
	}
	if err := writeSheet(f, "Reviews", []string{"iteration", "draft_id", "version", "verdict", "confidence", "warned"}, reviews); err != nil {
		return err
	}

	var exports [][]any
	for _, e := range r.Exports {
		exports = append(exports, []any{string(e.CandidateID), string(e.DraftID), e.Version, e.Eligible, e.Exported, e.Reason})
	}
	if err := writeSheet(f, "Exports", []string{"candidate_id", "draft_id", "version", "eligible", "exported", "reason"}, exports); err != nil {
		return err
	}

	var dists [][]any
	for _, d := range []struct {
		label string
		dist  Distribution
	}{{"review_confidence", r.Confidence}, {"stage_duration_ms", r.StageDurations}} {
		x := d.dist
		dists = append(dists, []any{d.label, x.N, x.Min, x.P25, x.Median, x.P75, x.Max, x.Mean, x.StdDev})
	}
	if err := writeSheet(f, "Statistics", []string{"sample", "n", "min", "p25", "median", "p75", "max", "mean", "std_dev"}, dists); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func finishedAt(r Report) string {
	if r.Summary.FinishedAt.IsZero() {
		return ""
	}
	return r.Summary.FinishedAt.String()
}
