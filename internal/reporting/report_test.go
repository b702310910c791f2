package reporting

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
)

func sampleState() *run.State {
	t0 := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	exec := func(n stage.Name, ms int64) run.StageExecution {
		return run.StageExecution{
			Stage:      n,
			Status:     stage.StatusOK,
			StartedAt:  core.NewTimestamp(t0),
			FinishedAt: core.NewTimestamp(t0.Add(time.Duration(ms) * time.Millisecond)),
			DurationMs: ms,
			Outputs:    []core.ArtifactRef{{Kind: core.ArtifactTicket, Key: "t1"}},
		}
	}
	return &run.State{
		RunID:  "run-1",
		Mode:   run.ModeFull,
		Status: run.StatusCompleted,
		Stages: map[stage.Name]run.StageExecution{
			stage.Detection: exec(stage.Detection, 10),
			stage.Hints:     exec(stage.Hints, 20),
			stage.Review:    exec(stage.Review, 40),
		},
		Drafts: map[research.DraftID]run.DraftStatus{
			"d-b": {DraftID: "d-b", ConceptID: "c-b", State: run.DraftRejected, Version: 1, Rounds: 1, LastVerdict: research.VerdictReject},
			"d-a": {DraftID: "d-a", ConceptID: "c-a", State: run.DraftPassed, Version: 2, Rounds: 2, LastVerdict: research.VerdictPass},
		},
		Reviews: []run.ReviewRecord{
			{DraftID: "d-a", DraftVersion: 2, Iteration: 1, Verdict: research.VerdictPass, Confidence: 80},
			{DraftID: "d-b", DraftVersion: 1, Iteration: 0, Verdict: research.VerdictReject, Confidence: 20},
			{DraftID: "d-a", DraftVersion: 1, Iteration: 0, Verdict: research.VerdictRevise, Confidence: 60},
		},
		Exports: map[core.CandidateID]run.ExportDecision{
			"cand-a": {CandidateID: "cand-a", DraftID: "d-a", Version: 2, Eligible: true, Exported: true, Reason: "passed review | clean"},
		},
		StartedAt: core.NewTimestamp(t0),
		UpdatedAt: core.NewTimestamp(t0.Add(time.Second)),
	}
}

func sampleReport() Report {
	st := sampleState()
	return Build(st, run.Summary{RunID: st.RunID, Mode: st.Mode, Status: st.Status, Drafts: 2, Passed: 1, Rejected: 1, Exported: 1, StartedAt: st.StartedAt})
}

func TestDescribe(t *testing.T) {
	d := Describe([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, d.N)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 4.0, d.Max)
	assert.Equal(t, 2.5, d.Mean)
	assert.Equal(t, 2.0, d.Median)
	assert.Greater(t, d.StdDev, 0.0)

	single := Describe([]float64{7})
	assert.Equal(t, 7.0, single.Median)
	assert.Equal(t, 0.0, single.StdDev)

	assert.Equal(t, Distribution{}, Describe(nil))
}

func TestBuild(t *testing.T) {
	r := sampleReport()

	var stages []stage.Name
	for _, row := range r.Stages {
		stages = append(stages, row.Stage)
	}
	assert.Equal(t, []stage.Name{stage.Detection, stage.Hints, stage.Review}, stages)

	require.Len(t, r.Drafts, 2)
	assert.Equal(t, research.DraftID("d-a"), r.Drafts[0].DraftID)

	require.Len(t, r.Reviews, 3)
	assert.Equal(t, 0, r.Reviews[0].Iteration)
	assert.Equal(t, research.DraftID("d-a"), r.Reviews[0].DraftID)
	assert.Equal(t, 1, r.Reviews[2].Iteration)

	assert.Equal(t, 3, r.Confidence.N)
	assert.Equal(t, 60.0, r.Confidence.Median)
	assert.Equal(t, 40.0, r.StageDurations.Max)
}

func TestHTML(t *testing.T) {
	page := string(HTML(sampleReport()))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(page), "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Run run-1</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "cand-a")
	assert.Contains(t, page, "Review confidence")
}

func TestMarkdown_Failure(t *testing.T) {
	r := sampleReport()
	r.Failure = &run.Failure{Stage: stage.Concepts, Kind: run.FailureStage, Reason: "upstream | down"}
	md := string(Markdown(r))
	assert.Contains(t, md, "Failed at **concepts**")
	assert.Contains(t, md, `upstream \| down`)
}

func TestWriteFiles(t *testing.T) {
	files, err := WriteFiles(filepath.Join(t.TempDir(), "out"), sampleReport())
	require.NoError(t, err)
	assert.FileExists(t, files.HTML)

	f, err := excelize.OpenFile(files.Workbook)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Stages", "Drafts", "Reviews", "Exports", "Statistics"}, f.GetSheetList())

	drafts, err := f.GetRows("Drafts")
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, []string{"draft_id", "concept_id", "state", "version", "reviews", "last_verdict"}, drafts[0])
	assert.Equal(t, "d-a", drafts[1][0])
	assert.Equal(t, "passed", drafts[1][2])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", "run-1"}, summary[1])
}
