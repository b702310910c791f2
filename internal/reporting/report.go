// Package reporting renders a finished run as a workbook and an HTML page.
package reporting

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hypoforge/domain/run"
	"hypoforge/domain/stage"
)

// Distribution describes a sample of values.
type Distribution struct {
	N      int     `json:"n"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Describe computes the distribution of xs. An empty sample yields the zero value.
func Describe(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	d := Distribution{
		N:      len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
	d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(d.StdDev) {
		d.StdDev = 0
	}
	return d
}

// StageRow is one stage line of the report.
type StageRow struct {
	Stage      stage.Name   `json:"stage"`
	Status     stage.Status `json:"status"`
	DurationMs int64        `json:"duration_ms"`
	Outputs    int          `json:"outputs"`
	Imported   bool         `json:"imported,omitempty"`
}

// Report is the rendered view of one run.
type Report struct {
	Summary        run.Summary          `json:"summary"`
	Failure        *run.Failure         `json:"failure,omitempty"`
	Stages         []StageRow           `json:"stages"`
	Drafts         []run.DraftStatus    `json:"drafts"`
	Reviews        []run.ReviewRecord   `json:"reviews"`
	Exports        []run.ExportDecision `json:"exports"`
	Confidence     Distribution         `json:"confidence"`
	StageDurations Distribution         `json:"stage_durations"`
}

// Build assembles the report of a run from its replayed state and summary.
func Build(state *run.State, summary run.Summary) Report {
	r := Report{
		Summary: summary,
		Failure: state.Failure,
		Drafts:  state.DraftList(),
		Reviews: append([]run.ReviewRecord(nil), state.Reviews...),
	}

	var durations []float64
	for _, n := range stage.Order() {
		exec, ok := state.Stages[n]
		if !ok {
			continue
		}
		r.Stages = append(r.Stages, StageRow{
			Stage:      n,
			Status:     exec.Status,
			DurationMs: exec.DurationMs,
			Outputs:    len(exec.Outputs),
			Imported:   exec.Imported,
		})
		durations = append(durations, float64(exec.DurationMs))
	}
	r.StageDurations = Describe(durations)

	sort.SliceStable(r.Reviews, func(i, j int) bool {
		if r.Reviews[i].Iteration != r.Reviews[j].Iteration {
			return r.Reviews[i].Iteration < r.Reviews[j].Iteration
		}
		return r.Reviews[i].DraftID < r.Reviews[j].DraftID
	})
	confidence := make([]float64, 0, len(r.Reviews))
	for _, rev := range r.Reviews {
		confidence = append(confidence, rev.Confidence)
	}
	r.Confidence = Describe(confidence)

	for _, d := range state.Exports {
		r.Exports = append(r.Exports, d)
	}
	sort.Slice(r.Exports, func(i, j int) bool { return r.Exports[i].CandidateID < r.Exports[j].CandidateID })
	return r
}
