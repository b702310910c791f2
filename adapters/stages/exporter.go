package stages

import (
	"context"
	"fmt"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// StrategyExporter renders a passed draft as the strategy spec consumed by
// the execution system.
type StrategyExporter struct{}

// NewStrategyExporter creates the export transformation
func NewStrategyExporter() *StrategyExporter {
	return &StrategyExporter{}
}

func (e *StrategyExporter) Name() stage.Name { return stage.Export }

func (e *StrategyExporter) Run(_ context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
	if err != nil || len(drafts) != 1 {
		return stage.Failed("export needs exactly one draft (err=%v)", err)
	}
	concepts, err := core.DecodeAll[research.Concept](in.Get("concept"), core.ArtifactConcept)
	if err != nil || len(concepts) != 1 {
		return stage.Failed("export needs exactly one concept (err=%v)", err)
	}
	candidate := cfg.Param("candidate_id")
	if candidate == "" {
		return stage.Failed("missing candidate_id")
	}
	d, c := drafts[0], concepts[0]

	spec := research.StrategySpec{
		CandidateID: core.CandidateID(candidate),
		Name:        fmt.Sprintf("%s %s v%d", c.HypothesisType, d.Variant, d.Version),
		EntryFamily: d.EntryFamily,
		Body: map[string]any{
			"entry_conditions": d.EntryConditions,
			"trend_filters":    d.TrendFilters,
			"exit":             d.Exit,
			"risk":             d.Risk,
			"regime_bias":      c.RegimeBias,
			"mechanism":        c.MechanismTag,
		},
	}
	a, err := core.NewArtifact(core.ArtifactStrategy, candidate, spec)
	if err != nil {
		return stage.Failed("encode strategy %s: %v", candidate, err)
	}
	return stage.OK(a)
}
