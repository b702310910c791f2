package stages

import (
	"context"
	"strings"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// Revision instructions the checklist reviewer issues and the drafter answers.
const (
	InstructionTrendFilter = "add a trend filter"
	InstructionTightenStop = "tighten stop loss to 5%"
)

const (
	defaultTrendFilter = "price_above_ma50"
	maxStopLossPct     = 5.0
)

// Drafter turns concepts into strategy drafts ("generate" mode) and answers
// review instructions with a new draft version ("revise" mode).
type Drafter struct{}

// NewDrafter creates the drafts stage
func NewDrafter() *Drafter {
	return &Drafter{}
}

func (d *Drafter) Name() stage.Name { return stage.Drafts }

func (d *Drafter) Run(ctx context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	if cfg.Mode == "revise" {
		return d.revise(in)
	}
	concepts, err := core.DecodeAll[research.Concept](in.Get("concepts"), core.ArtifactConcept)
	if err != nil {
		return stage.Failed("decode concepts: %v", err)
	}
	var out []core.Artifact
	for _, c := range concepts {
		if err := ctx.Err(); err != nil {
			return stage.Failed("%v", err)
		}
		for _, draft := range draftsFor(c) {
			a, err := core.NewArtifact(core.ArtifactDraft, draft.VersionKey(), draft)
			if err != nil {
				return stage.Failed("encode draft %s: %v", draft.ID, err)
			}
			out = append(out, a)
		}
	}
	return stage.OK(out...)
}

func draftsFor(c research.Concept) []research.Draft {
	var entry []string
	for _, cond := range c.ConditionSet() {
		if !strings.Contains(cond, ":") {
			entry = append(entry, cond)
		}
	}
	if len(entry) == 0 {
		entry = []string{"observation_window"}
	}
	base := research.Draft{
		Version:         1,
		ConceptID:       c.ID,
		EntryFamily:     c.RecommendedEntryFamily,
		ExportReadyV1:   c.ExportReadyV1,
		EntryConditions: entry,
	}

	primary := base
	primary.ID = research.DraftIDFor(c.ID, research.VariantCore)
	primary.Variant = research.VariantCore
	primary.Exit = research.ExitRule{StopLossPct: 6, TakeProfitRR: 2}
	primary.Risk = research.RiskParams{RiskPerTradePct: 1, MaxPositions: 5}

	conservative := base
	conservative.ID = research.DraftIDFor(c.ID, research.VariantConservative)
	conservative.Variant = research.VariantConservative
	conservative.EntryConditions = append([]string(nil), entry...)
	conservative.TrendFilters = []string{defaultTrendFilter}
	conservative.Exit = research.ExitRule{StopLossPct: 4, TakeProfitRR: 1.5}
	conservative.Risk = research.RiskParams{RiskPerTradePct: 0.5, MaxPositions: 3}

	return []research.Draft{primary, conservative}
}

func (d *Drafter) revise(in stage.Inputs) stage.Result {
	drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
	if err != nil || len(drafts) != 1 {
		return stage.Failed("revise needs exactly one draft (err=%v)", err)
	}
	reviews, err := core.DecodeAll[research.Review](in.Get("review"), core.ArtifactReview)
	if err != nil || len(reviews) != 1 {
		return stage.Failed("revise needs exactly one review (err=%v)", err)
	}
	prev, review := drafts[0], reviews[0]

	next := prev
	next.Version = prev.Version + 1
	next.Predecessor = prev.Version
	next.EntryConditions = append([]string(nil), prev.EntryConditions...)
	next.TrendFilters = append([]string(nil), prev.TrendFilters...)
	next.AppliedInstructions = append([]string(nil), review.RevisionInstructions...)
	for _, instr := range review.RevisionInstructions {
		switch instr {
		case InstructionTrendFilter:
			next.TrendFilters = append(next.TrendFilters, defaultTrendFilter)
		case InstructionTightenStop:
			next.Exit.StopLossPct = maxStopLossPct
		}
	}

	a, err := core.NewArtifact(core.ArtifactDraft, next.VersionKey(), next)
	if err != nil {
		return stage.Failed("encode draft %s: %v", next.VersionKey(), err)
	}
	return stage.OK(a)
}
