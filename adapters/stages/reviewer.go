package stages

import (
	"context"
	"math"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// ChecklistReviewer grades a draft against a fixed checklist. Structural
// gaps reject, fixable gaps ask for a revision and soft concerns are attached
// as warnings to an otherwise passing review.
type ChecklistReviewer struct {
	MinEntryConditions int
	MaxRiskPerTradePct float64
	MinRewardRisk      float64
}

// NewChecklistReviewer creates a reviewer with the default checklist
func NewChecklistReviewer() *ChecklistReviewer {
	return &ChecklistReviewer{
		MinEntryConditions: 2,
		MaxRiskPerTradePct: 1,
		MinRewardRisk:      2,
	}
}

func (r *ChecklistReviewer) Name() stage.Name { return stage.Review }

func (r *ChecklistReviewer) Run(_ context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
	if err != nil || len(drafts) != 1 {
		return stage.Failed("review needs exactly one draft (err=%v)", err)
	}
	review := r.Grade(drafts[0], cfg.IntParam("iteration"))
	a, err := core.NewArtifact(core.ArtifactReview, review.Key(), review)
	if err != nil {
		return stage.Failed("encode review: %v", err)
	}
	return stage.OK(a)
}

// Grade reviews one draft version.
func (r *ChecklistReviewer) Grade(d research.Draft, iteration int) research.Review {
	review := research.Review{DraftID: d.ID, DraftVersion: d.Version, Iteration: iteration}

	if len(d.EntryConditions) < r.MinEntryConditions {
		review.Verdict = research.VerdictReject
		review.ConfidenceScore = 20
		review.Findings = []research.Finding{{Severity: research.SeverityError, Message: "entry logic too thin to test"}}
		return review
	}

	if len(d.TrendFilters) == 0 {
		review.RevisionInstructions = append(review.RevisionInstructions, InstructionTrendFilter)
	}
	if d.Exit.StopLossPct > maxStopLossPct {
		review.RevisionInstructions = append(review.RevisionInstructions, InstructionTightenStop)
	}
	if d.Risk.RiskPerTradePct > r.MaxRiskPerTradePct {
		review.Findings = append(review.Findings, research.Finding{Severity: research.SeverityWarn, Message: "risk per trade above budget"})
	}
	if d.Exit.TakeProfitRR < r.MinRewardRisk {
		review.Findings = append(review.Findings, research.Finding{Severity: research.SeverityWarn, Message: "reward/risk below target"})
	}
	if !d.EntryFamily.Exportable() {
		review.Findings = append(review.Findings, research.Finding{Severity: research.SeverityInfo, Message: "entry family is research-only"})
	}

	score := 90.0 - 20*float64(len(review.RevisionInstructions))
	for _, f := range review.Findings {
		if f.Severity == research.SeverityWarn {
			score -= 10
		}
	}
	review.ConfidenceScore = math.Max(score, 0)
	if len(review.RevisionInstructions) > 0 {
		review.Verdict = research.VerdictRevise
	} else {
		review.Verdict = research.VerdictPass
	}
	return review
}
