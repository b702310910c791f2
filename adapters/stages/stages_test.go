package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/domain/artifacts"
	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

const ticketsJSON = `[
  {"id": "t2", "hypothesis_type": "breakout", "entry_family": "pivot_breakout", "priority_score": 70, "symbols": ["NVDA"]},
  {"id": "t1", "hypothesis_type": "breakout", "entry_family": "pivot_breakout", "priority_score": 80, "symbols": ["AMD"]},
  {"id": "t3", "hypothesis_type": "calendar_anomaly", "entry_family": "research_only", "priority_score": 30, "synthetic": true}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireValid(t *testing.T, res stage.Result) []core.Artifact {
	t.Helper()
	require.True(t, res.Succeeded(), res.Reason)
	for _, a := range res.Outputs {
		require.NoError(t, artifacts.ValidateArtifact(a))
	}
	return res.Outputs
}

func TestLoadTickets_JSONAndYAML(t *testing.T) {
	tickets, err := LoadTickets(writeFile(t, "tickets.json", ticketsJSON))
	require.NoError(t, err)
	assert.Len(t, tickets, 3)

	yamlTickets, err := LoadTickets(writeFile(t, "tickets.yaml", `
- id: t9
  hypothesis_type: momentum_continuation
  entry_family: pullback_reentry
  priority_score: 55
`))
	require.NoError(t, err)
	require.Len(t, yamlTickets, 1)
	assert.Equal(t, research.EntryPullbackReentry, yamlTickets[0].EntryFamily)

	_, err = LoadTickets(writeFile(t, "bad.json", `[{"id": "x", "hypothesis_type": "astrology", "entry_family": "pivot_breakout"}]`))
	assert.Error(t, err)
}

func TestReferencePipeline(t *testing.T) {
	ctx := context.Background()

	tickets := requireValid(t, NewFileDetector(writeFile(t, "tickets.json", ticketsJSON)).Run(ctx, nil, stage.Config{}))
	require.Len(t, tickets, 3)
	assert.Equal(t, "t1", tickets[0].Key, "tickets are ordered by id")

	hints := requireValid(t, NewTicketHints("").Run(ctx, stage.Inputs{"tickets": tickets}, stage.Config{}))
	require.Len(t, hints, 2)
	var breakout research.Hint
	require.NoError(t, hints[0].Decode(&breakout))
	assert.Equal(t, research.RegimeRiskOn, breakout.RegimeBias)
	assert.Equal(t, research.MechanismFlow, breakout.MechanismTag)
	assert.Equal(t, []string{"AMD", "NVDA"}, breakout.Symbols)

	concepts := requireValid(t, NewConceptSynthesizer().Run(ctx, stage.Inputs{"tickets": tickets, "hints": hints}, stage.Config{}))
	require.Len(t, concepts, 2)
	decoded, err := core.DecodeAll[research.Concept](concepts, core.ArtifactConcept)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, decoded[0].TicketIDs)
	assert.True(t, decoded[0].ExportReadyV1)
	assert.False(t, decoded[1].ExportReadyV1)

	drafts := requireValid(t, NewDrafter().Run(ctx, stage.Inputs{"concepts": concepts}, stage.Config{Mode: "generate"}))
	assert.Len(t, drafts, 4)
}

func TestChecklistReviewer_ReviseThenPass(t *testing.T) {
	c := research.Concept{
		ID:                     research.ConceptIDFor(research.HypothesisBreakout, research.MechanismFlow, research.RegimeRiskOn),
		HypothesisType:         research.HypothesisBreakout,
		MechanismTag:           research.MechanismFlow,
		RegimeBias:             research.RegimeRiskOn,
		RecommendedEntryFamily: research.EntryPivotBreakout,
		ExportReadyV1:          true,
		Conditions:             []string{"close_above_pivot", "volume_above_avg", "type:breakout"},
	}
	drafts := draftsFor(c)
	require.Len(t, drafts, 2)
	assert.Equal(t, []string{"close_above_pivot", "volume_above_avg"}, drafts[0].EntryConditions)

	reviewer := NewChecklistReviewer()
	first := reviewer.Grade(drafts[0], 0)
	assert.Equal(t, research.VerdictRevise, first.Verdict)
	assert.ElementsMatch(t, []string{InstructionTrendFilter, InstructionTightenStop}, first.RevisionInstructions)
	require.NoError(t, first.Validate())

	draftArt := core.MustArtifact(core.ArtifactDraft, drafts[0].VersionKey(), drafts[0])
	reviewArt := core.MustArtifact(core.ArtifactReview, first.Key(), first)
	res := NewDrafter().Run(context.Background(), stage.Inputs{"draft": {draftArt}, "review": {reviewArt}}, stage.Config{Mode: "revise"})
	out := requireValid(t, res)
	require.Len(t, out, 1)

	var next research.Draft
	require.NoError(t, out[0].Decode(&next))
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, drafts[0].ID, next.ID)
	assert.Equal(t, first.RevisionInstructions, next.AppliedInstructions)

	second := reviewer.Grade(next, 1)
	assert.Equal(t, research.VerdictPass, second.Verdict)
	assert.False(t, second.HasWarnings())

	conservative := reviewer.Grade(drafts[1], 0)
	assert.Equal(t, research.VerdictPass, conservative.Verdict)
	assert.True(t, conservative.HasWarnings(), "reward/risk below target")
}

func TestChecklistReviewer_RejectsThinEntry(t *testing.T) {
	d := research.Draft{ID: "x.core", Version: 1, EntryConditions: []string{"observation_window"}}
	r := NewChecklistReviewer().Grade(d, 0)
	assert.Equal(t, research.VerdictReject, r.Verdict)
}

func TestStrategyExporter(t *testing.T) {
	c := research.Concept{
		ID:             research.ConceptIDFor(research.HypothesisBreakout, research.MechanismFlow, research.RegimeRiskOn),
		HypothesisType: research.HypothesisBreakout, MechanismTag: research.MechanismFlow, RegimeBias: research.RegimeRiskOn,
		RecommendedEntryFamily: research.EntryPivotBreakout, ExportReadyV1: true,
	}
	d := draftsFor(c)[1]
	in := stage.Inputs{
		"draft":   {core.MustArtifact(core.ArtifactDraft, d.VersionKey(), d)},
		"concept": {core.MustArtifact(core.ArtifactConcept, string(c.ID), c)},
	}
	cfg := stage.Config{Mode: "export", Params: map[string]any{"candidate_id": string(d.ID)}}
	out := requireValid(t, NewStrategyExporter().Run(context.Background(), in, cfg))
	require.Len(t, out, 1)
	assert.Equal(t, string(d.ID), out[0].Key)

	res := NewStrategyExporter().Run(context.Background(), in, stage.Config{})
	assert.False(t, res.Succeeded())
}
