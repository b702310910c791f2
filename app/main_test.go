package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hypoforge/adapters/memstore"
	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/internal/testkit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	conceptA = testkit.Concept(research.HypothesisBreakout, research.MechanismFlow, research.RegimeRiskOn,
		research.EntryPivotBreakout, true, 0, "close_above_pivot", "volume_above_avg")
	conceptB = testkit.Concept(research.HypothesisMomentum, research.MechanismBehavior, research.RegimeNeutral,
		research.EntryPullbackReentry, true, 1, "trend_intact", "pullback_to_ma")
	draftA = testkit.DraftOf(conceptA)
	draftB = testkit.DraftOf(conceptB)
)

func defaultTickets() []research.Ticket {
	return []research.Ticket{
		testkit.Ticket("t1", research.HypothesisBreakout, research.EntryPivotBreakout, 80, false),
		testkit.Ticket("t2", research.HypothesisMomentum, research.EntryPullbackReentry, 60, false),
	}
}

// harness wires an orchestrator to scripted stages over an in-memory store.
type harness struct {
	store    *memstore.Store
	reviewer *testkit.Reviewer
	concepts *testkit.ConceptStage
	hints    *testkit.Counter
	stages   Stages
	cfg      config.PipelineConfig
}

func newHarness(concepts ...research.Concept) *harness {
	if len(concepts) == 0 {
		concepts = []research.Concept{conceptA, conceptB}
	}
	h := &harness{
		store:    memstore.New(),
		reviewer: testkit.NewReviewer(nil),
		concepts: testkit.Concepts(concepts...),
		hints:    testkit.Count(testkit.Hints()),
		cfg:      config.Defaults().Pipeline,
	}
	h.stages = Stages{
		Detection: testkit.Detector(defaultTickets()...),
		Hints:     h.hints,
		Concepts:  h.concepts,
		Drafts:    testkit.Drafter(),
		Review:    h.reviewer,
		Export:    testkit.Exporter(),
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(Deps{
		Artifacts: h.store,
		Manifests: h.store,
		Stages:    h.stages,
		Clock:     testkit.Clock(),
		Logger:    internal.NewNopLogger(),
	}, h.cfg)
}

func (h *harness) run(t *testing.T, req Request) *Outcome {
	t.Helper()
	out, err := h.orchestrator().Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, out.State.Status)
	return out
}

// strategyHashes maps every exported candidate to the hash of its strategy artifact.
func strategyHashes(t *testing.T, state *run.State) map[core.CandidateID]core.Hash {
	t.Helper()
	out := make(map[core.CandidateID]core.Hash)
	for id, d := range state.Exports {
		for _, ref := range d.Outputs {
			if ref.Kind == core.ArtifactStrategy {
				out[id] = ref.Hash
			}
		}
	}
	return out
}
