// Package testkit provides scripted stage collaborators and fixtures for
// exercising the orchestrator without real domain logic.
package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
	"hypoforge/ports"
)

// Clock returns a deterministic clock that advances one millisecond per call.
func Clock() core.Clock {
	var mu sync.Mutex
	now := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	return func() core.Timestamp {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return core.NewTimestamp(now)
	}
}

// Ticket builds a valid ticket fixture.
func Ticket(id string, ht research.HypothesisType, family research.EntryFamily, priority float64, synthetic bool) research.Ticket {
	return research.Ticket{ID: id, HypothesisType: ht, EntryFamily: family, PriorityScore: priority, Synthetic: synthetic}
}

// Concept builds a valid concept fixture whose id matches its grouping key.
func Concept(ht research.HypothesisType, mech research.MechanismTag, regime research.RegimeBias,
	family research.EntryFamily, exportReady bool, order int, conditions ...string) research.Concept {
	return research.Concept{
		ID:                     research.ConceptIDFor(ht, mech, regime),
		HypothesisType:         ht,
		MechanismTag:           mech,
		RegimeBias:             regime,
		RecommendedEntryFamily: family,
		ExportReadyV1:          exportReady,
		Conditions:             conditions,
		CreatedOrder:           order,
	}
}

// DraftOf returns the core-variant draft id derived from c.
func DraftOf(c research.Concept) research.DraftID {
	return research.DraftIDFor(c.ID, research.VariantCore)
}

// Counter wraps a stage and counts its invocations.
type Counter struct {
	ports.Stage
	calls atomic.Int64
}

// Count wraps st.
func Count(st ports.Stage) *Counter {
	return &Counter{Stage: st}
}

func (c *Counter) Run(ctx context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	c.calls.Add(1)
	return c.Stage.Run(ctx, in, cfg)
}

// Calls returns how often the stage ran.
func (c *Counter) Calls() int { return int(c.calls.Load()) }

// Switch wraps a stage that fails with Reason until Fix is called.
type Switch struct {
	ports.Stage
	Reason string
	fixed  atomic.Bool
}

// Broken wraps st so it fails until fixed.
func Broken(st ports.Stage, reason string) *Switch {
	return &Switch{Stage: st, Reason: reason}
}

// Fix makes the wrapped stage run normally.
func (s *Switch) Fix() { s.fixed.Store(true) }

func (s *Switch) Run(ctx context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	if !s.fixed.Load() {
		return stage.Failed("%s", s.Reason)
	}
	return s.Stage.Run(ctx, in, cfg)
}

// Func adapts fn to a stage named name.
func Func(name stage.Name, fn func(ctx context.Context, in stage.Inputs, cfg stage.Config) stage.Result) ports.Stage {
	return ports.StageFunc{StageName: name, Fn: fn}
}

// Detector emits the given tickets.
func Detector(tickets ...research.Ticket) ports.Stage {
	return Func(stage.Detection, func(context.Context, stage.Inputs, stage.Config) stage.Result {
		out := make([]core.Artifact, 0, len(tickets))
		for _, t := range tickets {
			out = append(out, core.MustArtifact(core.ArtifactTicket, t.ID, t))
		}
		return stage.OK(out...)
	})
}

// Hints emits one neutral hint per hypothesis type among its input tickets.
func Hints() ports.Stage {
	return Func(stage.Hints, func(_ context.Context, in stage.Inputs, _ stage.Config) stage.Result {
		tickets, err := core.DecodeAll[research.Ticket](in.Get("tickets"), core.ArtifactTicket)
		if err != nil {
			return stage.Failed("%v", err)
		}
		seen := make(map[research.HypothesisType]bool)
		var out []core.Artifact
		for _, t := range tickets {
			if seen[t.HypothesisType] {
				continue
			}
			seen[t.HypothesisType] = true
			h := research.Hint{
				Title:          fmt.Sprintf("%s observation", t.HypothesisType),
				RegimeBias:     research.RegimeNeutral,
				MechanismTag:   research.MechanismFlow,
				HypothesisType: t.HypothesisType,
			}
			out = append(out, core.MustArtifact(core.ArtifactHint, h.Key(), h))
		}
		return stage.OK(out...)
	})
}

// ConceptStage emits fixed concepts and records the tickets it was given.
type ConceptStage struct {
	Concepts []research.Concept
	mu       sync.Mutex
	seen     []string
}

// Concepts creates a concept stage emitting cs.
func Concepts(cs ...research.Concept) *ConceptStage {
	return &ConceptStage{Concepts: cs}
}

func (s *ConceptStage) Name() stage.Name { return stage.Concepts }

func (s *ConceptStage) Run(_ context.Context, in stage.Inputs, _ stage.Config) stage.Result {
	s.mu.Lock()
	s.seen = s.seen[:0]
	for _, a := range in.Get("tickets") {
		s.seen = append(s.seen, a.Key)
	}
	s.mu.Unlock()
	out := make([]core.Artifact, 0, len(s.Concepts))
	for _, c := range s.Concepts {
		out = append(out, core.MustArtifact(core.ArtifactConcept, string(c.ID), c))
	}
	return stage.OK(out...)
}

// TicketsSeen returns the ticket ids handed to the last invocation.
func (s *ConceptStage) TicketsSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

// Drafter emits one core draft per input concept in generate mode and the
// next version of its input draft in revise mode.
func Drafter() ports.Stage {
	return Func(stage.Drafts, func(_ context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
		if cfg.Mode == "revise" {
			drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
			if err != nil || len(drafts) != 1 {
				return stage.Failed("revise: want one draft (err=%v)", err)
			}
			next := drafts[0]
			next.Predecessor = next.Version
			next.Version++
			next.AppliedInstructions = []string{fmt.Sprintf("round %d", cfg.IntParam("iteration"))}
			return stage.OK(core.MustArtifact(core.ArtifactDraft, next.VersionKey(), next))
		}
		concepts, err := core.DecodeAll[research.Concept](in.Get("concepts"), core.ArtifactConcept)
		if err != nil {
			return stage.Failed("%v", err)
		}
		var out []core.Artifact
		for _, c := range concepts {
			d := research.Draft{
				ID:              DraftOf(c),
				Version:         1,
				ConceptID:       c.ID,
				Variant:         research.VariantCore,
				EntryFamily:     c.RecommendedEntryFamily,
				ExportReadyV1:   c.ExportReadyV1,
				EntryConditions: []string{"entry"},
				Exit:            research.ExitRule{StopLossPct: 5, TakeProfitRR: 2},
			}
			out = append(out, core.MustArtifact(core.ArtifactDraft, d.VersionKey(), d))
		}
		return stage.OK(out...)
	})
}

// Reviewer returns scripted verdicts. A lineage without a script passes;
// rounds past the end of a script repeat its last verdict.
type Reviewer struct {
	Script map[research.DraftID][]research.Verdict
	// Warn lists lineages whose reviews carry a warn-level finding.
	Warn map[research.DraftID]bool

	mu    sync.Mutex
	calls []string
}

// NewReviewer creates a scripted reviewer.
func NewReviewer(script map[research.DraftID][]research.Verdict) *Reviewer {
	if script == nil {
		script = map[research.DraftID][]research.Verdict{}
	}
	return &Reviewer{Script: script, Warn: map[research.DraftID]bool{}}
}

func (r *Reviewer) Name() stage.Name { return stage.Review }

func (r *Reviewer) Run(_ context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
	drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
	if err != nil || len(drafts) != 1 {
		return stage.Failed("review: want one draft (err=%v)", err)
	}
	d := drafts[0]
	round := cfg.IntParam("iteration")

	verdict := research.VerdictPass
	if script := r.Script[d.ID]; len(script) > 0 {
		i := round
		if i >= len(script) {
			i = len(script) - 1
		}
		verdict = script[i]
	}
	review := research.Review{
		DraftID:         d.ID,
		DraftVersion:    d.Version,
		Iteration:       round,
		Verdict:         verdict,
		ConfidenceScore: 50 + 10*float64(d.Version),
	}
	if verdict == research.VerdictRevise {
		review.RevisionInstructions = []string{"tighten"}
	}
	if r.Warn[d.ID] {
		review.Findings = []research.Finding{{Severity: research.SeverityWarn, Message: "thin sample"}}
	}

	r.mu.Lock()
	r.calls = append(r.calls, review.Key())
	r.mu.Unlock()
	return stage.OK(core.MustArtifact(core.ArtifactReview, review.Key(), review))
}

// Calls returns the review keys produced so far, sorted.
func (r *Reviewer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.calls...)
	sort.Strings(out)
	return out
}

// Exporter renders a strategy spec for the candidate it is given.
func Exporter() ports.Stage {
	return Func(stage.Export, func(_ context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
		drafts, err := core.DecodeAll[research.Draft](in.Get("draft"), core.ArtifactDraft)
		if err != nil || len(drafts) != 1 {
			return stage.Failed("export: want one draft (err=%v)", err)
		}
		candidate := cfg.Param("candidate_id")
		spec := research.StrategySpec{
			CandidateID: core.CandidateID(candidate),
			Name:        string(drafts[0].ID),
			EntryFamily: drafts[0].EntryFamily,
			Body:        map[string]any{"version": drafts[0].Version},
		}
		return stage.OK(core.MustArtifact(core.ArtifactStrategy, candidate, spec))
	})
}
