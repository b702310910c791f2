package app

import (
	"context"
	"fmt"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
	"hypoforge/internal/curation"
	"hypoforge/ports"
)

// Input names bound by the built-in stage contracts.
const (
	InputTickets  = "tickets"
	InputHints    = "hints"
	InputConcepts = "concepts"
)

// CapSyntheticTickets is the concepts stage's input transform.
func CapSyntheticTickets(ratio float64) InputTransform {
	return func(ctx context.Context, in stage.Inputs) (stage.Inputs, []core.Artifact, error) {
		tickets, err := core.DecodeAll[research.Ticket](in.Get(InputTickets), core.ArtifactTicket)
		if err != nil {
			return nil, nil, err
		}
		kept, report := curation.CapSynthetic(tickets, ratio)

		byID := make(map[string]core.Artifact, len(tickets))
		for _, a := range in.Get(InputTickets) {
			byID[a.Key] = a
		}
		out := in.Clone()
		out[InputTickets] = make([]core.Artifact, 0, len(kept))
		for _, t := range kept {
			out[InputTickets] = append(out[InputTickets], byID[t.ID])
		}
		reportArt, err := core.NewArtifact(core.ArtifactVolumeReport, "volume-report", report)
		if err != nil {
			return nil, nil, err
		}
		return out, []core.Artifact{reportArt}, nil
	}
}

// DedupConcepts is the drafts stage's input transform.
func DedupConcepts(d curation.Deduplicator) InputTransform {
	return func(ctx context.Context, in stage.Inputs) (stage.Inputs, []core.Artifact, error) {
		concepts, err := core.DecodeAll[research.Concept](in.Get(InputConcepts), core.ArtifactConcept)
		if err != nil {
			return nil, nil, err
		}
		survivors, report := d.Apply(concepts)

		out := in.Clone()
		out[InputConcepts] = make([]core.Artifact, 0, len(survivors))
		for _, c := range survivors {
			a, err := core.NewArtifact(core.ArtifactConcept, string(c.ID), c)
			if err != nil {
				return nil, nil, err
			}
			out[InputConcepts] = append(out[InputConcepts], a)
		}
		reportArt, err := core.NewArtifact(core.ArtifactDedupReport, "dedup-report", report)
		if err != nil {
			return nil, nil, err
		}
		return out, []core.Artifact{reportArt}, nil
	}
}

// DraftsReferenceConcepts checks that every draft points at a concept the
// drafts stage was given.
func DraftsReferenceConcepts(in stage.Inputs, out []core.Artifact) error {
	known := make(map[research.ConceptID]bool)
	for _, a := range in.Get(InputConcepts) {
		known[research.ConceptID(a.Key)] = true
	}
	drafts, err := core.DecodeAll[research.Draft](out, core.ArtifactDraft)
	if err != nil {
		return err
	}
	for _, d := range drafts {
		if !known[d.ConceptID] {
			return fmt.Errorf("draft %s references unknown concept %s", d.ID, d.ConceptID)
		}
		if d.Version != 1 {
			return fmt.Errorf("draft %s starts at version %d, want 1", d.ID, d.Version)
		}
	}
	return nil
}

// WithIdeas decorates the hints stage so external ideas are merged into its
// output before concepts run. A stage hint with the same key wins.
func WithIdeas(hints ports.Stage, ideas []research.Hint) ports.Stage {
	if len(ideas) == 0 {
		return hints
	}
	return ports.StageFunc{
		StageName: hints.Name(),
		Fn: func(ctx context.Context, in stage.Inputs, cfg stage.Config) stage.Result {
			res := hints.Run(ctx, in, cfg)
			if !res.Succeeded() {
				return res
			}
			seen := make(map[string]bool, len(res.Outputs))
			for _, a := range res.Outputs {
				seen[a.Key] = true
			}
			outputs := append([]core.Artifact(nil), res.Outputs...)
			for _, idea := range ideas {
				idea.Source = research.HintFromIdea
				if seen[idea.Key()] {
					continue
				}
				a, err := core.NewArtifact(core.ArtifactHint, idea.Key(), idea)
				if err != nil {
					return stage.Failed("encode idea %q: %v", idea.Title, err)
				}
				seen[idea.Key()] = true
				outputs = append(outputs, a)
			}
			return stage.OK(outputs...)
		},
	}
}
