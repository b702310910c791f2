package app

import (
	"context"
	"fmt"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal"
	"hypoforge/ports"
)

// ModeExport is the mode the exporter stage is invoked with.
const ModeExport = "export"

// GateOptions selects strict gating and report-only (dry-run) behavior.
type GateOptions struct {
	Strict bool
	DryRun bool
}

// ExportGate filters terminal drafts and exports the eligible ones.
type ExportGate struct {
	store    ports.ArtifactStore
	recorder *ManifestRecorder
	executor *Executor
	exporter ports.Stage
	clock    core.Clock
	log      *internal.Logger
}

// NewExportGate creates a gate delegating the transformation to exporter
func NewExportGate(store ports.ArtifactStore, recorder *ManifestRecorder, executor *Executor,
	exporter ports.Stage, clock core.Clock, log *internal.Logger) *ExportGate {
	return &ExportGate{
		store:    store,
		recorder: recorder,
		executor: executor,
		exporter: exporter,
		clock:    clock,
		log:      log,
	}
}

// Eligible decides whether a terminal draft may be exported. Under strict
// mode a PASS whose review carries warnings is gated as if it were REVISE;
// the recorded verdict is not changed.
func Eligible(status run.DraftStatus, draft research.Draft, last *run.ReviewRecord, strict bool) (bool, string) {
	if status.State != run.DraftPassed {
		return false, fmt.Sprintf("disposition %s", status.State)
	}
	if last == nil || last.Verdict != research.VerdictPass {
		return false, "last review is not PASS"
	}
	if !draft.EntryFamily.Exportable() {
		return false, fmt.Sprintf("entry family %s is not exportable", draft.EntryFamily)
	}
	if !draft.ExportReadyV1 {
		return false, "draft is not export-ready"
	}
	if strict && last.Warned {
		return false, "strict mode: review carries warnings (gated as REVISE)"
	}
	return true, "eligible"
}

// Run records an export decision for every tracked draft, in draft order,
// and performs the export for eligible ones unless opts.DryRun is set.
func (g *ExportGate) Run(ctx context.Context, state *run.State, opts GateOptions) ([]core.ArtifactRef, error) {
	runID := state.RunID
	if !opts.DryRun {
		if _, err := g.store.Commit(ctx, runID, string(stage.Export), nil); err != nil {
			return nil, fmt.Errorf("reset export scope: %w", err)
		}
	}

	var outputs []core.ArtifactRef
	exported := 0
	for _, status := range state.DraftList() {
		if !status.State.Terminal() {
			return nil, core.NewContractError(string(stage.Export),
				fmt.Sprintf("draft %s reached export in state %s", status.DraftID, status.State))
		}
		draftArt, err := g.store.Load(ctx, runID, status.Ref)
		if err != nil {
			return nil, core.NewContractError(string(stage.Export), err.Error())
		}
		var draft research.Draft
		if err := draftArt.Decode(&draft); err != nil {
			return nil, core.NewContractError(string(stage.Export), err.Error())
		}

		chain := state.ReviewChain(status.DraftID)
		var last *run.ReviewRecord
		if len(chain) > 0 {
			last = &chain[len(chain)-1]
		}
		eligible, reason := Eligible(status, draft, last, opts.Strict)
		decision := run.ExportDecision{
			CandidateID: research.CandidateFor(draft.ID),
			DraftID:     draft.ID,
			Version:     draft.Version,
			Eligible:    eligible,
			Reason:      reason,
			DryRun:      opts.DryRun,
		}

		if eligible && !opts.DryRun {
			refs, err := g.export(ctx, state, status, draftArt, draft, chain, opts)
			if err != nil {
				return nil, err
			}
			decision.Exported = true
			decision.Outputs = refs
			outputs = append(outputs, refs...)
			exported++
		}
		if _, err := g.recorder.Append(ctx, run.Event{Type: run.EventExportDecision, Export: &decision}); err != nil {
			return nil, err
		}
		g.log.Debug("export decision %s: eligible=%t (%s)", decision.CandidateID, eligible, reason)
	}

	if opts.DryRun {
		g.log.Info("dry run: export decisions recorded, nothing exported")
	} else {
		g.log.Info("exported %d candidates", exported)
	}
	return outputs, nil
}

func (g *ExportGate) export(ctx context.Context, state *run.State, status run.DraftStatus, draftArt core.Artifact,
	draft research.Draft, chain []run.ReviewRecord, opts GateOptions) ([]core.ArtifactRef, error) {
	candidate := research.CandidateFor(draft.ID)

	conceptArt, err := g.loadConcept(ctx, state, draft.ConceptID)
	if err != nil {
		return nil, err
	}
	reviews := make([]core.Artifact, 0, len(chain))
	links := make([]research.ReviewLink, 0, len(chain))
	for _, r := range chain {
		a, err := g.store.Load(ctx, state.RunID, r.Ref)
		if err != nil {
			return nil, core.NewContractError(string(stage.Export), err.Error())
		}
		reviews = append(reviews, a)
		links = append(links, research.ReviewLink{
			DraftVersion: r.DraftVersion,
			Iteration:    r.Iteration,
			Verdict:      r.Verdict,
			Confidence:   r.Confidence,
		})
	}

	cfg := stage.Config{RunID: state.RunID, Mode: ModeExport, Params: map[string]any{"candidate_id": string(candidate)}}
	inputs := stage.Inputs{"draft": {draftArt}, "concept": {conceptArt}, "reviews": reviews}
	outputs, err := g.executor.Invoke(ctx, g.exporter, inputs, cfg, core.ArtifactStrategy)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 || outputs[0].Key != string(candidate) {
		return nil, core.NewContractError(string(stage.Export),
			fmt.Sprintf("export of %s must return exactly one strategy keyed %s", draft.ID, candidate))
	}

	provenance, err := core.NewArtifact(core.ArtifactProvenance, string(candidate), research.Provenance{
		CandidateID:    candidate,
		RunID:          state.RunID,
		ConceptID:      draft.ConceptID,
		DraftID:        draft.ID,
		DraftVersion:   draft.Version,
		ReviewChain:    links,
		IterationCount: status.Rounds,
		StrictMode:     opts.Strict,
		ExportedAt:     g.clock(),
	})
	if err != nil {
		return nil, err
	}
	scope := string(stage.Export) + "/" + string(candidate)
	refs, err := g.store.Commit(ctx, state.RunID, scope, []core.Artifact{outputs[0], provenance})
	if err != nil {
		return nil, fmt.Errorf("commit export %s: %w", candidate, err)
	}
	return refs, nil
}

func (g *ExportGate) loadConcept(ctx context.Context, state *run.State, id research.ConceptID) (core.Artifact, error) {
	refs, _ := state.Outputs(stage.Concepts, core.ArtifactConcept)
	for _, ref := range refs {
		if ref.Key == string(id) {
			a, err := g.store.Load(ctx, state.RunID, ref)
			if err != nil {
				return core.Artifact{}, core.NewContractError(string(stage.Export), err.Error())
			}
			return a, nil
		}
	}
	return core.Artifact{}, core.NewContractError(string(stage.Export), fmt.Sprintf("concept %s is not among the concepts stage outputs", id))
}
