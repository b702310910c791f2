package app

import (
	"context"
	"fmt"

	"hypoforge/domain/artifacts"
	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/internal/curation"
	"hypoforge/internal/errors"
	"hypoforge/ports"
)

// ModeGenerate is the drafts stage's mode outside the feedback loop.
const ModeGenerate = "generate"

// Stages bundles the collaborator behind each pipeline stage. Drafts is also
// invoked in revise mode by the feedback loop.
type Stages struct {
	Detection ports.Stage
	Hints     ports.Stage
	Concepts  ports.Stage
	Drafts    ports.Stage
	Review    ports.Stage
	Export    ports.Stage
}

// Deps are the orchestrator's collaborators. Index is optional.
type Deps struct {
	Artifacts   ports.ArtifactStore
	Manifests   ports.ManifestStore
	Index       ports.RunIndex
	Stages      Stages
	Clock       core.Clock
	Logger      *internal.Logger
	CodeVersion string
}

// Request describes one invocation of the pipeline.
type Request struct {
	Mode run.Mode
	// RunID names the run to reopen (resume, review-only) or to create; a new
	// id is generated when empty.
	RunID core.RunID
	// From is the resume target.
	From   stage.Name
	DryRun bool
	// Tickets replace the detection stage in from-tickets mode.
	Tickets []research.Ticket
	// Ideas are merged into the hints stage output.
	Ideas []research.Hint
}

// Outcome is what a run left behind.
type Outcome struct {
	RunID   core.RunID
	State   *run.State
	Summary run.Summary
}

// Orchestrator sequences the stages of a run. It alone decides run mode,
// which stages execute, and the loop's iteration bounds.
type Orchestrator struct {
	deps Deps
	cfg  config.PipelineConfig
	log  *internal.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, cfg config.PipelineConfig) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = core.Now
	}
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	if deps.CodeVersion == "" {
		deps.CodeVersion = "dev"
	}
	return &Orchestrator{deps: deps, cfg: cfg, log: deps.Logger}
}

// runContext carries the per-run wiring.
type runContext struct {
	req      Request
	runID    core.RunID
	recorder *ManifestRecorder
	executor *Executor
}

// Run executes req. A returned error names the failing stage; the manifest
// is left resumable from that stage.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		rc    *runContext
		state *run.State
		plan  *stage.Plan
		err   error
	)
	switch req.Mode {
	case run.ModeFull, run.ModeFromTickets:
		rc, state, plan, err = o.start(ctx, req)
	case run.ModeResume, run.ModeReviewOnly:
		rc, state, plan, err = o.reopen(ctx, req)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unknown run mode %q", req.Mode))
	}
	if err != nil {
		return nil, err
	}
	defer rc.recorder.Close()

	log := o.log.With("run_id", string(rc.runID))
	log.Info("run %s: mode=%s plan=%v dry_run=%t ceiling=%d", rc.runID, req.Mode, plan.Stages, req.DryRun, o.cfg.IterationCeiling)

	for _, name := range plan.Stages {
		state, err = o.runStage(ctx, rc, state, name)
		if err != nil {
			return o.finishFailed(ctx, rc, err)
		}
	}

	state, err = rc.recorder.Append(ctx, run.Event{Type: run.EventRunCompleted})
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, state), nil
}

func (o *Orchestrator) start(ctx context.Context, req Request) (*runContext, *run.State, *stage.Plan, error) {
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	} else if _, err := core.ParseRunID(string(runID)); err != nil {
		return nil, nil, nil, errors.InvalidInput(err.Error())
	}
	if _, err := o.deps.Manifests.LoadEvents(ctx, runID); err == nil {
		return nil, nil, nil, errors.InvalidInput(fmt.Sprintf("run %s already exists; use resume", runID))
	} else if !core.IsNotFoundError(err) {
		return nil, nil, nil, err
	}

	plan := stage.NewPlan(stage.Detection)
	if req.Mode == run.ModeFromTickets {
		plan = plan.Without(stage.Detection)
	}
	rc := o.newRunContext(req, run.NewManifest(runID))
	state, err := rc.recorder.Append(ctx, run.Event{Type: run.EventRunStarted, Run: &run.RunInfo{
		RunID:       runID,
		Mode:        req.Mode,
		DryRun:      req.DryRun,
		Plan:        plan.Stages,
		Ceiling:     o.cfg.IterationCeiling,
		Fingerprint: o.fingerprint(plan),
	}})
	if err != nil {
		rc.recorder.Close()
		return nil, nil, nil, err
	}

	if req.Mode == run.ModeFromTickets {
		state, err = o.importTickets(ctx, rc, req.Tickets)
		if err != nil {
			_, ferr := o.finishFailed(ctx, rc, err)
			rc.recorder.Close()
			return nil, nil, nil, ferr
		}
	}
	return rc, state, plan, nil
}

func (o *Orchestrator) reopen(ctx context.Context, req Request) (*runContext, *run.State, *stage.Plan, error) {
	events, err := o.deps.Manifests.LoadEvents(ctx, req.RunID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, nil, nil, errors.ResumeUnsatisfiable(fmt.Errorf("%w: %v", core.ErrResumeUnsatisfiable, err))
		}
		return nil, nil, nil, err
	}
	manifest, err := run.LoadManifest(req.RunID, events)
	if err != nil {
		return nil, nil, nil, err
	}
	prior, err := manifest.State()
	if err != nil {
		return nil, nil, nil, err
	}

	target := req.From
	if req.Mode == run.ModeReviewOnly {
		target = stage.Review
	}
	if err := prior.CheckResumable(target); err != nil {
		return nil, nil, nil, errors.ResumeUnsatisfiable(err)
	}
	if err := o.checkOutputs(ctx, prior, target); err != nil {
		return nil, nil, nil, err
	}

	// An interrupted loop continues from its recorded round count so a crash
	// cannot buy a draft extra review rounds. A loop that completed is
	// re-run from round zero when explicitly targeted.
	resume := run.ResumeInfo{
		From:    target,
		Mode:    req.Mode,
		DryRun:  req.DryRun,
		Ceiling: o.cfg.IterationCeiling,
	}
	if !prior.LoopComplete && req.Mode == run.ModeResume {
		switch target {
		case stage.Review:
			resume.LoopRounds = prior.LoopRounds
			resume.KeepDraftStates = true
		case stage.Drafts:
			resume.LoopRounds = prior.LoopRounds
		}
	}

	plan := stage.NewPlan(target)
	resume.Fingerprint = o.fingerprint(plan)
	if prior.Fingerprint.ConfigHash != "" && prior.Fingerprint.ConfigHash != resume.Fingerprint.ConfigHash {
		o.log.Warn("run %s: resuming with a different pipeline configuration than it started with", req.RunID)
	}

	rc := o.newRunContext(req, manifest)
	state, err := rc.recorder.Append(ctx, run.Event{Type: run.EventResumeStarted, Resume: &resume})
	if err != nil {
		rc.recorder.Close()
		return nil, nil, nil, err
	}
	o.log.Info("run %s: resuming at %s (loop rounds %d, keep draft states %t)",
		req.RunID, target, resume.LoopRounds, resume.KeepDraftStates)
	return rc, state, plan, nil
}

// checkOutputs verifies that the recorded outputs of every stage before
// target are still in the artifact store.
func (o *Orchestrator) checkOutputs(ctx context.Context, state *run.State, target stage.Name) error {
	for _, name := range target.Before() {
		for _, ref := range state.Stages[name].Outputs {
			ok, err := o.deps.Artifacts.Exists(ctx, state.RunID, ref)
			if err != nil {
				return errors.ResumeUnsatisfiable(fmt.Errorf("%w: stage %s output %s: %v",
					core.ErrResumeUnsatisfiable, name, ref.Path(), err))
			}
			if !ok {
				return errors.ResumeUnsatisfiable(fmt.Errorf("%w: stage %s output %s is missing",
					core.ErrResumeUnsatisfiable, name, ref.Path()))
			}
		}
	}
	return nil
}

func (o *Orchestrator) newRunContext(req Request, manifest *run.Manifest) *runContext {
	recorder := StartRecorder(manifest, o.deps.Manifests, o.deps.Clock, o.log)
	return &runContext{
		req:      req,
		runID:    manifest.RunID,
		recorder: recorder,
		executor: NewExecutor(o.deps.Artifacts, recorder, o.deps.Clock, o.log),
	}
}

func (o *Orchestrator) fingerprint(plan *stage.Plan) run.RunFingerprint {
	return run.NewRunFingerprint(plan.Hash(), o.cfg.Hash(), o.deps.CodeVersion)
}

func (o *Orchestrator) runStage(ctx context.Context, rc *runContext, state *run.State, name stage.Name) (*run.State, error) {
	switch name {
	case stage.Review:
		return o.runLoop(ctx, rc, state)
	case stage.Export:
		return o.runExport(ctx, rc, state)
	}
	spec, mode := o.specFor(name, rc.req)
	cfg := stage.Config{RunID: rc.runID, Mode: mode}
	return rc.executor.Execute(ctx, state, spec, cfg)
}

// specFor declares each stage's contract.
func (o *Orchestrator) specFor(name stage.Name, req Request) (StageSpec, string) {
	s := o.deps.Stages
	switch name {
	case stage.Detection:
		return StageSpec{Stage: s.Detection, Produces: []core.ArtifactKind{core.ArtifactTicket}}, ""
	case stage.Hints:
		return StageSpec{
			Stage:    WithIdeas(s.Hints, req.Ideas),
			Requires: []stage.Requirement{{Name: InputTickets, From: stage.Detection, Kind: core.ArtifactTicket}},
			Produces: []core.ArtifactKind{core.ArtifactHint},
		}, ""
	case stage.Concepts:
		return StageSpec{
			Stage: s.Concepts,
			Requires: []stage.Requirement{
				{Name: InputTickets, From: stage.Detection, Kind: core.ArtifactTicket},
				{Name: InputHints, From: stage.Hints, Kind: core.ArtifactHint},
			},
			Produces: []core.ArtifactKind{core.ArtifactConcept},
			Prepare:  CapSyntheticTickets(o.cfg.SyntheticRatio),
		}, ""
	default:
		return StageSpec{
			Stage:    s.Drafts,
			Requires: []stage.Requirement{{Name: InputConcepts, From: stage.Concepts, Kind: core.ArtifactConcept}},
			Produces: []core.ArtifactKind{core.ArtifactDraft},
			Prepare: DedupConcepts(curation.Deduplicator{
				Enabled:   o.cfg.DedupEnabled,
				Threshold: o.cfg.DedupThreshold,
			}),
			Verify: DraftsReferenceConcepts,
		}, ModeGenerate
	}
}

// importTickets commits externally supplied tickets as the detection stage's
// output, so later resumes see detection as completed.
func (o *Orchestrator) importTickets(ctx context.Context, rc *runContext, tickets []research.Ticket) (*run.State, error) {
	started := o.deps.Clock()
	if len(tickets) == 0 {
		return nil, rc.executor.Fail(ctx, stage.Detection, core.NewContractError(string(stage.Detection), "no tickets to import"))
	}
	arts := make([]core.Artifact, 0, len(tickets))
	for _, t := range tickets {
		a, err := core.NewArtifact(core.ArtifactTicket, t.ID, t)
		if err == nil {
			err = artifacts.ValidateArtifact(a)
		}
		if err != nil {
			return nil, rc.executor.Fail(ctx, stage.Detection, core.NewContractError(string(stage.Detection), "imported ticket: "+err.Error()))
		}
		arts = append(arts, a)
	}
	refs, err := o.deps.Artifacts.Commit(ctx, rc.runID, string(stage.Detection), arts)
	if err != nil {
		return nil, rc.executor.Fail(ctx, stage.Detection, fmt.Errorf("commit imported tickets: %w", err))
	}
	finished := o.deps.Clock()
	return rc.recorder.Append(ctx, run.Event{Type: run.EventStageCompleted, Execution: &run.StageExecution{
		Stage:      stage.Detection,
		Status:     stage.StatusOK,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Outputs:    refs,
		Imported:   true,
	}})
}

func (o *Orchestrator) runLoop(ctx context.Context, rc *runContext, state *run.State) (*run.State, error) {
	started := o.deps.Clock()
	draftRefs, _ := state.Outputs(stage.Drafts, core.ArtifactDraft)

	tracked := make(map[research.DraftID]run.DraftStatus, len(draftRefs))
	var order []research.DraftID
	for _, ref := range draftRefs {
		a, err := o.deps.Artifacts.Load(ctx, rc.runID, ref)
		if err != nil {
			return nil, rc.executor.Fail(ctx, stage.Review, core.NewContractError(string(stage.Review), err.Error()))
		}
		var d research.Draft
		if err := a.Decode(&d); err != nil {
			return nil, rc.executor.Fail(ctx, stage.Review, core.NewContractError(string(stage.Review), err.Error()))
		}
		tracked[d.ID] = run.DraftStatus{DraftID: d.ID, ConceptID: d.ConceptID, State: run.DraftDrafted, Version: d.Version, Ref: ref}
		order = append(order, d.ID)
	}
	// Lineages already advanced by an interrupted loop continue where they were.
	for id, st := range state.Drafts {
		if _, ok := tracked[id]; ok {
			tracked[id] = st
		}
	}
	list := make([]run.DraftStatus, 0, len(order))
	for _, id := range order {
		list = append(list, tracked[id])
	}

	loop := NewLoopController(o.deps.Artifacts, rc.recorder, rc.executor, o.deps.Stages.Review, o.deps.Stages.Drafts,
		LoopConfig{Ceiling: o.cfg.IterationCeiling, Workers: o.cfg.ReviewWorkers}, o.log)
	outcome, err := loop.Run(ctx, rc.runID, state.LoopRounds, list)
	if err != nil {
		return nil, rc.executor.Fail(ctx, stage.Review, err)
	}

	current, err := rc.recorder.State(ctx)
	if err != nil {
		return nil, err
	}
	finished := o.deps.Clock()
	return rc.recorder.Append(ctx, run.Event{Type: run.EventStageCompleted, Execution: &run.StageExecution{
		Stage:      stage.Review,
		Status:     stage.StatusOK,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Inputs:     draftRefs,
		Outputs:    current.LoopOutputs,
		Loop:       &run.LoopSummary{Rounds: outcome.Rounds, Drafts: outcome.Drafts},
	}})
}

func (o *Orchestrator) runExport(ctx context.Context, rc *runContext, state *run.State) (*run.State, error) {
	started := o.deps.Clock()
	gate := NewExportGate(o.deps.Artifacts, rc.recorder, rc.executor, o.deps.Stages.Export, o.deps.Clock, o.log)
	refs, err := gate.Run(ctx, state, GateOptions{Strict: o.cfg.StrictExport, DryRun: rc.req.DryRun})
	if err != nil {
		return nil, rc.executor.Fail(ctx, stage.Export, err)
	}
	finished := o.deps.Clock()
	return rc.recorder.Append(ctx, run.Event{Type: run.EventStageCompleted, Execution: &run.StageExecution{
		Stage:      stage.Export,
		Status:     stage.StatusOK,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Outputs:    refs,
	}})
}

// finishFailed closes a run after a halting error. The error returned is
// the original one, which already names the stage.
func (o *Orchestrator) finishFailed(ctx context.Context, rc *runContext, cause error) (*Outcome, error) {
	state, err := rc.recorder.State(ctx)
	if err == nil {
		if next, aerr := rc.recorder.Append(ctx, run.Event{Type: run.EventRunFailed, Failure: state.Failure}); aerr == nil {
			state = next
		} else {
			o.log.Error("run %s: could not record run failure: %v", rc.runID, aerr)
		}
	}
	if state == nil {
		return nil, cause
	}
	return o.finish(ctx, state), cause
}

func (o *Orchestrator) finish(ctx context.Context, state *run.State) *Outcome {
	summary := Summarize(state)
	if o.deps.Index != nil {
		if err := o.deps.Index.Upsert(ctx, summary); err != nil {
			o.log.Warn("run %s: run index update failed: %v", state.RunID, err)
		}
	}
	o.log.Info("run %s %s: %d passed, %d rejected, %d downgraded, %d exported",
		state.RunID, state.Status, summary.Passed, summary.Rejected, summary.Downgraded, summary.Exported)
	return &Outcome{RunID: state.RunID, State: state, Summary: summary}
}
