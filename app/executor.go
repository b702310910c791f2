package app

import (
	"context"
	"fmt"

	"hypoforge/domain/artifacts"
	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal"
	"hypoforge/internal/errors"
	"hypoforge/ports"
)

// InputTransform rewrites a stage's resolved inputs before it runs. Reports
// it returns are committed with the stage's outputs.
type InputTransform func(ctx context.Context, in stage.Inputs) (stage.Inputs, []core.Artifact, error)

// OutputCheck verifies cross-artifact invariants of a stage's outputs against
// its inputs.
type OutputCheck func(in stage.Inputs, out []core.Artifact) error

// StageSpec binds a stage implementation to its declared contract.
type StageSpec struct {
	Stage    ports.Stage
	Requires []stage.Requirement
	Produces []core.ArtifactKind
	Prepare  InputTransform
	Verify   OutputCheck
}

// Executor invokes stages through the stage contract. Its only side effects
// go to the artifact store and the run manifest.
type Executor struct {
	store    ports.ArtifactStore
	recorder *ManifestRecorder
	clock    core.Clock
	log      *internal.Logger
}

// NewExecutor creates an executor writing to store and recorder
func NewExecutor(store ports.ArtifactStore, recorder *ManifestRecorder, clock core.Clock, log *internal.Logger) *Executor {
	return &Executor{store: store, recorder: recorder, clock: clock, log: log}
}

// Execute resolves inputs, runs the stage, commits its outputs atomically
// under the stage's scope and records the execution. Any error returned has
// already been recorded as a stage failure.
func (e *Executor) Execute(ctx context.Context, state *run.State, spec StageSpec, cfg stage.Config) (*run.State, error) {
	name := spec.Stage.Name()
	started := e.clock()

	inputs, inputRefs, err := e.Resolve(ctx, state, name, spec.Requires)
	if err != nil {
		return nil, e.Fail(ctx, name, err)
	}
	var reports []core.Artifact
	if spec.Prepare != nil {
		inputs, reports, err = spec.Prepare(ctx, inputs)
		if err != nil {
			return nil, e.Fail(ctx, name, core.NewContractError(string(name), err.Error()))
		}
		for _, a := range reports {
			if err := artifacts.ValidateArtifact(a); err != nil {
				return nil, e.Fail(ctx, name, core.NewContractError(string(name), "report: "+err.Error()))
			}
		}
	}

	outputs, err := e.Invoke(ctx, spec.Stage, inputs, cfg, spec.Produces...)
	if err != nil {
		return nil, e.Fail(ctx, name, err)
	}
	if spec.Verify != nil {
		if err := spec.Verify(inputs, outputs); err != nil {
			return nil, e.Fail(ctx, name, core.NewContractError(string(name), err.Error()))
		}
	}

	refs, err := e.store.Commit(ctx, cfg.RunID, string(name), append(outputs, reports...))
	if err != nil {
		return nil, e.Fail(ctx, name, fmt.Errorf("commit outputs: %w", err))
	}

	finished := e.clock()
	exec := run.StageExecution{
		Stage:      name,
		Status:     stage.StatusOK,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Inputs:     inputRefs,
		Outputs:    refs,
	}
	next, err := e.recorder.Append(ctx, run.Event{Type: run.EventStageCompleted, Execution: &exec})
	if err != nil {
		return nil, errors.Wrapf(err, "record %s completion", name)
	}
	e.log.Info("stage %s completed: %d outputs in %dms", name, len(refs), exec.DurationMs)
	return next, nil
}

// Resolve loads every declared input from the outputs of the stages that
// produced them. A missing or malformed required input is a contract
// violation and the stage is never invoked.
func (e *Executor) Resolve(ctx context.Context, state *run.State, name stage.Name, reqs []stage.Requirement) (stage.Inputs, []core.ArtifactRef, error) {
	inputs := make(stage.Inputs, len(reqs))
	var used []core.ArtifactRef
	for _, req := range reqs {
		refs, ok := state.Outputs(req.From, req.Kind)
		if !ok {
			if req.Optional {
				continue
			}
			return nil, nil, core.NewContractError(string(name),
				fmt.Sprintf("input %q needs %s artifacts from stage %s, which has not completed", req.Name, req.Kind, req.From))
		}
		loaded := make([]core.Artifact, 0, len(refs))
		for _, ref := range refs {
			a, err := e.store.Load(ctx, state.RunID, ref)
			if err != nil {
				return nil, nil, core.NewContractError(string(name), fmt.Sprintf("input %q: %v", req.Name, err))
			}
			if err := artifacts.ValidateArtifact(a); err != nil {
				return nil, nil, core.NewContractError(string(name), fmt.Sprintf("input %q is malformed: %v", req.Name, err))
			}
			loaded = append(loaded, a)
		}
		inputs[req.Name] = loaded
		used = append(used, refs...)
	}
	return inputs, used, nil
}

// Invoke runs st once and validates its outputs: the stage must report ok,
// and every output must be of a declared kind and pass its schema.
func (e *Executor) Invoke(ctx context.Context, st ports.Stage, inputs stage.Inputs, cfg stage.Config, produces ...core.ArtifactKind) (outputs []core.Artifact, err error) {
	name := st.Name()
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = fmt.Errorf("%w: stage %s panicked: %v", core.ErrStageFailed, name, r)
		}
	}()

	result := st.Run(ctx, inputs, cfg)
	switch result.Status {
	case stage.StatusOK:
	case stage.StatusFailed:
		reason := result.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s: %s", core.ErrStageFailed, name, reason)
	default:
		return nil, core.NewContractError(string(name), fmt.Sprintf("unknown status %q", result.Status))
	}

	allowed := make(map[core.ArtifactKind]bool, len(produces))
	for _, k := range produces {
		allowed[k] = true
	}
	seen := make(map[string]bool, len(result.Outputs))
	for _, a := range result.Outputs {
		if !allowed[a.Kind] {
			return nil, core.NewContractError(string(name), fmt.Sprintf("undeclared output kind %q", a.Kind))
		}
		if err := artifacts.ValidateArtifact(a); err != nil {
			return nil, core.NewContractError(string(name), "malformed output: "+err.Error())
		}
		id := string(a.Kind) + "/" + a.Key
		if seen[id] {
			return nil, core.NewContractError(string(name), "duplicate output "+id)
		}
		seen[id] = true
	}
	return result.Outputs, nil
}

// Fail records a stage failure and returns the run-halting error.
func (e *Executor) Fail(ctx context.Context, name stage.Name, cause error) error {
	kind := run.FailureStage
	if core.IsContractViolation(cause) {
		kind = run.FailureContract
	}
	e.log.Error("stage %s failed (%s): %v", name, kind, cause)
	failure := run.Failure{Stage: name, Kind: kind, Reason: cause.Error()}
	if _, err := e.recorder.Append(ctx, run.Event{Type: run.EventStageFailed, Failure: &failure}); err != nil {
		e.log.Error("could not record failure of stage %s: %v", name, err)
	}
	return errors.StageError(string(name), cause)
}
