package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/adapters/memstore"
	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal"
	"hypoforge/internal/errors"
	"hypoforge/internal/testkit"
)

// startedRun opens a run on store and returns a recorder and executor for it.
func startedRun(t *testing.T, store *memstore.Store) (*ManifestRecorder, *Executor, *run.State) {
	t.Helper()
	runID := core.NewRunID()
	clock := testkit.Clock()
	log := internal.NewNopLogger()
	rec := StartRecorder(run.NewManifest(runID), store, clock, log)
	t.Cleanup(rec.Close)
	state, err := rec.Append(context.Background(), run.Event{Type: run.EventRunStarted, Run: &run.RunInfo{
		RunID: runID, Mode: run.ModeFull, Plan: stage.Order(), Ceiling: 2,
	}})
	require.NoError(t, err)
	return rec, NewExecutor(store, rec, clock, log), state
}

func TestRecorder_ConcurrentAppendsAreSequenced(t *testing.T) {
	store := memstore.New()
	rec, _, _ := startedRun(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := rec.Append(context.Background(), run.Event{Type: run.EventReviewRecorded, Review: &run.ReviewRecord{
				DraftID: research.DraftID(fmt.Sprintf("d%02d", i)), DraftVersion: 1, Verdict: research.VerdictPass,
			}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events, err := store.LoadEvents(context.Background(), rec.RunID())
	require.NoError(t, err)
	require.Len(t, events, 17)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	_, err = run.LoadManifest(rec.RunID(), events)
	assert.NoError(t, err)
}

func TestRecorder_RejectsInvalidEventAndStaysUsable(t *testing.T) {
	store := memstore.New()
	rec, _, _ := startedRun(t, store)

	review := run.ReviewRecord{DraftID: "d", DraftVersion: 1, Verdict: research.VerdictPass}
	_, err := rec.Append(context.Background(), run.Event{Type: run.EventReviewRecorded, Review: &review})
	require.NoError(t, err)
	_, err = rec.Append(context.Background(), run.Event{Type: run.EventReviewRecorded, Review: &review})
	require.Error(t, err, "second review of the same version in one round")

	state, err := rec.Append(context.Background(), run.Event{Type: run.EventIterationCompleted, Iteration: &run.IterationRecord{Iteration: 0}})
	require.NoError(t, err)
	assert.Len(t, state.Reviews, 1)
	assert.Equal(t, int64(3), state.LastSeq)
	assert.NotNil(t, store.Snapshot(rec.RunID()), "checkpoint events write a snapshot")
}

func TestRecorder_ClosedRejectsAppends(t *testing.T) {
	rec, _, _ := startedRun(t, memstore.New())
	rec.Close()
	_, err := rec.Append(context.Background(), run.Event{Type: run.EventRunCompleted})
	assert.ErrorIs(t, err, ErrRecorderClosed)
	rec.Close()
}

func ticketArtifacts(tickets ...research.Ticket) []core.Artifact {
	out := make([]core.Artifact, 0, len(tickets))
	for _, tk := range tickets {
		out = append(out, core.MustArtifact(core.ArtifactTicket, tk.ID, tk))
	}
	return out
}

func TestExecutor_CommitsOutputsAndRecordsCompletion(t *testing.T) {
	store := memstore.New()
	_, exec, state := startedRun(t, store)

	spec := StageSpec{Stage: testkit.Detector(defaultTickets()...), Produces: []core.ArtifactKind{core.ArtifactTicket}}
	next, err := exec.Execute(context.Background(), state, spec, stage.Config{RunID: state.RunID})
	require.NoError(t, err)

	require.True(t, next.Completed(stage.Detection))
	refs, _ := next.Outputs(stage.Detection, core.ArtifactTicket)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.Equal(t, string(stage.Detection), ref.Scope)
		ok, err := store.Exists(context.Background(), state.RunID, ref)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestExecutor_ContractViolations(t *testing.T) {
	ticket := testkit.Ticket("t1", research.HypothesisBreakout, research.EntryPivotBreakout, 50, false)
	tests := []struct {
		name string
		spec func() StageSpec
		want string
	}{
		{
			name: "missing upstream stage",
			spec: func() StageSpec {
				return StageSpec{
					Stage:    testkit.Hints(),
					Requires: []stage.Requirement{{Name: InputTickets, From: stage.Detection, Kind: core.ArtifactTicket}},
					Produces: []core.ArtifactKind{core.ArtifactHint},
				}
			},
			want: "has not completed",
		},
		{
			name: "undeclared output kind",
			spec: func() StageSpec {
				return StageSpec{Stage: testkit.Detector(ticket), Produces: []core.ArtifactKind{core.ArtifactHint}}
			},
			want: "undeclared output kind",
		},
		{
			name: "malformed output",
			spec: func() StageSpec {
				bad := ticket
				bad.PriorityScore = 400
				return StageSpec{Stage: testkit.Detector(bad), Produces: []core.ArtifactKind{core.ArtifactTicket}}
			},
			want: "malformed output",
		},
		{
			name: "key does not match payload",
			spec: func() StageSpec {
				st := testkit.Func(stage.Detection, func(context.Context, stage.Inputs, stage.Config) stage.Result {
					return stage.OK(core.MustArtifact(core.ArtifactTicket, "other", ticket))
				})
				return StageSpec{Stage: st, Produces: []core.ArtifactKind{core.ArtifactTicket}}
			},
			want: "does not match",
		},
		{
			name: "duplicate output",
			spec: func() StageSpec {
				return StageSpec{Stage: testkit.Detector(ticket, ticket), Produces: []core.ArtifactKind{core.ArtifactTicket}}
			},
			want: "duplicate output",
		},
		{
			name: "failed output check",
			spec: func() StageSpec {
				return StageSpec{
					Stage:    testkit.Detector(ticket),
					Produces: []core.ArtifactKind{core.ArtifactTicket},
					Verify:   func(stage.Inputs, []core.Artifact) error { return fmt.Errorf("tickets must be synthetic") },
				}
			},
			want: "tickets must be synthetic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			rec, exec, state := startedRun(t, store)
			spec := tt.spec()

			_, err := exec.Execute(context.Background(), state, spec, stage.Config{RunID: state.RunID})
			require.Error(t, err)
			assert.Equal(t, errors.CodeContractViolation, errors.GetCode(err))
			assert.Contains(t, err.Error(), tt.want)

			after, err := rec.State(context.Background())
			require.NoError(t, err)
			require.NotNil(t, after.Failure)
			assert.Equal(t, spec.Stage.Name(), after.Failure.Stage)
			assert.Equal(t, run.FailureContract, after.Failure.Kind)
			assert.False(t, after.Completed(spec.Stage.Name()))
			assert.Empty(t, store.Scopes(state.RunID), "nothing committed")
		})
	}
}

func TestExecutor_StageFailureAndPanic(t *testing.T) {
	for name, st := range map[string]stage.Result{"failed": stage.Failed("quota exceeded")} {
		t.Run(name, func(t *testing.T) {
			_, exec, state := startedRun(t, memstore.New())
			spec := StageSpec{Stage: testkit.Func(stage.Detection, func(context.Context, stage.Inputs, stage.Config) stage.Result { return st })}
			_, err := exec.Execute(context.Background(), state, spec, stage.Config{RunID: state.RunID})
			require.Error(t, err)
			assert.Equal(t, errors.CodeStageFailed, errors.GetCode(err))
			assert.Contains(t, err.Error(), "quota exceeded")
		})
	}

	t.Run("panic", func(t *testing.T) {
		_, exec, state := startedRun(t, memstore.New())
		spec := StageSpec{Stage: testkit.Func(stage.Detection, func(context.Context, stage.Inputs, stage.Config) stage.Result {
			panic("nil map")
		})}
		_, err := exec.Execute(context.Background(), state, spec, stage.Config{RunID: state.RunID})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrStageFailed)
		assert.Contains(t, err.Error(), "panicked")
	})
}

func TestExecutor_ResolveLoadsDeclaredInputs(t *testing.T) {
	store := memstore.New()
	_, exec, state := startedRun(t, store)
	state, err := exec.Execute(context.Background(), state,
		StageSpec{Stage: testkit.Detector(defaultTickets()...), Produces: []core.ArtifactKind{core.ArtifactTicket}},
		stage.Config{RunID: state.RunID})
	require.NoError(t, err)

	inputs, refs, err := exec.Resolve(context.Background(), state, stage.Hints, []stage.Requirement{
		{Name: InputTickets, From: stage.Detection, Kind: core.ArtifactTicket},
		{Name: InputHints, From: stage.Hints, Kind: core.ArtifactHint, Optional: true},
	})
	require.NoError(t, err)
	assert.Len(t, inputs.Get(InputTickets), 2)
	assert.Nil(t, inputs.Get(InputHints))
	assert.Len(t, refs, 2)
}

func TestCapSyntheticTickets_Transform(t *testing.T) {
	tickets := []research.Ticket{
		testkit.Ticket("r1", research.HypothesisBreakout, research.EntryPivotBreakout, 50, false),
		testkit.Ticket("s1", research.HypothesisBreakout, research.EntryPivotBreakout, 10, true),
		testkit.Ticket("s2", research.HypothesisBreakout, research.EntryPivotBreakout, 90, true),
		testkit.Ticket("s3", research.HypothesisBreakout, research.EntryPivotBreakout, 40, true),
		testkit.Ticket("s4", research.HypothesisBreakout, research.EntryPivotBreakout, 60, true),
	}
	in := stage.Inputs{InputTickets: ticketArtifacts(tickets...), InputHints: nil}

	out, reports, err := CapSyntheticTickets(1.0)(context.Background(), in)
	require.NoError(t, err)
	var kept []string
	for _, a := range out.Get(InputTickets) {
		kept = append(kept, a.Key)
	}
	assert.Equal(t, []string{"r1", "s2", "s3", "s4"}, kept, "input order preserved")
	require.Len(t, reports, 1)
	assert.Equal(t, core.ArtifactVolumeReport, reports[0].Kind)
	assert.Len(t, in.Get(InputTickets), 5, "caller's inputs untouched")
}

func TestDraftsReferenceConcepts(t *testing.T) {
	in := stage.Inputs{InputConcepts: {core.MustArtifact(core.ArtifactConcept, string(conceptA.ID), conceptA)}}
	good := research.Draft{ID: draftA, Version: 1, ConceptID: conceptA.ID}
	assert.NoError(t, DraftsReferenceConcepts(in, []core.Artifact{core.MustArtifact(core.ArtifactDraft, good.VersionKey(), good)}))

	stray := research.Draft{ID: draftB, Version: 1, ConceptID: conceptB.ID}
	assert.Error(t, DraftsReferenceConcepts(in, []core.Artifact{core.MustArtifact(core.ArtifactDraft, stray.VersionKey(), stray)}))

	late := good
	late.Version = 2
	assert.Error(t, DraftsReferenceConcepts(in, []core.Artifact{core.MustArtifact(core.ArtifactDraft, late.VersionKey(), late)}))
}

func TestEligible(t *testing.T) {
	draft := research.Draft{ID: draftA, Version: 1, EntryFamily: research.EntryPivotBreakout, ExportReadyV1: true}
	pass := &run.ReviewRecord{Verdict: research.VerdictPass}
	warned := &run.ReviewRecord{Verdict: research.VerdictPass, Warned: true}
	passed := run.DraftStatus{State: run.DraftPassed}

	researchOnly := draft
	researchOnly.EntryFamily = research.EntryEventWatch
	notReady := draft
	notReady.ExportReadyV1 = false

	tests := []struct {
		name   string
		status run.DraftStatus
		draft  research.Draft
		last   *run.ReviewRecord
		strict bool
		want   bool
	}{
		{"passed", passed, draft, pass, false, true},
		{"passed strict", passed, draft, pass, true, true},
		{"warned lenient", passed, draft, warned, false, true},
		{"warned strict", passed, draft, warned, true, false},
		{"downgraded", run.DraftStatus{State: run.DraftDowngraded}, draft, pass, false, false},
		{"rejected", run.DraftStatus{State: run.DraftRejected}, draft, pass, false, false},
		{"no review", passed, draft, nil, false, false},
		{"family off allow-list", passed, researchOnly, pass, false, false},
		{"not export-ready", passed, notReady, pass, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Eligible(tt.status, tt.draft, tt.last, tt.strict)
			assert.Equal(t, tt.want, got, reason)
			assert.NotEmpty(t, reason)
		})
	}
}
