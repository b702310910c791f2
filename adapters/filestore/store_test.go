package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func ticket(id string, score float64) core.Artifact {
	return core.MustArtifact(core.ArtifactTicket, id, research.Ticket{
		ID: id, HypothesisType: research.HypothesisBreakout,
		EntryFamily: research.EntryPivotBreakout, PriorityScore: score,
	})
}

func TestCommitAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	refs, err := s.Commit(ctx, "run-a", "detection", []core.Artifact{ticket("t1", 70), ticket("t2", 40)})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "detection/ticket/t1.json", refs[0].Path())

	a, err := s.Load(ctx, "run-a", refs[1])
	require.NoError(t, err)
	var tk research.Ticket
	require.NoError(t, a.Decode(&tk))
	assert.Equal(t, "t2", tk.ID)

	ok, err := s.Exists(ctx, "run-a", refs[0])
	require.NoError(t, err)
	assert.True(t, ok)

	listed, err := s.List(ctx, "run-a", "detection")
	require.NoError(t, err)
	assert.Equal(t, refs, listed)
}

func TestCommitReplacesWholeScope(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Commit(ctx, "run-b", "detection", []core.Artifact{ticket("t1", 70), ticket("t2", 40)})
	require.NoError(t, err)
	_, err = s.Commit(ctx, "run-b", "detection", []core.Artifact{ticket("t3", 10)})
	require.NoError(t, err)

	listed, err := s.List(ctx, "run-b", "detection")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "t3", listed[0].Key)

	staging, err := os.ReadDir(filepath.Join(s.RunDir("run-b"), stagingDir))
	require.NoError(t, err)
	assert.Empty(t, staging, "staging directories are cleaned up")
}

func TestCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Commit(ctx, "run-c", "hints", []core.Artifact{ticket("t1", 70)})
	require.NoError(t, err)

	bad := ticket("../escape", 1)
	_, err = s.Commit(ctx, "run-c", "hints", []core.Artifact{ticket("t2", 50), bad})
	require.Error(t, err)

	listed, err := s.List(ctx, "run-c", "hints")
	require.NoError(t, err)
	require.Len(t, listed, 1, "failed commit leaves previous contents")
	assert.Equal(t, "t1", listed[0].Key)

	_, err = s.Commit(ctx, "run-c", "hints", []core.Artifact{ticket("t2", 50), ticket("t2", 50)})
	assert.Error(t, err, "duplicate keys in one commit")
}

func TestLoadDetectsMissingAndTampered(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Load(ctx, "run-d", core.ArtifactRef{Scope: "detection", Kind: core.ArtifactTicket, Key: "nope"})
	assert.True(t, errors.Is(err, core.ErrArtifactNotFound))

	refs, err := s.Commit(ctx, "run-d", "detection", []core.Artifact{ticket("t1", 70)})
	require.NoError(t, err)
	path := filepath.Join(s.RunDir("run-d"), filepath.FromSlash(refs[0].Path()))
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"t1"}`), 0o644))

	_, err = s.Load(ctx, "run-d", refs[0])
	assert.True(t, errors.Is(err, core.ErrHashMismatch))
}

func TestManifestAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.LoadEvents(ctx, "run-e")
	assert.True(t, errors.Is(err, core.ErrRunNotFound))

	m := run.NewManifest("run-e")
	e1 := m.Append(run.Event{Type: run.EventRunStarted, Run: &run.RunInfo{RunID: "run-e", Mode: run.ModeFull}}, core.Now())
	e2 := m.Append(run.Event{Type: run.EventStageCompleted, Execution: &run.StageExecution{Stage: stage.Detection, Status: stage.StatusOK}}, core.Now())
	require.NoError(t, s.AppendEvent(ctx, "run-e", e1))
	require.NoError(t, s.AppendEvent(ctx, "run-e", e2))

	events, err := s.LoadEvents(ctx, "run-e")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, run.EventStageCompleted, events[1].Type)

	state, err := m.State()
	require.NoError(t, err)
	require.NoError(t, s.WriteSnapshot(ctx, "run-e", state))
	_, err = os.Stat(filepath.Join(s.RunDir("run-e"), manifestSnapshot))
	assert.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.RunID{"run-e"}, runs)
}

func TestManifestTornTail(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	m := run.NewManifest("run-f")
	e1 := m.Append(run.Event{Type: run.EventRunStarted, Run: &run.RunInfo{RunID: "run-f", Mode: run.ModeFull}}, core.Now())
	require.NoError(t, s.AppendEvent(ctx, "run-f", e1))

	log := filepath.Join(s.RunDir("run-f"), manifestLog)
	f, err := os.OpenFile(log, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"type":"stage_comp`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.LoadEvents(ctx, "run-f")
	require.NoError(t, err)
	assert.Len(t, events, 1, "torn line is ignored")

	e2 := m.Append(run.Event{Type: run.EventRunCompleted}, core.Now())
	require.NoError(t, s.AppendEvent(ctx, "run-f", e2))
	events, err = s.LoadEvents(ctx, "run-f")
	require.NoError(t, err)
	require.Len(t, events, 2)

	_, err = run.LoadManifest("run-f", events)
	assert.NoError(t, err)
}
