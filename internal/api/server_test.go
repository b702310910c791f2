package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/adapters/memstore"
	"hypoforge/app"
	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordedRun drives one full run through scripted stages and returns the
// store holding its manifest.
func recordedRun(t *testing.T) (*memstore.Store, core.RunID) {
	t.Helper()
	concept := testkit.Concept(research.HypothesisBreakout, research.MechanismFlow, research.RegimeRiskOn,
		research.EntryPivotBreakout, true, 0, "close_above_pivot", "volume_above_avg")
	store := memstore.New()
	orch := app.NewOrchestrator(app.Deps{
		Artifacts: store,
		Manifests: store,
		Stages: app.Stages{
			Detection: testkit.Detector(testkit.Ticket("t1", research.HypothesisBreakout, research.EntryPivotBreakout, 80, false)),
			Hints:     testkit.Hints(),
			Concepts:  testkit.Concepts(concept),
			Drafts:    testkit.Drafter(),
			Review:    testkit.NewReviewer(nil),
			Export:    testkit.Exporter(),
		},
		Clock:  testkit.Clock(),
		Logger: internal.NewNopLogger(),
	}, config.Defaults().Pipeline)

	out, err := orch.Run(context.Background(), app.Request{Mode: run.ModeFull, RunID: "run-api"})
	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, out.State.Status)
	return store, out.RunID
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_ListRunsFromManifests(t *testing.T) {
	store, id := recordedRun(t)
	s := NewServer(store, nil, nil)

	w := get(t, s, "/runs")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Runs []run.Summary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, id, body.Runs[0].RunID)
	assert.Equal(t, run.StatusCompleted, body.Runs[0].Status)
	assert.Equal(t, 1, body.Runs[0].Passed)

	w = get(t, s, "/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeIndex struct {
	summaries []run.Summary
	limit     int
}

func (f *fakeIndex) Upsert(context.Context, run.Summary) error { return nil }

func (f *fakeIndex) Get(context.Context, core.RunID) (*run.Summary, error) {
	return nil, core.ErrRunNotFound
}

func (f *fakeIndex) List(_ context.Context, limit int) ([]run.Summary, error) {
	f.limit = limit
	return f.summaries, nil
}

func TestServer_ListRunsFromIndex(t *testing.T) {
	idx := &fakeIndex{summaries: []run.Summary{{RunID: "from-index"}}}
	s := NewServer(memstore.New(), idx, nil)

	w := get(t, s, "/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "from-index")
	assert.Equal(t, 5, idx.limit)
}

func TestServer_State(t *testing.T) {
	store, id := recordedRun(t)
	s := NewServer(store, nil, nil)

	w := get(t, s, "/runs/"+string(id)+"/state")
	require.Equal(t, http.StatusOK, w.Code)

	var state run.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, id, state.RunID)
	assert.Len(t, state.ExportSet(), 1)

	w = get(t, s, "/runs/"+string(id))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestServer_Events(t *testing.T) {
	store, id := recordedRun(t)
	s := NewServer(store, nil, nil)

	w := get(t, s, "/runs/"+string(id)+"/events")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Events []run.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.NotEmpty(t, all.Events)
	assert.Equal(t, run.EventRunStarted, all.Events[0].Type)
	assert.Equal(t, run.EventRunCompleted, all.Events[len(all.Events)-1].Type)

	w = get(t, s, "/runs/"+string(id)+"/events?after=2")
	require.Equal(t, http.StatusOK, w.Code)
	var tail struct {
		Events []run.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tail))
	assert.Len(t, tail.Events, len(all.Events)-2)
	assert.Equal(t, int64(3), tail.Events[0].Seq)
}

func TestServer_Report(t *testing.T) {
	store, id := recordedRun(t)
	s := NewServer(store, nil, nil)

	w := get(t, s, "/runs/"+string(id)+"/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Run "+string(id))

	w = get(t, s, "/runs/"+string(id)+"/report?format=json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"confidence"`)
}

func TestServer_UnknownRun(t *testing.T) {
	s := NewServer(memstore.New(), nil, nil)
	for _, path := range []string{"/runs/nope", "/runs/nope/state", "/runs/nope/events", "/runs/nope/report", "/runs/nope/events/stream"} {
		w := get(t, s, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestServer_EventStreamEndsWithRun(t *testing.T) {
	store, id := recordedRun(t)
	srv := httptest.NewServer(NewServer(store, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/" + string(id) + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", mediaType)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "event:run_started"), text)
	assert.Contains(t, text, "event:run_completed")
}
