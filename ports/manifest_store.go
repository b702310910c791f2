package ports

import (
	"context"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
)

// ManifestWriter provides append-only write access to run manifests.
// AppendEvent must not return before the event is durable.
type ManifestWriter interface {
	AppendEvent(ctx context.Context, runID core.RunID, event run.Event) error
	WriteSnapshot(ctx context.Context, runID core.RunID, state *run.State) error
}

// ManifestReader provides read-only access for resume, audit and the API.
type ManifestReader interface {
	// LoadEvents returns core.ErrRunNotFound when the run has no manifest.
	LoadEvents(ctx context.Context, runID core.RunID) ([]run.Event, error)
	ListRuns(ctx context.Context) ([]core.RunID, error)
}

// ManifestStore combines read and write access.
type ManifestStore interface {
	ManifestWriter
	ManifestReader
}
