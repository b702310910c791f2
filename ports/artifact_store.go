package ports

import (
	"context"

	"hypoforge/domain/core"
)

// ArtifactStore persists the typed output of stages, grouped by run and scope.
// A scope is a slash-separated logical directory such as "concepts" or
// "export/<candidate>".
type ArtifactStore interface {
	// Commit replaces the contents of scope with artifacts. Either every
	// artifact becomes visible or none does.
	Commit(ctx context.Context, runID core.RunID, scope string, artifacts []core.Artifact) ([]core.ArtifactRef, error)
	Load(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (core.Artifact, error)
	Exists(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (bool, error)
	// List returns the refs stored directly under scope, sorted by kind and key.
	List(ctx context.Context, runID core.RunID, scope string) ([]core.ArtifactRef, error)
}
