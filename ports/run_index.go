package ports

import (
	"context"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
)

// RunIndex keeps a queryable summary of every run. It is derived data: the
// manifest stays the source of truth.
type RunIndex interface {
	Upsert(ctx context.Context, summary run.Summary) error
	Get(ctx context.Context, runID core.RunID) (*run.Summary, error)
	List(ctx context.Context, limit int) ([]run.Summary, error)
}
