package ports

import (
	"context"

	"hypoforge/domain/stage"
)

// Stage is one pluggable unit of domain logic. A stage never partially
// succeeds: it returns every output with StatusOK or a reason with StatusFailed.
type Stage interface {
	Name() stage.Name
	Run(ctx context.Context, inputs stage.Inputs, cfg stage.Config) stage.Result
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName stage.Name
	Fn        func(ctx context.Context, inputs stage.Inputs, cfg stage.Config) stage.Result
}

func (f StageFunc) Name() stage.Name { return f.StageName }

func (f StageFunc) Run(ctx context.Context, inputs stage.Inputs, cfg stage.Config) stage.Result {
	return f.Fn(ctx, inputs, cfg)
}
