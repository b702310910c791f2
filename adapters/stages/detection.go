package stages

import (
	"context"
	"sort"

	"hypoforge/domain/core"
	"hypoforge/domain/stage"
)

// FileDetector is a detection stage that emits the tickets stored in a file.
type FileDetector struct {
	Path string
}

// NewFileDetector creates a detector reading path
func NewFileDetector(path string) *FileDetector {
	return &FileDetector{Path: path}
}

func (d *FileDetector) Name() stage.Name { return stage.Detection }

// Run emits one ticket artifact per ticket, ordered by id.
func (d *FileDetector) Run(ctx context.Context, _ stage.Inputs, _ stage.Config) stage.Result {
	if d.Path == "" {
		return stage.Failed("no tickets file configured")
	}
	tickets, err := LoadTickets(d.Path)
	if err != nil {
		return stage.Failed("%v", err)
	}
	if len(tickets) == 0 {
		return stage.Failed("tickets file %s is empty", d.Path)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })

	out := make([]core.Artifact, 0, len(tickets))
	for _, t := range tickets {
		if err := ctx.Err(); err != nil {
			return stage.Failed("%v", err)
		}
		a, err := core.NewArtifact(core.ArtifactTicket, t.ID, t)
		if err != nil {
			return stage.Failed("encode ticket %s: %v", t.ID, err)
		}
		out = append(out, a)
	}
	return stage.OK(out...)
}
