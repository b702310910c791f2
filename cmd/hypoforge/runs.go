package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hypoforge/app"
	"hypoforge/domain/run"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd, root)
			if err != nil {
				return err
			}
			defer e.Close()

			summaries, err := listRuns(cmd, e, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, summaries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tMODE\tSTATUS\tSTARTED\tDRAFTS\tPASSED\tEXPORTED\tFAILED AT")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.RunID, s.Mode, s.Status, s.StartedAt, s.Drafts, s.Passed, s.Exported, s.FailedStage)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// listRuns reads the run index, or replays manifests when the index is off.
func listRuns(cmd *cobra.Command, e *env, limit int) ([]run.Summary, error) {
	ctx := cmd.Context()
	if e.index != nil {
		return e.index.List(ctx, limit)
	}

	ids, err := e.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	var out []run.Summary
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		events, err := e.store.LoadEvents(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		state, err := run.Replay(events)
		if err != nil {
			e.log.Warn("skip run %s: %v", ids[i], err)
			continue
		}
		out = append(out, app.Summarize(state))
	}
	return out, nil
}
