package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hypoforge/app"
	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/internal/reporting"
)

func newReportCmd(root *rootOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Write an xlsx workbook and an HTML report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), cmd, root)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.store.LoadEvents(cmd.Context(), runID)
			if err != nil {
				return err
			}
			state, err := run.Replay(events)
			if err != nil {
				return err
			}

			dir := outDir
			if dir == "" {
				dir = e.store.RunDir(runID)
			}
			files, err := reporting.WriteFiles(dir, reporting.Build(state, app.Summarize(state)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), files.Workbook)
			fmt.Fprintln(cmd.OutOrStdout(), files.HTML)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default: the run directory)")
	return cmd
}
