package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"hypoforge/adapters/stages"
	"hypoforge/app"
	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal/config"
	"hypoforge/internal/errors"
	"hypoforge/internal/reporting"
)

type runOptions struct {
	mode      string
	from      string
	runID     string
	dryRun    bool
	tickets   string
	hints     string
	ideas     string
	strict    bool
	ceiling   int
	workers   int
	noDedup   bool
	threshold float64
	ratio     float64
	report    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run or resume the research pipeline",
		Long: `Run the research pipeline in one of four modes:

  full          detection through export
  from-tickets  skip detection, starting from the --tickets file
  resume        reopen --run-id at the --from stage
  review-only   re-run the feedback loop of --run-id, then the export gate

Example: hypoforge run --mode full --tickets tickets.json --ideas ideas.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd, root)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := opts.apply(cmd, &e.cfg.Pipeline); err != nil {
				return err
			}
			req, err := opts.request(e.cfg.Pipeline)
			if err != nil {
				return err
			}

			orch := app.NewOrchestrator(app.Deps{
				Artifacts:   e.store,
				Manifests:   e.store,
				Index:       e.index,
				Stages:      referenceStages(e.cfg.Pipeline, opts.hints),
				Logger:      e.log,
				CodeVersion: version,
			}, e.cfg.Pipeline)

			out, runErr := orch.Run(cmd.Context(), req)
			if out != nil {
				if err := printJSON(cmd, out.Summary); err != nil {
					return err
				}
				if opts.report {
					files, err := reporting.WriteFiles(e.store.RunDir(out.RunID), reporting.Build(out.State, out.Summary))
					if err != nil {
						return err
					}
					e.log.Info("report written to %s and %s", files.Workbook, files.HTML)
				}
			}
			if runErr != nil {
				return describeFailure(out, runErr)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", string(run.ModeFull), "full, from-tickets, resume or review-only")
	f.StringVar(&opts.from, "from", "", "Stage to resume from (resume mode)")
	f.StringVar(&opts.runID, "run-id", "", "Run identifier (generated for new runs when empty)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Run every decision but write no export artifacts")
	f.StringVar(&opts.tickets, "tickets", "", "Tickets file (JSON or YAML)")
	f.StringVar(&opts.hints, "hints", "", "Extra hints emitted by the hints stage (JSON or YAML)")
	f.StringVar(&opts.ideas, "ideas", "", "Idea hints merged into the hints stage (JSON or YAML)")
	f.BoolVar(&opts.strict, "strict", false, "Export only candidates whose reviews raised no warnings")
	f.IntVar(&opts.ceiling, "ceiling", 0, "Feedback loop iteration ceiling")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent review workers")
	f.BoolVar(&opts.noDedup, "no-dedup", false, "Disable concept deduplication")
	f.Float64Var(&opts.threshold, "dedup-threshold", 0, "Concept similarity threshold (0..1)")
	f.Float64Var(&opts.ratio, "synthetic-ratio", 0, "Maximum synthetic to real ticket ratio")
	f.BoolVar(&opts.report, "report", false, "Write report.xlsx and report.html into the run directory")
	return cmd
}

// apply overrides the loaded pipeline configuration with explicitly set flags.
func (o *runOptions) apply(cmd *cobra.Command, p *config.PipelineConfig) error {
	f := cmd.Flags()
	if f.Changed("tickets") {
		p.TicketsFile = o.tickets
	}
	if f.Changed("ideas") {
		p.IdeasFile = o.ideas
	}
	if f.Changed("strict") {
		p.StrictExport = o.strict
	}
	if f.Changed("ceiling") {
		p.IterationCeiling = o.ceiling
	}
	if f.Changed("workers") {
		p.ReviewWorkers = o.workers
	}
	if f.Changed("no-dedup") {
		p.DedupEnabled = !o.noDedup
	}
	if f.Changed("dedup-threshold") {
		p.DedupThreshold = o.threshold
	}
	if f.Changed("synthetic-ratio") {
		p.SyntheticRatio = o.ratio
	}
	return p.Validate()
}

func (o *runOptions) request(p config.PipelineConfig) (app.Request, error) {
	mode, err := run.ParseMode(o.mode)
	if err != nil {
		return app.Request{}, errors.InvalidInput(err.Error())
	}
	req := app.Request{Mode: mode, DryRun: o.dryRun}

	if o.runID != "" {
		if req.RunID, err = core.ParseRunID(o.runID); err != nil {
			return app.Request{}, errors.InvalidInput(err.Error())
		}
	}

	switch mode {
	case run.ModeResume:
		if o.from == "" {
			return app.Request{}, errors.InvalidInput("resume needs --from")
		}
		if req.From, err = stage.ParseName(o.from); err != nil {
			return app.Request{}, errors.InvalidInput(err.Error())
		}
		fallthrough
	case run.ModeReviewOnly:
		if req.RunID == "" {
			return app.Request{}, errors.InvalidInput(fmt.Sprintf("%s needs --run-id", mode))
		}
	case run.ModeFromTickets:
		if p.TicketsFile == "" {
			return app.Request{}, errors.InvalidInput("from-tickets needs --tickets")
		}
		if req.Tickets, err = stages.LoadTickets(p.TicketsFile); err != nil {
			return app.Request{}, errors.InvalidInput(err.Error())
		}
	}

	if p.IdeasFile != "" {
		ideas, err := stages.LoadHints(p.IdeasFile)
		if err != nil {
			return app.Request{}, errors.InvalidInput(err.Error())
		}
		req.Ideas = ideas
	}
	return req, nil
}

func referenceStages(p config.PipelineConfig, hintsFile string) app.Stages {
	return app.Stages{
		Detection: stages.NewFileDetector(p.TicketsFile),
		Hints:     stages.NewTicketHints(hintsFile),
		Concepts:  stages.NewConceptSynthesizer(),
		Drafts:    stages.NewDrafter(),
		Review:    stages.NewChecklistReviewer(),
		Export:    stages.NewStrategyExporter(),
	}
}

// describeFailure names the failing stage and its reason.
func describeFailure(out *app.Outcome, err error) error {
	if out == nil || out.State == nil || out.State.Failure == nil {
		return err
	}
	f := out.State.Failure
	return fmt.Errorf("run %s failed at stage %s (%s): %s", out.RunID, f.Stage, f.Kind, f.Reason)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
