// Command hypoforge runs the research pipeline and inspects recorded runs.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hypoforge/adapters/filestore"
	"hypoforge/adapters/sqlindex"
	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/ports"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath  string
	runsDir     string
	indexDriver string
	indexDSN    string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "hypoforge",
		Short:         "Research pipeline orchestrator: tickets to reviewed, exportable strategy candidates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default $HYPOFORGE_CONFIG)")
	flags.StringVar(&opts.runsDir, "runs-dir", "", "Directory holding run manifests and artifacts")
	flags.StringVar(&opts.indexDriver, "index-driver", "", "Run index driver: sqlite, postgres or none")
	flags.StringVar(&opts.indexDSN, "index-dsn", "", "Run index data source")
	flags.StringVar(&opts.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newReportCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

// env is the wiring shared by every subcommand.
type env struct {
	cfg   *config.Config
	log   *internal.Logger
	store *filestore.Store
	index ports.RunIndex

	closeIndex func() error
}

func openEnv(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("runs-dir") {
		cfg.Storage.Root = opts.runsDir
		if !flags.Changed("index-dsn") && cfg.Storage.IndexDriver == sqlindex.DriverSQLite {
			cfg.Storage.IndexDSN = filepath.Join(opts.runsDir, "index.db")
		}
	}
	if flags.Changed("index-driver") {
		cfg.Storage.IndexDriver = opts.indexDriver
	}
	if flags.Changed("index-dsn") {
		cfg.Storage.IndexDSN = opts.indexDSN
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &env{
		cfg:        cfg,
		log:        internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)),
		closeIndex: func() error { return nil },
	}
	e.store, err = filestore.New(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.IndexDriver != "none" {
		idx, err := sqlindex.Open(ctx, cfg.Storage.IndexDriver, cfg.Storage.IndexDSN)
		if err != nil {
			return nil, err
		}
		e.index = idx
		e.closeIndex = idx.Close
	}
	return e, nil
}

func (e *env) Close() {
	if err := e.closeIndex(); err != nil {
		e.log.Warn("close run index: %v", err)
	}
	e.log.Sync()
}
