// Package cli wires the jobenrich subcommands: enrich, metadata,
// import-budgets, and version.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/munistat/jobenrich/internal/config"
)

// Exit codes: flag and config mistakes are distinguishable from run failures.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// fatalError marks an error that happened during a run, after flags and
// config were already accepted.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// runtime holds the state shared by every subcommand after the root's
// persistent pre-run.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error

	configPath string
	logLevel   string
	logFile    string
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobenrich",
		Short:         "Resilient LLM enrichment and metadata pipeline for municipal job postings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			if rt.logLevel != "" {
				cfg.Log.Level = rt.logLevel
			}
			if rt.logFile != "" {
				cfg.Log.File = rt.logFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, closeLog, err := config.SetupLogger(cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.log = log
			rt.closeLog = closeLog
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rt.closeLog != nil {
				return rt.closeLog()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rt.configPath, "config", "", "path to YAML config file")
	pf.StringVar(&rt.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	pf.StringVar(&rt.logFile, "log-file", "", "also write logs to this file")

	root.AddCommand(
		newEnrichCmd(rt),
		newMetadataCmd(rt),
		newImportBudgetsCmd(rt),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	rt := &runtime{}
	root := newRootCmd(rt)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var fe *fatalError
	switch {
	case errors.As(err, &fe), errors.Is(err, context.Canceled):
		logError(rt, err)
		return ExitFatal
	default:
		// Flag parse and config errors land here, before a logger exists.
		fmt.Fprintln(os.Stderr, "error:", err)
		return ExitUsage
	}
}

func logError(rt *runtime, err error) {
	if rt.log != nil {
		rt.log.Error("run failed", "error", err)
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}
