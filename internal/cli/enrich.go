package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/munistat/jobenrich/internal/app"
	"github.com/munistat/jobenrich/internal/enrich"
	"github.com/munistat/jobenrich/internal/enrich/gemini"
)

func newEnrichCmd(rt *runtime) *cobra.Command {
	var (
		input   string
		output  string
		limit   int
		resume  bool
		dryRun  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich job postings through the Gemini classifier, with checkpointed resume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.cfg
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}

			opts := app.Options{
				InputPath:       input,
				OutputPath:      output,
				Limit:           limit,
				Resume:          resume,
				DryRun:          dryRun,
				Workers:         cfg.Workers,
				MaxAttempts:     cfg.MaxAttempts,
				RequestTimeout:  cfg.RequestTimeout(),
				RateLimitRPS:    cfg.RateLimitRPS,
				CheckpointEvery: cfg.CheckpointEvery,
				BackoffBase:     cfg.BackoffBase(),
				BackoffMin:      cfg.BackoffMin(),
				BackoffMax:      cfg.BackoffMax(),
				NewEnricher: func(ctx context.Context) (enrich.Enricher, error) {
					apiKey := os.Getenv("GEMINI_API_KEY")
					if apiKey == "" {
						return nil, fmt.Errorf("GEMINI_API_KEY is not set")
					}
					return gemini.New(ctx, gemini.Config{
						APIKey:  apiKey,
						Model:   cfg.Model,
						BaseURL: cfg.Gemini.BaseURL,
					})
				},
				Log: rt.log,
			}

			_, err := app.Run(cmd.Context(), opts)
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fatal(err)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "input CSV of job postings (required)")
	f.StringVarP(&output, "output", "o", "", "output CSV path (required)")
	f.IntVarP(&limit, "limit", "l", 0, "process only the first N rows")
	f.BoolVarP(&resume, "resume", "r", false, "resume from the output's checkpoint file")
	f.BoolVarP(&dryRun, "dry-run", "d", false, "plan the run without calling the API")
	f.IntVarP(&workers, "workers", "w", 50, "concurrent enrichment workers")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
