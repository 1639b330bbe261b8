package cli

import (
	"github.com/spf13/cobra"

	"github.com/munistat/jobenrich/internal/app"
	"github.com/munistat/jobenrich/internal/budget"
	"github.com/munistat/jobenrich/internal/census"
)

func newMetadataCmd(rt *runtime) *cobra.Command {
	var (
		input  string
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Add employer, census, budget, and statistical metadata to an enriched CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.cfg

			client, err := census.NewClient(cfg.Census.BaseURL, cfg.Census.Year)
			if err != nil {
				return fatal(err)
			}
			cache, err := census.OpenCache(cfg.Census.CachePath)
			if err != nil {
				return fatal(err)
			}
			registry, err := budget.LoadRegistry(cfg.Budget.RegistryPath)
			if err != nil {
				return fatal(err)
			}

			_, err = app.RunMetadata(cmd.Context(), app.MetadataOptions{
				InputPath:  input,
				OutputPath: output,
				Limit:      limit,
				Census:     census.NewService(client, cache, rt.log),
				Budget:     registry,
				Log:        rt.log,
			})
			return fatal(err)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "LLM-enriched input CSV (required)")
	f.StringVarP(&output, "output", "o", "", "final output CSV path (required)")
	f.IntVarP(&limit, "limit", "l", 0, "process only the first N rows")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
