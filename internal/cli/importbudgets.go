package cli

import (
	"github.com/spf13/cobra"

	"github.com/munistat/jobenrich/internal/budget"
)

func newImportBudgetsCmd(rt *runtime) *cobra.Command {
	var (
		pidPath      string
		financePath  string
		registryPath string
	)

	cmd := &cobra.Command{
		Use:   "import-budgets",
		Short: "Import Survey of Governments expenditure data into the budget registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if registryPath == "" {
				registryPath = rt.cfg.Budget.RegistryPath
			}
			stats, err := budget.ImportRegistry(pidPath, financePath, registryPath)
			if err != nil {
				return fatal(err)
			}
			rt.log.Info("registry import finished",
				"units_scanned", stats.UnitsScanned,
				"budgets_matched", stats.BudgetsMatched,
				"already_present", stats.AlreadyPresent,
				"rows_appended", stats.RowsAppended,
				"registry", registryPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&pidPath, "pid", "", "Survey of Governments PID file (required)")
	f.StringVar(&financePath, "finance", "", "Survey of Governments finance data file (required)")
	f.StringVar(&registryPath, "registry", "", "budget registry CSV (default from config)")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("finance")

	return cmd
}
