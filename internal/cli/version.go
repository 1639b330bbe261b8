package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/munistat/jobenrich/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jobenrich version",
		// Version needs neither config nor a logger.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "jobenrich", version.Current)
		},
	}
}
