package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "salespulse",
	Short: "Sales metrics platform for insurance agencies",
	Long: `salespulse ingests daily scorecards, quote and sale facts from
independent producers, and merges them into one scored record per team
member and work day.

Configuration comes from SALESPULSE_* environment variables; at minimum
SALESPULSE_DATABASE_URL must be set.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
