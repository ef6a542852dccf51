package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rescore a member's daily records and refresh streaks",
	Long: `Rescore the member's records in a date range. Values are never
changed, so repeated runs converge.

By default each record keeps its bound rule version. With --rules current
the records move to the latest rule version for the member's role.

Examples:
  salespulse recompute --member m-1 --from 2025-09-01 --to 2025-09-30
  salespulse recompute --member m-1 --from 2025-09-01 --to 2025-09-30 --rules current`,
	Args: cobra.NoArgs,
	RunE: runRecompute,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair household state",
}

var reconcileHouseholdsCmd = &cobra.Command{
	Use:   "households",
	Short: "Promote households whose status lags their facts",
	Args:  cobra.NoArgs,
	RunE:  runReconcileHouseholds,
}

var reconcileGhostsCmd = &cobra.Command{
	Use:   "ghosts",
	Short: "Delete lead households with no facts created before a cutoff",
	Args:  cobra.NoArgs,
	RunE:  runReconcileGhosts,
}

var (
	recomputeMember string
	recomputeFrom   string
	recomputeTo     string
	recomputeRules  string

	reconcileAgency string
	ghostsBefore    string
)

func init() {
	rootCmd.AddCommand(recomputeCmd, reconcileCmd)
	reconcileCmd.AddCommand(reconcileHouseholdsCmd, reconcileGhostsCmd)

	recomputeCmd.Flags().StringVar(&recomputeMember, "member", "", "Member ID")
	recomputeCmd.Flags().StringVar(&recomputeFrom, "from", "", "First work date (YYYY-MM-DD)")
	recomputeCmd.Flags().StringVar(&recomputeTo, "to", "", "Last work date (YYYY-MM-DD)")
	recomputeCmd.Flags().StringVar(&recomputeRules, "rules", "", "Set to current to rebind to the latest rule version")
	_ = recomputeCmd.MarkFlagRequired("member")
	_ = recomputeCmd.MarkFlagRequired("from")
	_ = recomputeCmd.MarkFlagRequired("to")

	reconcileCmd.PersistentFlags().StringVar(&reconcileAgency, "agency", "", "Limit to one agency")
	reconcileGhostsCmd.Flags().StringVar(&ghostsBefore, "before", "", "Only households created before this date (YYYY-MM-DD, default now)")
}

func runRecompute(cmd *cobra.Command, args []string) error {
	from, err := domain.ParseDate(recomputeFrom)
	if err != nil {
		return fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", recomputeFrom)
	}
	to, err := domain.ParseDate(recomputeTo)
	if err != nil {
		return fmt.Errorf("invalid --to %q: expected YYYY-MM-DD", recomputeTo)
	}
	if recomputeRules != "" && recomputeRules != "current" {
		return fmt.Errorf("invalid --rules %q: only current is supported", recomputeRules)
	}

	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		sum, err := app.Engine.Recompute(cmd.Context(), aggregation.RecomputeRequest{
			MemberID: recomputeMember,
			From:     from,
			To:       to,
			Rebind:   recomputeRules == "current",
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %s %s..%s: %d rescored, %d skipped, %d errors\n",
			recomputeMember, recomputeFrom, recomputeTo, sum.Processed, sum.Skipped, sum.Errors)
		return nil
	})
}

func runReconcileHouseholds(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		sum, err := app.Reconciler.PromoteStale(cmd.Context(), reconcileAgency)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Households: %d promoted, %d unchanged, %d errors\n",
			sum.Processed, sum.Skipped, sum.Errors)
		return nil
	})
}

func runReconcileGhosts(cmd *cobra.Command, args []string) error {
	var cutoff time.Time
	if ghostsBefore != "" {
		t, err := domain.ParseDate(ghostsBefore)
		if err != nil {
			return fmt.Errorf("invalid --before %q: expected YYYY-MM-DD", ghostsBefore)
		}
		cutoff = t
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		sum, err := app.Reconciler.PurgeGhosts(cmd.Context(), reconcileAgency, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ghost households: %d deleted, %d kept, %d errors\n",
			sum.Processed, sum.Skipped, sum.Errors)
		return nil
	})
}
