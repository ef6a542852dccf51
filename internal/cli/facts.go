package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/util"
	"github.com/emiliopalmerini/salespulse/internal/web"
)

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Record quote and sale facts",
	Long: `Record a quote or sale fact read as JSON from stdin (or --file).
The household is found or created from the agency, names and zip.

  {
    "agency_id": "ag-1",
    "first_name": "Jane", "last_name": "Doe", "zip": "30301",
    "member_id": "m-1", "date": "2025-09-05",
    "product_type": "auto", "premium_cents": 90000, "items": 2,
    "provenance": "call_center_sync", "source_ref": "cc-100"
  }

A repeated source_ref is a no-op.`,
}

var factQuoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Record a quote fact",
	Args:  cobra.NoArgs,
	RunE:  runFactQuote,
}

var factSaleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record a sale fact",
	Args:  cobra.NoArgs,
	RunE:  runFactSale,
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Apply a win-back or renewal status signal to a household",
	Long: `Apply a retention signal. Win-back accepts recovered and
moved_to_quoting; renewal accepts successful and moved_to_quoting.

Examples:
  salespulse signal --household h-1 --source winback --outcome recovered`,
	Args: cobra.NoArgs,
	RunE: runSignal,
}

var (
	factFile      string
	signalFlags   web.SignalRequest
	signalAtValue string
)

func init() {
	rootCmd.AddCommand(factCmd, signalCmd)
	factCmd.AddCommand(factQuoteCmd, factSaleCmd)
	factCmd.PersistentFlags().StringVarP(&factFile, "file", "f", "", "Read the fact from a file instead of stdin")

	signalCmd.Flags().StringVar(&signalFlags.HouseholdID, "household", "", "Household ID")
	signalCmd.Flags().StringVar(&signalFlags.Source, "source", "", "Signal source: winback or renewal")
	signalCmd.Flags().StringVar(&signalFlags.Outcome, "outcome", "", "Signal outcome")
	signalCmd.Flags().StringVar(&signalAtValue, "at", "", "When the outcome occurred (RFC3339, default now)")
	_ = signalCmd.MarkFlagRequired("household")
	_ = signalCmd.MarkFlagRequired("source")
	_ = signalCmd.MarkFlagRequired("outcome")
}

func readFact(cmd *cobra.Command) (web.FactRequest, error) {
	var body web.FactRequest
	data, err := readInput(cmd, factFile)
	if err != nil {
		return body, err
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return body, fmt.Errorf("failed to parse fact: %w", err)
	}
	return body, nil
}

func runFactQuote(cmd *cobra.Command, args []string) error {
	body, err := readFact(cmd)
	if err != nil {
		return err
	}
	in, err := body.QuoteInput()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		res, err := app.Households.RecordQuote(cmd.Context(), in)
		if err != nil {
			return err
		}
		return printFact(cmd, app, "quote", res)
	})
}

func runFactSale(cmd *cobra.Command, args []string) error {
	body, err := readFact(cmd)
	if err != nil {
		return err
	}
	in, err := body.SaleInput()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		res, err := app.Households.RecordSale(cmd.Context(), in)
		if err != nil {
			return err
		}
		return printFact(cmd, app, "sale", res)
	})
}

// printFact reports the fact and the household as it stands after the
// synchronous promotion.
func printFact(cmd *cobra.Command, app *AppContext, kind string, res *household.RecordResult) error {
	out := cmd.OutOrStdout()
	if !res.Inserted {
		fmt.Fprintf(out, "Duplicate %s ignored (household %s)\n", kind, res.Household.ID)
		return nil
	}
	view, err := app.Households.Get(cmd.Context(), res.Household.ID)
	if err != nil {
		return err
	}
	verb := "Matched"
	if res.Created {
		verb = "Created"
	}
	fmt.Fprintf(out, "Recorded %s %s\n", kind, res.FactID)
	fmt.Fprintf(out, "  %s household %s (%s)\n", verb, view.Household.ID, view.Household.Status)
	return nil
}

func runSignal(cmd *cobra.Command, args []string) error {
	body := signalFlags
	if signalAtValue != "" {
		at, err := time.Parse(time.RFC3339, signalAtValue)
		if err != nil {
			return fmt.Errorf("invalid --at %q: expected RFC3339", signalAtValue)
		}
		body.OccurredAt = &at
	}
	sig, err := body.Signal()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		if err := app.Households.ApplySignal(cmd.Context(), sig); err != nil {
			return err
		}
		view, err := app.Households.Get(cmd.Context(), sig.HouseholdID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Household %s is %s\n", view.Household.ID, view.Household.Status)
		return nil
	})
}

var householdCmd = &cobra.Command{
	Use:   "household",
	Short: "Inspect and correct households",
}

var householdShowCmd = &cobra.Command{
	Use:   "show <household-id>",
	Short: "Show a household with its quote and sale facts",
	Args:  cobra.ExactArgs(1),
	RunE:  runHouseholdShow,
}

var householdSetStatusCmd = &cobra.Command{
	Use:   "set-status <household-id> <lead|quoted|sold>",
	Short: "Administratively set a household status",
	Long: `Set a household status directly. This is the only way to lower a
status; dates of the states left behind are cleared.`,
	Args: cobra.ExactArgs(2),
	RunE: runHouseholdSetStatus,
}

func init() {
	rootCmd.AddCommand(householdCmd)
	householdCmd.AddCommand(householdShowCmd, householdSetStatusCmd)
}

func runHouseholdShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		view, err := app.Households.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printHousehold(cmd, view)
		return nil
	})
}

func runHouseholdSetStatus(cmd *cobra.Command, args []string) error {
	status, err := domain.ParseHouseholdStatus(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		h, err := app.Households.SetStatus(cmd.Context(), args[0], status)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Household %s is %s\n", h.ID, h.Status)
		return nil
	})
}

func printHousehold(cmd *cobra.Command, view *household.View) {
	out := cmd.OutOrStdout()
	h := view.Household
	fmt.Fprintf(out, "Household %s\n", h.ID)
	fmt.Fprintf(out, "  Name:        %s %s\n", h.FirstName, h.LastName)
	if h.Zip != "" {
		fmt.Fprintf(out, "  Zip:         %s\n", h.Zip)
	}
	fmt.Fprintf(out, "  Status:      %s\n", h.Status)
	if h.FirstQuoteDate != nil {
		fmt.Fprintf(out, "  First quote: %s\n", domain.FormatDate(*h.FirstQuoteDate))
	}
	if h.SoldDate != nil {
		fmt.Fprintf(out, "  Sold:        %s\n", domain.FormatDate(*h.SoldDate))
	}
	if h.LeadSourceLabel != nil {
		fmt.Fprintf(out, "  Lead source: %s\n", *h.LeadSourceLabel)
	}
	if h.NeedsAttention {
		fmt.Fprintln(out, "  Needs attention: missing lead source")
	}

	if len(view.Quotes) > 0 {
		fmt.Fprintf(out, "\n  %-12s %-12s %-10s %-18s %s\n", "QUOTED", "MEMBER", "PRODUCT", "PROVENANCE", "PREMIUM")
		for _, q := range view.Quotes {
			fmt.Fprintf(out, "  %-12s %-12s %-10s %-18s %s\n",
				domain.FormatDate(q.QuoteDate), q.MemberID, q.ProductType, q.Provenance, util.FormatCents(q.PremiumCents))
		}
	}
	if len(view.Sales) > 0 {
		fmt.Fprintf(out, "\n  %-12s %-12s %-10s %-9s %s\n", "SOLD", "MEMBER", "PRODUCT", "POLICIES", "PREMIUM")
		for _, s := range view.Sales {
			fmt.Fprintf(out, "  %-12s %-12s %-10s %-9d %s\n",
				domain.FormatDate(s.SaleDate), s.MemberID, s.ProductType, s.Policies, util.FormatCents(s.PremiumCents))
		}
	}
}
