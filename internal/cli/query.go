package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/util"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show a member's daily metric records",
	Long: `Show the member's daily records in a date range, one row per work day.

Examples:
  salespulse metrics --member m-1
  salespulse metrics --member m-1 --from 2025-09-01 --to 2025-09-30`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

var auditCmd = &cobra.Command{
	Use:   "audit <submission-id>",
	Short: "Show how each metric of a submission was resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

var (
	metricsMember string
	metricsFrom   string
	metricsTo     string
)

const defaultMetricsDays = 30

func init() {
	rootCmd.AddCommand(metricsCmd, auditCmd)
	metricsCmd.Flags().StringVar(&metricsMember, "member", "", "Member ID")
	metricsCmd.Flags().StringVar(&metricsFrom, "from", "", "First work date (YYYY-MM-DD, default 30 days before --to)")
	metricsCmd.Flags().StringVar(&metricsTo, "to", "", "Last work date (YYYY-MM-DD, default today)")
	_ = metricsCmd.MarkFlagRequired("member")
}

func metricsRange() (time.Time, time.Time, error) {
	to := domain.Day(time.Now())
	if metricsTo != "" {
		t, err := domain.ParseDate(metricsTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: expected YYYY-MM-DD", metricsTo)
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultMetricsDays)
	if metricsFrom != "" {
		t, err := domain.ParseDate(metricsFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", metricsFrom)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", domain.FormatDate(from), domain.FormatDate(to))
	}
	return from, to, nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	from, to, err := metricsRange()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		repos := app.Store.Repos()
		member, err := repos.Members.GetByID(cmd.Context(), metricsMember)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %s: %w", metricsMember, domain.ErrNotFound)
		}
		records, err := repos.Metrics.ListRange(cmd.Context(), metricsMember, from, to)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s) %s..%s\n", member.Name, member.Role, domain.FormatDate(from), domain.FormatDate(to))
		if len(records) == 0 {
			fmt.Fprintln(out, "No records")
			return nil
		}
		printRecords(out, records)
		return nil
	})
}

func printRecords(out io.Writer, records []*domain.DailyMetricRecord) {
	fmt.Fprintf(out, "\n%-12s %6s %6s %6s %6s %10s %5s %7s %5s %6s  %s\n",
		"DATE", "CALLS", "TALK", "QUOTED", "ITEMS", "PREMIUM", "HITS", "SCORE", "PASS", "STREAK", "CUSTOM")
	for _, rec := range records {
		pass := "no"
		if rec.Pass {
			pass = "yes"
		}
		date := domain.FormatDate(rec.WorkDate)
		if rec.Late {
			date += "*"
		}
		fmt.Fprintf(out, "%-12s %6s %6s %6s %6s %10s %5d %7.2f %5s %6d  %s\n",
			date,
			util.FormatNumber(int64(rec.Values.Get(domain.MetricOutboundCalls))),
			util.FormatNumber(int64(rec.Values.Get(domain.MetricTalkMinutes))),
			util.FormatNumber(int64(rec.Values.Get(domain.MetricQuotedHouseholds))),
			util.FormatNumber(int64(rec.Values.Get(domain.MetricItemsSold))),
			util.FormatCents(int64(rec.Values.Get(domain.MetricPremiumCents))),
			rec.Hits, rec.Score, pass, rec.Streak,
			formatCustom(rec.CustomKPIs()),
		)
	}
}

func formatCustom(kpis map[string]float64) string {
	if len(kpis) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(kpis))
	for k := range kpis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, kpis[k]))
	}
	return strings.Join(parts, " ")
}

func runAudit(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		repos := app.Store.Repos()
		sub, err := repos.Submissions.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sub == nil {
			return fmt.Errorf("submission %s: %w", args[0], domain.ErrNotFound)
		}
		audits, err := repos.Audits.ListBySubmission(cmd.Context(), sub.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(audits) == 0 {
			fmt.Fprintf(out, "No audit records for %s\n", sub.ID)
			return nil
		}
		for _, a := range audits {
			mapping := "none"
			if a.MappingConfigured {
				mapping = "configured"
			}
			fmt.Fprintf(out, "Audit %s (%s)\n", a.ID, a.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "  Form:      %s (mapping %s)\n", a.FormID, mapping)
			fmt.Fprintf(out, "  Extracted: %d fields\n", a.FieldsExtracted)
			if a.SectionRows > 0 || a.SectionRowsSkipped > 0 || a.SectionRowErrors > 0 {
				fmt.Fprintf(out, "  Section:   %d rows, %d skipped, %d errors\n",
					a.SectionRows, a.SectionRowsSkipped, a.SectionRowErrors)
			}
			fmt.Fprintf(out, "\n  %-24s %-10s %-24s %s\n", "METRIC", "SOURCE", "PAYLOAD KEY", "RAW")
			for _, res := range a.Resolutions {
				fmt.Fprintf(out, "  %-24s %-10s %-24s %s\n",
					res.Key, res.Source, orDash(res.PayloadKey), orDash(res.RawValue))
			}
			fmt.Fprintln(out)
		}
		return nil
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
