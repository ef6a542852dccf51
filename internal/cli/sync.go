package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync --producer <producer> <file.jsonl>",
	Short: "Merge a batch of daily metric values from an upstream producer",
	Long: `Merge daily metric values exported by an upstream system. Each line of
the file is one JSON object:

  {"member_id": "m-1", "work_date": "2025-09-05", "values": {"outbound_calls": 40}}

Additive counters merge by max. Overwrite fields are dropped unless the
producer is backfill. Lines that fail are logged and counted; the batch
continues.

Examples:
  salespulse sync --producer call_center_sync calls.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncProducer string

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncProducer, "producer", "", "Producer: call_center_sync, sales_sync, quick_add or backfill")
	_ = syncCmd.MarkFlagRequired("producer")
}

type syncLine struct {
	AgencyID string             `json:"agency_id"`
	MemberID string             `json:"member_id"`
	WorkDate string             `json:"work_date"`
	Values   map[string]float64 `json:"values"`
}

func (l syncLine) request(producer domain.Producer) (aggregation.MergeRequest, error) {
	if l.MemberID == "" {
		return aggregation.MergeRequest{}, fmt.Errorf("member_id is required")
	}
	date, err := domain.ParseDate(l.WorkDate)
	if err != nil {
		return aggregation.MergeRequest{}, fmt.Errorf("invalid work_date %q", l.WorkDate)
	}
	values := make(domain.MetricValues, len(l.Values))
	for k, v := range l.Values {
		values[domain.MetricKey(k)] = v
	}
	return aggregation.MergeRequest{
		AgencyID: l.AgencyID,
		MemberID: l.MemberID,
		WorkDate: date,
		Values:   values,
		Producer: producer,
	}, nil
}

func parseSyncProducer(s string) (domain.Producer, error) {
	p := domain.Producer(s)
	switch {
	case !p.Valid():
		return "", fmt.Errorf("unknown producer %q", s)
	case p == domain.ProducerScorecard:
		return "", fmt.Errorf("scorecard values go through submit")
	case p == domain.ProducerHouseholdPromotion:
		return "", fmt.Errorf("household_promotion is reserved for quote facts")
	}
	return p, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	producer, err := parseSyncProducer(syncProducer)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		var sum domain.BatchSummary
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			log := app.Logger.With(slog.Int("line", lineNo))

			var line syncLine
			if err := json.Unmarshal(raw, &line); err != nil {
				log.Warn("skipping unparsable line", slog.String("error", err.Error()))
				sum.Errors++
				continue
			}
			req, err := line.request(producer)
			if err != nil {
				log.Warn("skipping invalid line", slog.String("error", err.Error()))
				sum.Errors++
				continue
			}
			res, err := app.Engine.Merge(cmd.Context(), req)
			if err != nil {
				log.Warn("merge failed", slog.String("error", err.Error()))
				sum.Errors++
				continue
			}
			if res.Skipped {
				sum.Skipped++
				continue
			}
			sum.Processed++
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Synced %s as %s: %d merged, %d skipped, %d errors\n",
			args[0], producer, sum.Processed, sum.Skipped, sum.Errors)
		return nil
	})
}
