package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/flatten"
	"github.com/emiliopalmerini/salespulse/internal/pipeline"
	"github.com/emiliopalmerini/salespulse/internal/web"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Process a scorecard submission",
	Long: `Reads a submission as JSON from stdin (or --file) and runs it through
the pipeline: extraction, audit, metric merge, scoring and flattening.

  {
    "form_id": "form-1",
    "member_id": "m-1",
    "work_date": "2025-09-05",
    "final": true,
    "payload": {"outbound_calls": 25, "quoted_households": 3}
  }`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <submission-id>",
	Short: "Run a stored final submission through the pipeline again",
	Args:  cobra.ExactArgs(1),
	RunE:  runReprocess,
}

var flattenCmd = &cobra.Command{
	Use:   "flatten <submission-id>",
	Short: "Rebuild the quoted-household rows of a stored submission",
	Long: `Re-extracts the repeated quoted-households section of a stored final
submission and replaces its detail rows. Safe to repeat.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlatten,
}

var submitFile string

func init() {
	rootCmd.AddCommand(submitCmd, reprocessCmd, flattenCmd)
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Read the submission from a file instead of stdin")
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, submitFile)
	if err != nil {
		return err
	}
	var body web.SubmitRequest
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("failed to parse submission: %w", err)
	}
	req, err := body.Request()
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		out, err := app.Processor.Submit(cmd.Context(), req)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	})
}

func runReprocess(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		out, err := app.Processor.Reprocess(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	})
}

func runFlatten(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *AppContext) error {
		res, err := app.Flattener.FlattenStored(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printFlatten(cmd.OutOrStdout(), res)
		return nil
	})
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	fmt.Fprintf(w, "Submission %s\n", out.Submission.ID)
	if out.Submission.SupersedesID != nil {
		fmt.Fprintf(w, "  Supersedes:  %s\n", *out.Submission.SupersedesID)
	}
	if out.Draft {
		fmt.Fprintln(w, "  Stored as draft, not processed")
		return
	}
	fmt.Fprintf(w, "  Fields:      %d\n", out.Audit.FieldsExtracted)
	if out.Merge.Skipped {
		fmt.Fprintln(w, "  Metrics:     skipped, no scoring rule version")
	} else {
		rec := out.Merge.Record
		fmt.Fprintf(w, "  Record:      %s\n", rec.ID)
		fmt.Fprintf(w, "  Hits:        %d\n", rec.Hits)
		fmt.Fprintf(w, "  Score:       %.2f\n", rec.Score)
		fmt.Fprintf(w, "  Pass:        %t\n", rec.Pass)
		fmt.Fprintf(w, "  Streak:      %d\n", rec.Streak)
		if rec.Late {
			fmt.Fprintln(w, "  Late:        true")
		}
	}
	if out.Flatten != nil {
		printFlatten(w, out.Flatten)
	}
}

func printFlatten(w io.Writer, res *flatten.Result) {
	fmt.Fprintf(w, "  Details:     %d written, %d skipped, %d errors (%d replaced)\n",
		res.Details.Processed, res.Details.Skipped, res.Details.Errors, res.Deleted)
	fmt.Fprintf(w, "  Quote facts: %d written, %d skipped, %d errors\n",
		res.Facts.Processed, res.Facts.Skipped, res.Facts.Errors)
}
