package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up [version]",
	Short: "Apply pending migrations",
	Long: `Apply pending migrations.

Without arguments, applies every pending migration.
With a version number, applies pending migrations up to that version.

Examples:
  salespulse migrate up      # Run all pending migrations
  salespulse migrate up 1    # Migrate up to version 1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down <version>",
	Short: "Revert migrations above a version",
	Long: `Revert applied migrations above the given version.

Examples:
  salespulse migrate down 0    # Roll back every migration`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func newMigrator(cmd *cobra.Command) (*migrate.Migrator, func(), error) {
	db, err := openDB(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	m, err := migrate.New(db, cmd.OutOrStdout())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() { _ = db.Close() }, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	m, done, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	defer done()
	out := cmd.OutOrStdout()

	var n int
	if len(args) == 0 {
		n, err = m.Up(cmd.Context())
	} else {
		target, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		n, err = m.UpTo(cmd.Context(), target)
	}
	if err != nil {
		return err
	}

	if n == 0 {
		fmt.Fprintln(out, "No migrations to run")
		return nil
	}
	version, _, err := m.Version(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated to version %d (%d migrations applied)\n", version, n)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version number: %s", args[0])
	}
	m, done, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	defer done()

	n, err := m.DownTo(cmd.Context(), target)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated down to version %d (%d migrations reverted)\n", target, n)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	m, done, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	defer done()

	st, err := m.Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current version: %d\n", st.Current)
	fmt.Fprintf(out, "Latest version:  %d\n", st.Latest)
	if st.Dirty {
		fmt.Fprintln(out, "State:           dirty, manual intervention required")
	}
	if len(st.Pending) == 0 {
		fmt.Fprintln(out, "No pending migrations")
		return nil
	}
	fmt.Fprintln(out, "Pending:")
	for _, mig := range st.Pending {
		fmt.Fprintf(out, "  %03d_%s\n", mig.Version, mig.Name)
	}
	return nil
}
