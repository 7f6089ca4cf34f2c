package app

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/spf13/cobra"

	"github.com/stacklok/plugin-mirror/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  plugin-mirror migrate down --config config.yaml --num-steps 1 --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps == 0 {
		return fmt.Errorf("--num-steps must be at least 1")
	}
	// Check for overflow before conversion
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	_, connString, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	ok, err := confirmMigration(cmd,
		fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}

	slog.Info("Migrating down", "steps", numSteps)
	if err := database.MigrateDown(connString, int(numSteps)); err != nil { // #nosec G115 -- overflow checked above
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migration completed successfully")
	return nil
}
