package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/plugin-mirror/internal/app"
	"github.com/stacklok/plugin-mirror/internal/status"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
)

// ReasonCLI marks runs started from the sync command
const ReasonCLI = "cli"

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single synchronization and exit",
		Long: `Run one synchronization against the remote directory without starting the
HTTP server, then print the run summary as JSON.

Examples:
  # Catch up from the stored cursor
  plugin-mirror sync --config config.yaml

  # Walk the whole feed regardless of the cursor
  plugin-mirror sync --config config.yaml --force`,
		RunE: runSync,
	}

	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	syncCmd.Flags().Bool("force", false, "Do not stop at the stored cursor")
	return syncCmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	mirror, err := app.NewMirrorApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() {
		_ = mirror.Stop(time.Second)
	}()

	summary := mirror.GetComponents().Runner.Trigger(ctx, pkgsync.TriggerOptions{
		Force:  force,
		Reason: ReasonCLI,
	})

	output, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format run summary: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(output)); err != nil {
		return err
	}

	if summary.Status == status.RunStatusFailed {
		return fmt.Errorf("sync failed: %s", summary.Error)
	}
	return nil
}
