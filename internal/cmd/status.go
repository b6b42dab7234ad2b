package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the last run",
	Long: `Status reads the checkpoint written by previous runs and reports the
stage cursor, per-task outcomes, active worktrees, and stage history.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	statePath := checkpoint.Path(cfg.ResolveStateDir(root))
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No checkpoint found. Nothing has run yet."))
		return nil
	}

	store := checkpoint.NewStore(statePath, nil)
	if err := store.Load(); err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderStatus(store.Snapshot()))
	return nil
}
