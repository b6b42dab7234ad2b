package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the checkpoint and start fresh",
	Long: `Reset deletes the saved checkpoint so the next run starts from stage
one. Worktrees and branches left behind by earlier runs are not touched; the
next run cleans those up itself.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
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
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No checkpoint found. Nothing to reset."))
		return nil
	}

	if !resetForce {
		fmt.Fprintf(cmd.OutOrStdout(), "Discard checkpoint at %s? [y/N] ", statePath)
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	store := checkpoint.NewStore(statePath, nil)
	if err := store.Reset(); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Checkpoint discarded."))
	return nil
}
