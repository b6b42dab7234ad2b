package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maestro/internal/checkpoint"
	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/milestone"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the staged execution plan",
	Long: `Plan discovers the milestone definitions and prints the stages a run
would execute, without running anything. Stages already completed by a
previous run are marked.`,
	RunE: runPlanCmd,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	milestones, err := loadPlan(cmd, cfg, root)
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(checkpoint.Path(cfg.ResolveStateDir(root)), nil)
	if err := store.Load(); err != nil {
		return err
	}

	stages := milestone.OrganizeStages(milestones)
	fmt.Fprint(cmd.OutOrStdout(), renderPlan(stages, store.CurrentStage()))
	return nil
}
