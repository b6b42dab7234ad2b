package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/maestro/internal/config"
	"github.com/Iron-Ham/maestro/internal/errors"
	"github.com/Iron-Ham/maestro/internal/milestone"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the milestone plan",
	Long: `Validate checks every milestone definition for structural problems:
missing fields, duplicate identifiers, unknown or cross-stage dependencies,
and dependency cycles. The command exits non-zero when the plan has errors.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	dir := cfg.ResolveMilestonesDir(root)
	milestones, loadErrs := milestone.Discover(dir)
	for _, loadErr := range loadErrs {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", warnStyle.Render("⚠"), loadErr)
	}
	if len(milestones) == 0 && len(loadErrs) == 0 {
		return fmt.Errorf("no milestone files found in %s", dir)
	}

	result := milestone.ValidateAll(milestones)
	fmt.Fprint(cmd.OutOrStdout(), renderValidation(result))

	// Unparseable files make the plan invalid even when every file that did
	// load checks out.
	if !result.IsValid || len(loadErrs) > 0 {
		return errors.ErrPlanInvalid
	}
	return nil
}
