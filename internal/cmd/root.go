// Package cmd defines the maestro command line interface. Commands load
// their configuration through viper, wire the execution stack, and map
// failures to exit codes in main.
package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/maestro/internal/config"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Staged milestone orchestrator for coding agents",
	Long: `Maestro executes a milestone plan with a code-generation agent.
Milestones are grouped into stages by number; stages run in sequence while
the milestones inside a stage run concurrently, each isolated in its own
git worktree. Progress is checkpointed so an interrupted run can resume.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./maestro.yaml or $HOME/.config/maestro/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// A .env next to the working directory may carry agent credentials.
	// Missing files are fine.
	_ = godotenv.Load()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("maestro")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAESTRO")
	// Replace dots with underscores for nested keys in env vars
	// e.g., MAESTRO_EXECUTION_MAX_WORKERS for execution.max_workers
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
