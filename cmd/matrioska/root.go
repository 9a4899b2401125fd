package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/config"
)

var baseDirFlag string

var rootCmd = &cobra.Command{
	Use:   "matrioska",
	Short: "Decompose a task and generate it unit by unit",
	Long: `Matrioska turns a natural-language task into a plan of work units,
generates each unit with a language model and passes the facts each unit
declares (element IDs, API routes, class names) to the units that read them
through a shared blackboard.

Every step is checkpointed under the base directory, so an interrupted run
can be resumed with 'matrioska run --resume'.

Plan schemas:
- graph:   modules with explicit dependencies, combined by a final integration call
- ordered: files with an explicit creation order, each saved as its own artifact`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDirFlag, "base-dir", "", "Directory for checkpoints and artifacts (overrides storage.base_dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the layered configuration and applies the --base-dir flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseDirFlag != "" {
		cfg.Storage.BaseDir = baseDirFlag
		cfg.Storage.ArtifactsDir = ""
		cfg.Storage.CheckpointsDir = ""
	}
	return cfg, nil
}
