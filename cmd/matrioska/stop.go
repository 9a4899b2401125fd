package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/watch"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running pipeline to stop after the current unit",
	Long: `Create the stop file in the checkpoints directory. A running pipeline
finishes the unit it is generating, records the run as interrupted and
exits. Continue it later with 'matrioska run --resume'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := watch.RequestStop(cfg.Storage.Checkpoints()); err != nil {
			return fmt.Errorf("request stop: %w", err)
		}
		printStatus("✓", "Stop requested", color.FgGreen)
		return nil
	},
}
