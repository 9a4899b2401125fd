package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/checkpoint"
	"github.com/ShayCichocki/matrioska/internal/state"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// recentRuns is the number of runs listed by status.
const recentRuns = 5

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and unit progress",
	Long: `Display the run journal:

Shows:
  - The latest run with its status and per-unit progress
  - The files in the artifacts directory
  - Recent runs, including interrupted runs that can be resumed`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	latest, err := ws.journal.LatestRun()
	if errors.Is(err, state.ErrRunNotFound) {
		fmt.Println("No runs yet. Run 'matrioska run <task>' to start.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get latest run: %w", err)
	}

	displayRun(latest)

	units, err := ws.journal.ListUnits(latest.ID)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}
	if len(units) > 0 {
		fmt.Println("\nUnits:")
		for _, u := range units {
			line := fmt.Sprintf("  %s %s", unitSymbol(u.Status), u.FileName)
			if u.Error != "" {
				line += "  " + color.RedString(truncate(u.Error, 60))
			}
			fmt.Println(line)
		}
	}

	if err := displayArtifacts(os.Stdout, ws.artifacts); err != nil {
		return err
	}

	return displayRecentRuns(ws.journal, latest.ID)
}

// displayArtifacts lists the files currently in the artifacts directory.
func displayArtifacts(w io.Writer, store *checkpoint.ArtifactStore) error {
	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\nArtifacts (%s):\n", store.Dir())
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

func displayRun(r *state.Run) {
	fmt.Printf("Run %s\n", r.ID)
	fmt.Printf("  Task:    %s\n", truncate(r.Task, 70))
	fmt.Printf("  Schema:  %s\n", r.Schema)
	fmt.Printf("  Status:  %s\n", runStatusColor(r.Status))
	fmt.Printf("  Started: %s (%s ago)\n", r.StartedAt.Format("2006-01-02 15:04:05"), time.Since(r.StartedAt).Round(time.Second))
	if r.Degraded {
		fmt.Printf("  %s ran as a single unit after decomposition failed\n", color.YellowString("⚠"))
	}
	if r.Error != "" {
		fmt.Printf("  Error:   %s\n", color.RedString(r.Error))
	}
	if r.Status == models.RunStatusInterrupted {
		fmt.Println("  Resume with: matrioska run --resume")
	}
}

func displayRecentRuns(db *state.DB, skip string) error {
	runs, err := db.ListRuns(nil)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	var shown int
	for _, r := range runs {
		if r.ID == skip {
			continue
		}
		if shown == 0 {
			fmt.Println("\nRecent runs:")
		}
		fmt.Printf("  %s  %-12s %s\n", r.StartedAt.Format("01-02 15:04"), runStatusColor(r.Status), truncate(r.Task, 50))
		shown++
		if shown == recentRuns {
			break
		}
	}
	return nil
}

func runStatusColor(s models.RunStatus) string {
	switch s {
	case models.RunStatusDone:
		return color.GreenString(string(s))
	case models.RunStatusFailed:
		return color.RedString(string(s))
	case models.RunStatusInterrupted:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func unitSymbol(s models.UnitStatus) string {
	switch s {
	case models.UnitStatusDone:
		return color.GreenString("✓")
	case models.UnitStatusFailed:
		return color.RedString("✗")
	default:
		return "·"
	}
}
