package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/api"
	"github.com/ShayCichocki/matrioska/internal/blackboard"
	"github.com/ShayCichocki/matrioska/internal/pipeline"
	"github.com/ShayCichocki/matrioska/internal/watch"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

var (
	runSchema string
	runResume bool
	runTUI    bool
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Decompose a task and generate every unit",
	Long: `Run the full pipeline for a natural-language task:

  1. PLANNING     the task is decomposed into units and the plan is saved
  2. EXECUTING    each unit is generated in order with the shared state it reads
  3. INTEGRATING  (graph schema) all artifacts are combined into one result

Create the stop file with 'matrioska stop' (or press 's' in the TUI) to end
the run after the current unit. Resume it later with --resume.

Examples:
  matrioska run "Create a todo app with local storage"
  matrioska run --schema ordered "Landing page with a contact form"
  matrioska run --resume`,
	Args: func(cmd *cobra.Command, args []string) error {
		if runResume {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSchema, "schema", "", "Plan schema: graph or ordered (default from config)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume the most recent interrupted run")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live progress view")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runSchema != "" {
		schema, err := models.ParseSchema(runSchema)
		if err != nil {
			return err
		}
		cfg.Pipeline.Schema = string(schema)
	}

	ws, err := openWorkspace(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	if runResume {
		rec, err := ws.journal.ResumableRun()
		if err != nil {
			return fmt.Errorf("nothing to resume: %w", err)
		}
		// The run keeps the schema it was planned with.
		cfg.Pipeline.Schema = string(rec.Schema)
	}

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	gen, backend, err := createGenerator(cfg)
	if err != nil {
		return err
	}

	watcher, err := watch.New(ws.checkpoints, blackboard.FileName)
	if err != nil {
		return fmt.Errorf("watch checkpoints: %w", err)
	}
	defer watcher.Close()
	watcher.ClearStop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps := pipeline.Deps{
		Generator: gen,
		Board:     ws.board,
		Plans:     ws.plans,
		Artifacts: ws.artifacts,
		Journal:   ws.journal,
		Stop:      watcher,
	}

	task := strings.Join(args, " ")
	start := func(p *pipeline.Pipeline) (*pipeline.Result, error) {
		if runResume {
			return p.Resume(ctx)
		}
		return p.Run(ctx, task)
	}

	var res *pipeline.Result
	if runTUI {
		res, err = runWithTUI(deps, opts, watcher, cfg.TUI.RefreshRate, start)
	} else {
		deps.Progress = printProgress
		res, err = start(pipeline.New(deps, opts))
	}
	if err != nil {
		return err
	}

	printResult(res, backend)
	return nil
}

// printProgress writes unit-level progress lines to stdout.
func printProgress(e pipeline.ProgressEvent) {
	switch e.Type {
	case pipeline.EventPlanReady:
		fmt.Printf("Plan: %s (%d units)\n", e.Message, e.Total)
	case pipeline.EventUnitStarted:
		fmt.Printf("[%d/%d] %s...\n", e.Index, e.Total, e.Label)
	case pipeline.EventUnitFailed:
		fmt.Printf("[%d/%d] %s %s: %v\n", e.Index, e.Total, e.Label, color.RedString("failed"), e.Err)
	case pipeline.EventUnitSkipped:
		fmt.Printf("[%d/%d] %s (already done)\n", e.Index, e.Total, e.Label)
	case pipeline.EventWarning:
		msg := e.Message
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
		fmt.Printf("%s %s\n", color.YellowString("⚠"), msg)
	case pipeline.EventPhase:
		if e.Phase == models.RunStatusIntegrating {
			fmt.Println("Integrating artifacts...")
		}
	}
}

// printResult prints the plan, artifacts, shared state and integrated output.
func printResult(res *pipeline.Result, backend api.Backend) {
	fmt.Println()
	if res.Interrupted && res.Plan == nil {
		fmt.Printf("%s Run %s stopped while planning. Resume with: matrioska run --resume\n",
			color.YellowString("⚠"), res.RunID)
		return
	}
	if res.Interrupted {
		fmt.Printf("%s Run %s stopped after %d of %d units. Resume with: matrioska run --resume\n",
			color.YellowString("⚠"), res.RunID, len(res.Artifacts), len(res.Plan.Units()))
		return
	}

	fmt.Printf("%s %s\n", color.GreenString("✓"), res.Plan.Name())
	if res.Degraded {
		fmt.Printf("  %s decomposition failed, ran the task as a single unit\n", color.YellowString("⚠"))
	}

	fmt.Println("\nArtifacts:")
	for _, a := range res.Artifacts {
		status := color.GreenString("✓")
		if a.Error != "" {
			status = color.RedString("✗")
		}
		fmt.Printf("  %s %s (%d bytes)\n", status, a.Path, len(a.Content))
	}

	if len(res.SharedState) > 0 {
		data, err := json.MarshalIndent(res.SharedState, "  ", "  ")
		if err == nil {
			fmt.Printf("\nShared state:\n  %s\n", data)
		}
	}

	if res.Integrated != "" {
		fmt.Printf("\nIntegrated result:\n%s\n", res.Integrated)
	}

	if backend != nil {
		in, out := backend.Tracker().Total()
		fmt.Printf("\nTokens: %d in, %d out (~$%.4f)\n", in, out, backend.Tracker().Cost())
	}
}

// errInterruptedTUI is returned when the TUI is closed before the run ends.
var errInterruptedTUI = errors.New("progress view closed before the run finished")
