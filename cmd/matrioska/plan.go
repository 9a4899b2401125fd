package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/matrioska/internal/checkpoint"
	"github.com/ShayCichocki/matrioska/internal/decompose"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

var planFormat string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the persisted plan",
	Long: `Show the plan saved by the last run, in execution order, followed by
any validation warnings (for example a unit that reads a shared state key no
earlier unit writes).

Formats: text (default), json, yaml`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planFormat, "format", "text", "Output format: text, json or yaml")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	plan, err := checkpoint.NewPlanStore(cfg.Storage.Checkpoints()).Load()
	if err != nil {
		return err
	}

	switch strings.ToLower(planFormat) {
	case "json":
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		fmt.Println(string(data))
	case "yaml", "yml":
		data, err := planYAML(plan)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	case "text", "":
		printPlan(plan)
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", planFormat)
	}
	return nil
}

// planYAML renders the plan with its JSON field names.
func planYAML(plan models.Plan) ([]byte, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	generic["schema"] = string(plan.Schema())

	out, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode plan as yaml: %w", err)
	}
	return out, nil
}

func printPlan(plan models.Plan) {
	fmt.Printf("%s (%s)\n", color.New(color.Bold).Sprint(plan.Name()), plan.Schema())
	if plan.Goal() != "" {
		fmt.Printf("Goal: %s\n", plan.Goal())
	}
	fmt.Println()

	for i, u := range plan.ExecutionOrder() {
		fmt.Printf("%2d. %s\n", i+1, u.Label())
		if len(u.DependsOn) > 0 {
			fmt.Printf("    after:  %s\n", strings.Join(u.DependsOn, ", "))
		}
		if len(u.Reads) > 0 {
			fmt.Printf("    reads:  %s\n", strings.Join(u.Reads, ", "))
		}
		if len(u.Writes) > 0 {
			fmt.Printf("    writes: %s\n", strings.Join(u.Writes, ", "))
		}
	}

	if rules := plan.IntegrationRules(); rules != "" {
		fmt.Printf("\nIntegration: %s\n", rules)
	}

	result := decompose.Validate(plan)
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), e)
	}
	for _, w := range result.Warnings {
		fmt.Printf("%s %s\n", color.YellowString("⚠"), w)
	}
}
