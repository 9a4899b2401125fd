// Package decompose turns a task description into a validated work plan.
package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/matrioska/internal/api"
	"github.com/ShayCichocki/matrioska/internal/extract"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// DefaultMaxTokens bounds the decomposition reply when Options leaves it unset.
const DefaultMaxTokens = 4000

var (
	// ErrNoJSON is returned when the reply contains no locatable JSON object.
	ErrNoJSON = extract.ErrNoJSON
	// ErrInvalidPlan is returned when the decoded document is not a usable plan.
	ErrInvalidPlan = errors.New("invalid plan")
)

// Options configures a Decomposer.
type Options struct {
	// Schema selects the plan shape requested from the backend.
	Schema models.Schema
	// Strategies are the JSON extraction strategies tried in order.
	// Defaults to brace-bounded extraction.
	Strategies []extract.Strategy
	// MaxTokens bounds the reply length.
	MaxTokens int
}

// Decomposer breaks a task into work units with a single backend call.
type Decomposer struct {
	gen  api.Generator
	opts Options
}

// New creates a Decomposer backed by gen.
func New(gen api.Generator, opts Options) *Decomposer {
	if !opts.Schema.Valid() {
		opts.Schema = models.SchemaGraph
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = []extract.Strategy{extract.BraceBounded}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Decomposer{gen: gen, opts: opts}
}

// Schema returns the plan shape this decomposer produces.
func (d *Decomposer) Schema() models.Schema {
	return d.opts.Schema
}

// Decompose asks the backend for a plan and validates the reply.
// Failures are returned as errors; substituting a fallback plan is left to the caller.
func (d *Decomposer) Decompose(ctx context.Context, task string) (models.Plan, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("decompose: %w: empty task", ErrInvalidPlan)
	}

	reply, err := d.gen.Generate(ctx, api.Request{
		System:    SystemPrompt(d.opts.Schema),
		Prompt:    UserPrompt(task),
		MaxTokens: d.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose: generate plan: %w", err)
	}

	plan, err := Parse(d.opts.Schema, reply, d.opts.Strategies...)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	log.Printf("[decompose] %s: %d units (%s)", plan.Name(), len(plan.Units()), plan.Schema())
	return plan, nil
}

// Parse extracts and validates a plan of the given schema from a raw reply.
func Parse(schema models.Schema, reply string, strategies ...extract.Strategy) (models.Plan, error) {
	if schema == models.SchemaOrdered {
		return ParseOrdered(reply, strategies...)
	}
	return ParseGraph(reply, strategies...)
}

// ParseGraph extracts a dependency-graph plan from reply. Dependencies on
// undeclared modules are dropped and logged.
func ParseGraph(reply string, strategies ...extract.Strategy) (*models.GraphPlan, error) {
	obj, err := extract.Object(reply, strategies...)
	if err != nil {
		return nil, fmt.Errorf("extract plan: %w", err)
	}
	if err := requireKey(obj, "general_manual", "modules"); err != nil {
		return nil, err
	}

	var doc graphDocument
	if err := redecode(obj, &doc); err != nil {
		return nil, err
	}

	plan, warnings := doc.toPlan()
	for _, w := range warnings {
		log.Printf("[decompose] warning: %s", w)
	}

	if err := checkUnits(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ParseOrdered extracts an ordered-files plan from reply, sorted by order.
func ParseOrdered(reply string, strategies ...extract.Strategy) (*models.OrderedPlan, error) {
	obj, err := extract.Object(reply, strategies...)
	if err != nil {
		return nil, fmt.Errorf("extract plan: %w", err)
	}
	if err := requireKey(obj, "instructs", "files"); err != nil {
		return nil, err
	}

	var doc orderedDocument
	if err := redecode(obj, &doc); err != nil {
		return nil, err
	}

	plan := doc.toPlan()
	if err := checkUnits(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Fallback returns the degraded single-unit plan whose only unit carries
// the task text as its instructions.
func Fallback(task string, schema models.Schema) models.Plan {
	if schema == models.SchemaOrdered {
		return &models.OrderedPlan{
			ProjectName: "Project_1_Files",
			Files: []*models.WorkUnit{{
				ID:           "main.txt",
				Name:         "main",
				Extension:    "txt",
				Instructions: task,
				Requirements: "Be comprehensive",
				Order:        1,
			}},
		}
	}

	name := task
	if runes := []rune(name); len(runes) > 30 {
		name = string(runes[:30])
	}
	return &models.GraphPlan{
		ProjectName: "Project: " + name,
		ProjectGoal: task,
		Modules: []*models.WorkUnit{{
			ID:           "mod_main",
			Name:         "Implementation",
			Instructions: task,
			Requirements: "Be comprehensive",
		}},
		Integration: "Return result",
	}
}

// requireKey checks that obj[outer][inner] exists and is a JSON array.
func requireKey(obj map[string]any, outer, inner string) error {
	parent, ok := obj[outer].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: missing %q object", ErrInvalidPlan, outer)
	}
	if _, ok := parent[inner].([]any); !ok {
		return fmt.Errorf("%w: missing %s.%s array", ErrInvalidPlan, outer, inner)
	}
	return nil
}

func redecode(obj map[string]any, v any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

// checkUnits rejects plans that cannot be executed.
func checkUnits(plan models.Plan) error {
	result := Validate(plan)
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(result.Errors, "; "))
	}
	return nil
}
