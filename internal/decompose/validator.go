package decompose

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/matrioska/internal/graph"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// ValidationResult contains the results of validating a plan.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks that a plan is executable and reports contract gaps.
// Empty plans, blank ids, duplicate ids and file units without a name are errors. Reads not satisfied
// by an earlier write, blank instructions and dependency cycles are warnings.
func Validate(plan models.Plan) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	units := plan.Units()
	if len(units) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "plan has no units")
		return result
	}

	validateStructure(plan.Schema(), units, &result)
	if !result.Valid {
		return result
	}

	if plan.Schema() == models.SchemaGraph {
		validateGraph(units, &result)
	} else {
		validateOrder(units, &result)
	}

	for _, v := range models.ReadViolations(plan) {
		result.Warnings = append(result.Warnings, v.String())
	}

	return result
}

// validateStructure checks identifiers and required fields.
func validateStructure(schema models.Schema, units []*models.WorkUnit, result *ValidationResult) {
	seen := make(map[string]bool, len(units))
	for i, u := range units {
		if u == nil || strings.TrimSpace(u.ID) == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("unit %d has no id", i+1))
			continue
		}
		if seen[u.ID] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate unit id %q", u.ID))
			continue
		}
		seen[u.ID] = true

		if schema == models.SchemaOrdered && strings.TrimSpace(u.Name) == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("file %d (%s) has no name", i+1, u.ID))
			continue
		}

		if strings.TrimSpace(u.Instructions) == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unit %s has no instructions", u.ID))
		}
	}
}

func validateGraph(units []*models.WorkUnit, result *ValidationResult) {
	nodes := make([]graph.Node, len(units))
	for i, u := range units {
		nodes[i] = u
	}

	g := graph.New()
	if err := g.Build(nodes); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("dependency graph: %v, listed order will be used", err))
	}
}

func validateOrder(units []*models.WorkUnit, result *ValidationResult) {
	seen := make(map[int]string, len(units))
	for _, u := range units {
		if u.Order < 1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unit %s has order %d, orders start at 1", u.ID, u.Order))
		}
		if prev, ok := seen[u.Order]; ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("units %s and %s share order %d", prev, u.ID, u.Order))
			continue
		}
		seen[u.Order] = u.ID
	}
}
