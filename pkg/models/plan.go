package models

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ShayCichocki/matrioska/internal/graph"
)

// Schema identifies which plan shape the decomposer produced.
type Schema string

const (
	// SchemaGraph is the dependency-graph-of-modules schema.
	SchemaGraph Schema = "graph"
	// SchemaOrdered is the ordered-list-of-files schema.
	SchemaOrdered Schema = "ordered"
)

// Valid returns true if the schema is a known value.
func (s Schema) Valid() bool {
	return s == SchemaGraph || s == SchemaOrdered
}

// ParseSchema converts a user-supplied name into a Schema.
func ParseSchema(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "graph", "modules", "dag":
		return SchemaGraph, nil
	case "ordered", "files", "list":
		return SchemaOrdered, nil
	default:
		return "", fmt.Errorf("unknown plan schema %q (want graph or ordered)", name)
	}
}

// Plan is a validated decomposition of a task into WorkUnits.
type Plan interface {
	// Schema reports which plan shape this is.
	Schema() Schema
	// Name is the project name.
	Name() string
	// Goal is the overall goal, empty for ordered plans.
	Goal() string
	// Units returns the units in decoded order.
	Units() []*WorkUnit
	// ExecutionOrder returns the units in the order they must be executed.
	ExecutionOrder() []*WorkUnit
	// IntegrationRules returns the cross-cutting combination instruction, empty for ordered plans.
	IntegrationRules() string
}

// NodeID implements graph.Node.
func (u *WorkUnit) NodeID() string { return u.ID }

// Dependencies implements graph.Node.
func (u *WorkUnit) Dependencies() []string { return u.DependsOn }

// GraphPlan is a plan whose units carry explicit prerequisite IDs.
type GraphPlan struct {
	ProjectName string      `json:"project_name"`
	ProjectGoal string      `json:"goal"`
	Modules     []*WorkUnit `json:"modules"`
	Integration string      `json:"integration_rules"`
}

// Schema implements Plan.
func (p *GraphPlan) Schema() Schema { return SchemaGraph }

// Name implements Plan.
func (p *GraphPlan) Name() string { return p.ProjectName }

// Goal implements Plan.
func (p *GraphPlan) Goal() string { return p.ProjectGoal }

// Units implements Plan.
func (p *GraphPlan) Units() []*WorkUnit { return p.Modules }

// IntegrationRules implements Plan.
func (p *GraphPlan) IntegrationRules() string { return p.Integration }

// ExecutionOrder returns a stable topological order of the modules.
// An already-valid listed order is returned unchanged. If the declared
// graph has a cycle the listed order is used.
func (p *GraphPlan) ExecutionOrder() []*WorkUnit {
	g := graph.New()
	nodes := make([]graph.Node, len(p.Modules))
	byID := make(map[string]*WorkUnit, len(p.Modules))
	for i, m := range p.Modules {
		nodes[i] = m
		byID[m.ID] = m
	}

	if err := g.Build(nodes); err != nil {
		log.Printf("[plan] %s: keeping listed module order: %v", p.ProjectName, err)
		return append([]*WorkUnit(nil), p.Modules...)
	}

	ids, err := g.TopologicalSort()
	if err != nil {
		log.Printf("[plan] %s: keeping listed module order: %v", p.ProjectName, err)
		return append([]*WorkUnit(nil), p.Modules...)
	}

	ordered := make([]*WorkUnit, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered
}

// OrderedPlan is a plan whose units carry an explicit creation order.
type OrderedPlan struct {
	ProjectName string      `json:"project_name"`
	Files       []*WorkUnit `json:"files"`
}

// Schema implements Plan.
func (p *OrderedPlan) Schema() Schema { return SchemaOrdered }

// Name implements Plan.
func (p *OrderedPlan) Name() string { return p.ProjectName }

// Goal implements Plan.
func (p *OrderedPlan) Goal() string { return "" }

// Units implements Plan.
func (p *OrderedPlan) Units() []*WorkUnit { return p.Files }

// IntegrationRules implements Plan.
func (p *OrderedPlan) IntegrationRules() string { return "" }

// ExecutionOrder returns the files sorted ascending by Order.
// Files sharing an order keep their listed position.
func (p *OrderedPlan) ExecutionOrder() []*WorkUnit {
	ordered := append([]*WorkUnit(nil), p.Files...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})
	return ordered
}

// SortByOrder sorts the plan's files in place by their Order field.
func (p *OrderedPlan) SortByOrder() {
	p.Files = p.ExecutionOrder()
}

// ReadViolation records a declared read that no earlier unit declares as a write.
type ReadViolation struct {
	UnitID string
	Key    string
}

func (v ReadViolation) String() string {
	return fmt.Sprintf("%s reads %q before any unit writes it", v.UnitID, v.Key)
}

// ReadViolations reports every declared read that is not satisfied by a write
// declared in a causally preceding unit: a transitive dependency for graph
// plans, a unit with a strictly lower order for ordered plans.
func ReadViolations(p Plan) []ReadViolation {
	var violations []ReadViolation
	units := p.ExecutionOrder()

	for _, u := range units {
		available := make(map[string]bool)
		for _, prev := range predecessors(p, u) {
			for _, key := range prev.Writes {
				available[key] = true
			}
		}
		for _, key := range u.Reads {
			if !available[key] {
				violations = append(violations, ReadViolation{UnitID: u.ID, Key: key})
			}
		}
	}

	return violations
}

// predecessors returns the units that causally precede u in p.
func predecessors(p Plan, u *WorkUnit) []*WorkUnit {
	var result []*WorkUnit

	if p.Schema() == SchemaOrdered {
		for _, other := range p.Units() {
			if other.Order < u.Order {
				result = append(result, other)
			}
		}
		return result
	}

	byID := make(map[string]*WorkUnit, len(p.Units()))
	for _, other := range p.Units() {
		byID[other.ID] = other
	}

	seen := map[string]bool{u.ID: true}
	stack := append([]string(nil), u.DependsOn...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		dep, ok := byID[id]
		if !ok {
			continue
		}
		result = append(result, dep)
		stack = append(stack, dep.DependsOn...)
	}
	return result
}
