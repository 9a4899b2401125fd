package decompose

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// graphDocument is the reply shape for the dependency-graph-of-modules schema.
type graphDocument struct {
	ProjectName     string           `json:"project_name" jsonschema:"required,description=Short human-readable project name"`
	GeneralManual   *generalManual   `json:"general_manual" jsonschema:"required"`
	SpecificManuals []specificManual `json:"specific_manuals,omitempty" jsonschema:"description=Detailed manuals keyed by module id"`
}

type generalManual struct {
	Goal             notes         `json:"goal" jsonschema:"required,description=Overall goal of the project"`
	Modules          []graphModule `json:"modules" jsonschema:"required,minItems=1"`
	IntegrationRules notes         `json:"integration_rules" jsonschema:"description=How the module outputs are combined into the final result"`
}

type graphModule struct {
	ID                string   `json:"id" jsonschema:"required,description=Unique snake_case module id"`
	Name              string   `json:"name" jsonschema:"required"`
	Description       notes    `json:"description" jsonschema:"required"`
	Inputs            notes    `json:"inputs,omitempty"`
	Outputs           notes    `json:"outputs,omitempty"`
	Dependencies      keyList  `json:"dependencies" jsonschema:"description=Ids of modules that must run first"`
	Rules             notes    `json:"rules,omitempty"`
	SharedStateReads  keyList  `json:"shared_state_reads" jsonschema:"description=Shared state keys this module reads"`
	SharedStateWrites keyList  `json:"shared_state_writes" jsonschema:"description=Shared state keys this module writes"`
}

type specificManual struct {
	ModuleID   string `json:"module_id" jsonschema:"required"`
	ManualText notes  `json:"manual_text" jsonschema:"required"`
}

// orderedDocument is the reply shape for the ordered-list-of-files schema.
type orderedDocument struct {
	Instructs *instructs `json:"instructs" jsonschema:"required"`
}

type instructs struct {
	Files []orderedFile `json:"files" jsonschema:"required,minItems=1"`
}

type orderedFile struct {
	Name              string   `json:"name" jsonschema:"required,description=File name without extension"`
	Extension         string   `json:"extension" jsonschema:"required,description=File extension without the dot"`
	Order             flexInt  `json:"order" jsonschema:"required,minimum=1,description=Creation order starting at 1"`
	SharedStateWrites keyList  `json:"shared_state_writes" jsonschema:"description=Key information this file defines"`
	SharedStateReads  keyList  `json:"shared_state_reads" jsonschema:"description=Key information this file needs from earlier files"`
	Content           notes    `json:"content" jsonschema:"required,description=Complete prompt for a coding model to generate the whole file"`
	Details           notes    `json:"details,omitempty" jsonschema:"description=Concise functional and non-functional requirements"`
}

// toPlan converts the decoded graph document into a plan. Dependencies on
// unknown module ids are dropped with a warning.
func (d *graphDocument) toPlan() (*models.GraphPlan, []string) {
	manuals := make(map[string]string, len(d.SpecificManuals))
	for _, m := range d.SpecificManuals {
		manuals[m.ModuleID] = string(m.ManualText)
	}

	known := make(map[string]bool, len(d.GeneralManual.Modules))
	for _, m := range d.GeneralManual.Modules {
		known[m.ID] = true
	}

	var warnings []string
	units := make([]*models.WorkUnit, 0, len(d.GeneralManual.Modules))
	for _, m := range d.GeneralManual.Modules {
		instructions := string(m.Description)
		if text, ok := manuals[m.ID]; ok && strings.TrimSpace(text) != "" {
			instructions = text
		}

		var deps []string
		for _, dep := range m.Dependencies {
			if !known[dep] {
				warnings = append(warnings, fmt.Sprintf("module %s depends on unknown module %q, dropped", m.ID, dep))
				continue
			}
			deps = append(deps, dep)
		}

		units = append(units, &models.WorkUnit{
			ID:           m.ID,
			Name:         m.Name,
			Instructions: instructions,
			Requirements: string(m.Rules),
			Inputs:       string(m.Inputs),
			Outputs:      string(m.Outputs),
			DependsOn:    deps,
			Reads:        m.SharedStateReads,
			Writes:       m.SharedStateWrites,
		})
	}

	return &models.GraphPlan{
		ProjectName: d.ProjectName,
		ProjectGoal: string(d.GeneralManual.Goal),
		Modules:     units,
		Integration: string(d.GeneralManual.IntegrationRules),
	}, warnings
}

// toPlan converts the decoded ordered document into a plan sorted by order.
func (d *orderedDocument) toPlan() *models.OrderedPlan {
	units := make([]*models.WorkUnit, 0, len(d.Instructs.Files))
	for _, f := range d.Instructs.Files {
		ext := strings.TrimPrefix(strings.TrimSpace(f.Extension), ".")
		id := f.Name
		if ext != "" {
			id = f.Name + "." + ext
		}
		units = append(units, &models.WorkUnit{
			ID:           id,
			Name:         f.Name,
			Extension:    ext,
			Instructions: string(f.Content),
			Requirements: string(f.Details),
			Order:        int(f.Order),
			Reads:        f.SharedStateReads,
			Writes:       f.SharedStateWrites,
		})
	}

	plan := &models.OrderedPlan{
		ProjectName: fmt.Sprintf("Project_%d_Files", len(units)),
		Files:       units,
	}
	plan.SortByOrder()
	return plan
}

// notes is free text the model may send as a string, a list of strings or
// another JSON value. Lists are joined one item per line.
type notes string

func (n *notes) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = notes(flatten(v))
	return nil
}

// keyList is a list of ids or keys that may also arrive as a single string.
type keyList []string

func (k *keyList) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*k = nil
	case []any:
		keys := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(flatten(e)); s != "" {
				keys = append(keys, s)
			}
		}
		*k = keys
	default:
		if s := strings.TrimSpace(flatten(t)); s != "" {
			*k = keyList{s}
		} else {
			*k = nil
		}
	}
	return nil
}

// flexInt is an integer the model may send as a number or a numeric string.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*i = 0
	case float64:
		*i = flexInt(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("%q is not an integer", t)
		}
		*i = flexInt(n)
	default:
		return fmt.Errorf("%s is not an integer", data)
	}
	return nil
}

func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
