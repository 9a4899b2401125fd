// Package models defines the data model shared by the decomposer, executor and pipeline.
package models

import "strings"

// WorkUnit represents one schedulable piece of generation work.
type WorkUnit struct {
	// ID is the stable identifier of the unit.
	ID string `json:"id"`
	// Name is the human-readable name. For file units it is the file name without extension.
	Name string `json:"name"`
	// Extension is the file extension for file units, empty for modules.
	Extension string `json:"extension,omitempty"`
	// Instructions is the natural-language manual handed to the backend.
	Instructions string `json:"instructions"`
	// Requirements holds the requirement notes (rules or details).
	Requirements string `json:"requirements,omitempty"`
	// Inputs describes what the module consumes.
	Inputs string `json:"inputs,omitempty"`
	// Outputs describes what the module produces.
	Outputs string `json:"outputs,omitempty"`
	// DependsOn lists prerequisite unit IDs (graph schema).
	DependsOn []string `json:"depends_on,omitempty"`
	// Order is the explicit creation order (ordered schema).
	Order int `json:"order,omitempty"`
	// Reads lists blackboard keys the unit declares it will read.
	Reads []string `json:"shared_state_reads,omitempty"`
	// Writes lists blackboard keys the unit declares it will write.
	Writes []string `json:"shared_state_writes,omitempty"`
}

// FileName returns the artifact file name for the unit.
func (u *WorkUnit) FileName() string {
	ext := strings.TrimPrefix(strings.TrimSpace(u.Extension), ".")
	if ext != "" {
		name := u.Name
		if name == "" {
			name = u.ID
		}
		return name + "." + ext
	}
	return u.ID + ".txt"
}

// Label returns the display label used in logs and progress output.
func (u *WorkUnit) Label() string {
	if u.Extension != "" {
		return u.FileName()
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// Artifact is the generated content for one WorkUnit.
type Artifact struct {
	// UnitID is the ID of the unit that produced this artifact.
	UnitID string `json:"unit_id"`
	// Name is the unit name.
	Name string `json:"name"`
	// FileName is the file the content was persisted to, relative to the artifacts dir.
	FileName string `json:"file_name"`
	// Order mirrors the unit's order for file units.
	Order int `json:"order,omitempty"`
	// Content is the generated content, with the update block stripped when configured.
	Content string `json:"content"`
	// Updates are the blackboard updates this unit contributed.
	Updates map[string]any `json:"shared_state_updates,omitempty"`
	// Path is the absolute path of the persisted artifact.
	Path string `json:"path,omitempty"`
	// Error records the backend failure that left Content empty.
	Error string `json:"error,omitempty"`
}
