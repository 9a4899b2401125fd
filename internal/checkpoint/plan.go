// Package checkpoint persists the validated plan and the generated artifacts
// so a run can be inspected, integrated or resumed after the process exits.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/matrioska/internal/fsutil"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// PlanFileName is the name of the plan checkpoint inside the checkpoints directory.
const PlanFileName = "architecture.json"

// ErrNoPlan is returned by Load when no plan has been saved, and by LoadRun
// when the saved plan belongs to another run.
var ErrNoPlan = errors.New("no saved plan")

// envelope tags the stored plan with its schema so Load can pick the concrete
// type, and with the run that produced it.
type envelope struct {
	RunID  string          `json:"run_id,omitempty"`
	Schema models.Schema   `json:"schema"`
	Plan   json.RawMessage `json:"plan"`
}

// PlanStore saves and loads the plan checkpoint.
type PlanStore struct {
	path string
}

// NewPlanStore returns a store writing architecture.json under dir.
func NewPlanStore(dir string) *PlanStore {
	return &PlanStore{path: filepath.Join(dir, PlanFileName)}
}

// Path returns the checkpoint file path.
func (s *PlanStore) Path() string {
	return s.path
}

// Save writes the plan checkpoint of runID, replacing any previous one.
func (s *PlanStore) Save(runID string, plan models.Plan) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}

	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	data, err := json.MarshalIndent(envelope{RunID: runID, Schema: plan.Schema(), Plan: body}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan envelope: %w", err)
	}

	if err := fsutil.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write plan checkpoint: %w", err)
	}
	return nil
}

// Load reads the plan checkpoint, whichever run saved it.
func (s *PlanStore) Load() (models.Plan, error) {
	plan, _, err := s.load()
	return plan, err
}

// LoadRun reads the plan checkpoint saved by runID. A plan saved by any other
// run is reported as ErrNoPlan.
func (s *PlanStore) LoadRun(runID string) (models.Plan, error) {
	plan, owner, err := s.load()
	if err != nil {
		return nil, err
	}
	if owner != runID {
		return nil, fmt.Errorf("%w for run %q (checkpoint belongs to %q)", ErrNoPlan, runID, owner)
	}
	return plan, nil
}

func (s *PlanStore) load() (models.Plan, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNoPlan
		}
		return nil, "", fmt.Errorf("read plan checkpoint: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal plan envelope: %w", err)
	}

	var plan models.Plan
	switch env.Schema {
	case models.SchemaGraph:
		plan = &models.GraphPlan{}
	case models.SchemaOrdered:
		plan = &models.OrderedPlan{}
	default:
		return nil, "", fmt.Errorf("unknown plan schema %q in %s", env.Schema, s.path)
	}

	if err := json.Unmarshal(env.Plan, plan); err != nil {
		return nil, "", fmt.Errorf("unmarshal %s plan: %w", env.Schema, err)
	}
	return plan, env.RunID, nil
}
