package models

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	// RunStatusPlanning indicates the decomposer is running.
	RunStatusPlanning RunStatus = "planning"
	// RunStatusExecuting indicates units are being generated.
	RunStatusExecuting RunStatus = "executing"
	// RunStatusIntegrating indicates the integration call is running.
	RunStatusIntegrating RunStatus = "integrating"
	// RunStatusDone indicates the run reached its final state.
	RunStatusDone RunStatus = "done"
	// RunStatusFailed indicates planning failed and the run was aborted.
	RunStatusFailed RunStatus = "failed"
	// RunStatusInterrupted indicates a stop signal ended execution early.
	RunStatusInterrupted RunStatus = "interrupted"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPlanning, RunStatusExecuting, RunStatusIntegrating,
		RunStatusDone, RunStatusFailed, RunStatusInterrupted:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions happen from this status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// UnitStatus represents the journaled state of one unit execution.
type UnitStatus string

const (
	// UnitStatusPending indicates the unit has not run.
	UnitStatusPending UnitStatus = "pending"
	// UnitStatusDone indicates the artifact was persisted.
	UnitStatusDone UnitStatus = "done"
	// UnitStatusFailed indicates the backend call failed and an empty artifact was kept.
	UnitStatusFailed UnitStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitStatusPending, UnitStatusDone, UnitStatusFailed:
		return true
	default:
		return false
	}
}
