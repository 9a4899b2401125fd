package state

import (
	"io"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// RunStore handles run-level journal operations.
type RunStore interface {
	CreateRun(task string, schema models.Schema) (*Run, error)
	UpdateRunStatus(id string, status models.RunStatus, errMsg string) error
	MarkDegraded(id string) error
	ClaimRun(id string) error
	GetRun(id string) (*Run, error)
	LatestRun() (*Run, error)
	RecoverAbandoned() ([]string, error)
	ResumableRun() (*Run, error)
}

// UnitStore handles unit-level journal operations.
type UnitStore interface {
	RecordUnit(u *UnitRecord) error
	CompletedUnits(runID string) (map[string]bool, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Journal is the persistence surface the pipeline depends on, so it can run
// against any backend without knowing about SQLite.
type Journal interface {
	io.Closer
	Migrator
	RunStore
	UnitStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Journal   = (*DB)(nil)
	_ Migrator  = (*DB)(nil)
	_ RunStore  = (*DB)(nil)
	_ UnitStore = (*DB)(nil)
)
