package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// Run is one pipeline execution recorded in the journal.
type Run struct {
	ID        string           `json:"id"`
	Task      string           `json:"task"`
	Schema    models.Schema    `json:"schema"`
	Status    models.RunStatus `json:"status"`
	Degraded  bool             `json:"degraded"`
	PID       int              `json:"pid"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// UnitRecord is the journal entry for one work unit of a run.
type UnitRecord struct {
	RunID     string            `json:"run_id"`
	UnitID    string            `json:"unit_id"`
	Position  int               `json:"position"`
	Status    models.UnitStatus `json:"status"`
	FileName  string            `json:"file_name"`
	Error     string            `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreateRun inserts a new run in the planning state and returns it.
func (db *DB) CreateRun(task string, schema models.Schema) (*Run, error) {
	now := time.Now()
	r := &Run{
		ID:        uuid.New().String(),
		Task:      task,
		Schema:    schema,
		Status:    models.RunStatusPlanning,
		PID:       os.Getpid(),
		StartedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(`
		INSERT INTO runs (id, task, schema_name, status, degraded, pid, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Task, string(r.Schema), string(r.Status), boolToInt(r.Degraded), r.PID,
		formatTime(r.StartedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// UpdateRunStatus sets the status of a run. A non-empty errMsg is recorded
// alongside it.
func (db *DB) UpdateRunStatus(id string, status models.RunStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid run status %q", status)
	}

	result, err := db.Exec(`
		UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(status), nullString(errMsg), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// MarkDegraded records that the run is executing a fallback plan.
func (db *DB) MarkDegraded(id string) error {
	_, err := db.Exec(`
		UPDATE runs SET degraded = 1, updated_at = ? WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark run degraded: %w", err)
	}
	return nil
}

// ClaimRun records the current process as the owner of a run being resumed.
func (db *DB) ClaimRun(id string) error {
	_, err := db.Exec(`
		UPDATE runs SET pid = ?, updated_at = ? WHERE id = ?
	`, os.Getpid(), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	return nil
}

const runColumns = `id, task, schema_name, status, degraded, pid, error, started_at, updated_at`

// GetRun retrieves a run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (*Run, error) {
	row := db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return r, nil
}

// ListRuns lists runs newest first, optionally filtered by status.
func (db *DB) ListRuns(status *models.RunStatus) ([]Run, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY started_at DESC, rowid DESC`, string(*status))
	} else {
		rows, err = db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RecordUnit upserts the journal entry for a unit.
func (db *DB) RecordUnit(u *UnitRecord) error {
	if !u.Status.Valid() {
		return fmt.Errorf("invalid unit status %q", u.Status)
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO units (run_id, unit_id, position, status, file_name, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, unit_id) DO UPDATE SET
			position = excluded.position,
			status = excluded.status,
			file_name = excluded.file_name,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, u.RunID, u.UnitID, u.Position, string(u.Status), nullString(u.FileName), nullString(u.Error), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("record unit %s: %w", u.UnitID, err)
	}
	return nil
}

// ListUnits returns the unit entries of a run ordered by position.
func (db *DB) ListUnits(runID string) ([]UnitRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, unit_id, position, status, file_name, error, updated_at
		FROM units WHERE run_id = ? ORDER BY position, unit_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		var u UnitRecord
		var fileName, errMsg sql.NullString
		var updatedAt string
		if err := rows.Scan(&u.RunID, &u.UnitID, &u.Position, &u.Status, &fileName, &errMsg, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.FileName = fileName.String
		u.Error = errMsg.String
		u.UpdatedAt, _ = parseTime(updatedAt)
		units = append(units, u)
	}
	return units, rows.Err()
}

// CompletedUnits returns the set of unit ids recorded as done for a run.
func (db *DB) CompletedUnits(runID string) (map[string]bool, error) {
	rows, err := db.Query(`
		SELECT unit_id FROM units WHERE run_id = ? AND status = ?
	`, runID, string(models.UnitStatusDone))
	if err != nil {
		return nil, fmt.Errorf("list completed units: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed unit: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var degraded int
	var errMsg sql.NullString
	var startedAt, updatedAt string
	if err := row.Scan(&r.ID, &r.Task, &r.Schema, &r.Status, &degraded, &r.PID, &errMsg, &startedAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Degraded = degraded != 0
	r.Error = errMsg.String
	r.StartedAt, _ = parseTime(startedAt)
	r.UpdatedAt, _ = parseTime(updatedAt)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
