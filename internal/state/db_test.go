package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), FileName)
}

// setupTestDB creates a new migrated journal on the pure Go driver.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverModernc, tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", FileName)
	db, err := Open("", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.Driver() != DriverModernc {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverModernc)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", tempDBPath(t)); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	run, err := db.CreateRun("build a todo app", models.SchemaOrdered)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun returned empty id")
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Task != "build a todo app" || got.Schema != models.SchemaOrdered || got.Status != models.RunStatusPlanning {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", got.PID, os.Getpid())
	}

	transitions := []struct {
		status models.RunStatus
		errMsg string
	}{
		{models.RunStatusExecuting, ""},
		{models.RunStatusIntegrating, ""},
		{models.RunStatusDone, ""},
	}
	for _, tr := range transitions {
		if err := db.UpdateRunStatus(run.ID, tr.status, tr.errMsg); err != nil {
			t.Fatalf("UpdateRunStatus(%s): %v", tr.status, err)
		}
		got, err := db.GetRun(run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Status != tr.status {
			t.Errorf("Status = %s, want %s", got.Status, tr.status)
		}
	}

	if err := db.MarkDegraded(run.ID); err != nil {
		t.Fatalf("MarkDegraded: %v", err)
	}
	got, _ = db.GetRun(run.ID)
	if !got.Degraded {
		t.Error("Degraded = false after MarkDegraded")
	}
}

func TestUpdateRunStatus_Errors(t *testing.T) {
	db := setupTestDB(t)

	if err := db.UpdateRunStatus("missing", models.RunStatusDone, ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("missing run error = %v, want ErrRunNotFound", err)
	}

	run, err := db.CreateRun("t", models.SchemaGraph)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := db.UpdateRunStatus(run.ID, models.RunStatus("bogus"), ""); err == nil {
		t.Error("expected error for invalid status")
	}

	if err := db.UpdateRunStatus(run.ID, models.RunStatusFailed, "decomposition failed"); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	got, _ := db.GetRun(run.ID)
	if got.Error != "decomposition failed" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.GetRun("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.LatestRun(); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestLatestRun(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.CreateRun("first", models.SchemaGraph); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := db.CreateRun("second", models.SchemaGraph)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("LatestRun() = %s (%s), want %s", latest.ID, latest.Task, second.ID)
	}
}

func TestUnits(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.CreateRun("t", models.SchemaOrdered)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	records := []*UnitRecord{
		{RunID: run.ID, UnitID: "style", Position: 0, Status: models.UnitStatusDone, FileName: "style.css"},
		{RunID: run.ID, UnitID: "index", Position: 1, Status: models.UnitStatusFailed, Error: "backend down"},
		{RunID: run.ID, UnitID: "app", Position: 2, Status: models.UnitStatusPending},
	}
	for _, r := range records {
		if err := db.RecordUnit(r); err != nil {
			t.Fatalf("RecordUnit(%s): %v", r.UnitID, err)
		}
	}

	done, err := db.CompletedUnits(run.ID)
	if err != nil {
		t.Fatalf("CompletedUnits: %v", err)
	}
	if len(done) != 1 || !done["style"] {
		t.Errorf("CompletedUnits() = %v, want only style", done)
	}

	// Upsert moves index to done.
	if err := db.RecordUnit(&UnitRecord{RunID: run.ID, UnitID: "index", Position: 1, Status: models.UnitStatusDone, FileName: "index.html"}); err != nil {
		t.Fatalf("RecordUnit upsert: %v", err)
	}
	done, _ = db.CompletedUnits(run.ID)
	if len(done) != 2 || !done["index"] {
		t.Errorf("CompletedUnits() after upsert = %v", done)
	}

	units, err := db.ListUnits(run.ID)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("ListUnits() len = %d, want 3", len(units))
	}
	if units[1].UnitID != "index" || units[1].FileName != "index.html" || units[1].Error != "" {
		t.Errorf("units[1] = %+v", units[1])
	}
}

func TestRecordUnit_InvalidStatus(t *testing.T) {
	db := setupTestDB(t)
	run, _ := db.CreateRun("t", models.SchemaGraph)
	if err := db.RecordUnit(&UnitRecord{RunID: run.ID, UnitID: "u", Status: "running"}); err == nil {
		t.Error("expected error for invalid unit status")
	}
}

func TestRecoverAbandoned(t *testing.T) {
	db := setupTestDB(t)

	abandoned, _ := db.CreateRun("abandoned", models.SchemaGraph)
	finished, _ := db.CreateRun("finished", models.SchemaGraph)
	current, _ := db.CreateRun("current", models.SchemaGraph)

	// A pid that cannot belong to a live process.
	if _, err := db.Exec("UPDATE runs SET pid = ?, status = ? WHERE id = ?", -1, "executing", abandoned.ID); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := db.Exec("UPDATE runs SET pid = ?, status = ? WHERE id = ?", -1, "done", finished.ID); err != nil {
		t.Fatalf("setup: %v", err)
	}

	recovered, err := db.RecoverAbandoned()
	if err != nil {
		t.Fatalf("RecoverAbandoned: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != abandoned.ID {
		t.Errorf("recovered = %v, want [%s]", recovered, abandoned.ID)
	}

	if r, _ := db.GetRun(current.ID); r.Status != models.RunStatusPlanning {
		t.Errorf("run owned by this process changed to %s", r.Status)
	}
	if r, _ := db.GetRun(finished.ID); r.Status != models.RunStatusDone {
		t.Errorf("finished run changed to %s", r.Status)
	}

	resumable, err := db.ResumableRun()
	if err != nil {
		t.Fatalf("ResumableRun: %v", err)
	}
	if resumable.ID != abandoned.ID {
		t.Errorf("ResumableRun() = %s, want %s", resumable.ID, abandoned.ID)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)
	run, _ := db.CreateRun("old", models.SchemaGraph)
	if err := db.RecordUnit(&UnitRecord{RunID: run.ID, UnitID: "u", Status: models.UnitStatusDone}); err != nil {
		t.Fatalf("RecordUnit: %v", err)
	}

	old := formatTime(time.Now().Add(-48 * time.Hour))
	if _, err := db.Exec("UPDATE runs SET started_at = ? WHERE id = ?", old, run.ID); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := db.CreateRun("new", models.SchemaGraph); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	n, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d runs, want 1", n)
	}

	units, _ := db.ListUnits(run.ID)
	if len(units) != 0 {
		t.Errorf("units of purged run remain: %v", units)
	}
}
