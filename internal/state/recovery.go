package state

import (
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// RecoverAbandoned marks runs left in an active state by a process that no
// longer exists as interrupted, so they can be resumed. Returns the ids of
// the runs it changed.
func (db *DB) RecoverAbandoned() ([]string, error) {
	runs, err := db.ListRuns(nil)
	if err != nil {
		return nil, err
	}

	var recovered []string
	for _, r := range runs {
		switch r.Status {
		case models.RunStatusPlanning, models.RunStatusExecuting, models.RunStatusIntegrating:
		default:
			continue
		}
		if r.PID == os.Getpid() || isProcessAlive(r.PID) {
			continue
		}

		if err := db.UpdateRunStatus(r.ID, models.RunStatusInterrupted, "process exited during "+string(r.Status)); err != nil {
			return recovered, fmt.Errorf("recover run %s: %w", r.ID, err)
		}
		log.Printf("[journal] run %s abandoned while %s, marked interrupted", r.ID, r.Status)
		recovered = append(recovered, r.ID)
	}

	return recovered, nil
}

// ResumableRun returns the newest run that is interrupted and can be resumed.
func (db *DB) ResumableRun() (*Run, error) {
	status := models.RunStatusInterrupted
	runs, err := db.ListRuns(&status)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

// isProcessAlive reports whether a process with the given pid exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}
