package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ShayCichocki/matrioska/internal/blackboard"
	"github.com/ShayCichocki/matrioska/internal/checkpoint"
	"github.com/ShayCichocki/matrioska/internal/config"
	"github.com/ShayCichocki/matrioska/internal/state"
)

// journalRetention is how long finished runs stay in the journal.
const journalRetention = 30 * 24 * time.Hour

// workspace bundles the on-disk stores of one base directory.
type workspace struct {
	checkpoints string
	board       *blackboard.Store
	plans       *checkpoint.PlanStore
	artifacts   *checkpoint.ArtifactStore
	journal     *state.DB
}

// openWorkspace opens the stores under the configured storage locations.
// Runs left behind by dead processes are marked interrupted.
func openWorkspace(cfg *config.Config) (*workspace, error) {
	checkpoints := cfg.Storage.Checkpoints()

	journal, err := state.Open(cfg.Storage.JournalDriver, filepath.Join(checkpoints, state.FileName))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := journal.Migrate(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	if _, err := journal.RecoverAbandoned(); err != nil {
		log.Printf("[journal] recover abandoned runs: %v", err)
	}
	if _, err := journal.PurgeOldRuns(journalRetention); err != nil {
		log.Printf("[journal] purge old runs: %v", err)
	}

	return &workspace{
		checkpoints: checkpoints,
		board:       blackboard.Open(filepath.Join(checkpoints, blackboard.FileName)),
		plans:       checkpoint.NewPlanStore(checkpoints),
		artifacts:   checkpoint.NewArtifactStore(cfg.Storage.Artifacts()),
		journal:     journal,
	}, nil
}

func (w *workspace) Close() error {
	return w.journal.Close()
}
