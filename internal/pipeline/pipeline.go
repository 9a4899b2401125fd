// Package pipeline sequences decomposition, unit execution and integration
// into one resumable run.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/matrioska/internal/api"
	"github.com/ShayCichocki/matrioska/internal/blackboard"
	"github.com/ShayCichocki/matrioska/internal/checkpoint"
	"github.com/ShayCichocki/matrioska/internal/decompose"
	"github.com/ShayCichocki/matrioska/internal/executor"
	"github.com/ShayCichocki/matrioska/internal/state"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

var (
	// ErrDecomposition is returned when planning fails and fallback is disabled.
	ErrDecomposition = errors.New("decomposition failed")
	// ErrNoJournal is returned by Resume when the pipeline has no journal.
	ErrNoJournal = errors.New("resume requires a run journal")

	errPlanningInterrupted = errors.New("planning interrupted")
)

// StopSignal reports whether the user asked the run to stop.
type StopSignal interface {
	ShouldStop() bool
}

// Deps are the collaborators of a Pipeline. Journal, Stop and Progress are optional.
type Deps struct {
	Generator api.Generator
	Board     *blackboard.Store
	Plans     *checkpoint.PlanStore
	Artifacts *checkpoint.ArtifactStore
	Journal   state.Journal
	Stop      StopSignal
	Progress  func(ProgressEvent)
}

// Result is the outcome of a run.
type Result struct {
	RunID       string
	Plan        models.Plan
	Artifacts   []*models.Artifact
	SharedState map[string]any
	// Integrated is the combined output, empty when integration is off or failed.
	Integrated string
	// Degraded is true when the fallback plan replaced a failed decomposition.
	Degraded bool
	// Interrupted is true when a stop request ended the run before all units ran.
	Interrupted bool
}

// Pipeline runs PLANNING, EXECUTING, INTEGRATING and DONE in sequence.
type Pipeline struct {
	deps Deps
	opts Options
	exec *executor.Executor
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		deps: deps,
		opts: opts,
		exec: executor.New(deps.Generator, deps.Board, deps.Artifacts, executor.Options{
			Schema:    opts.Schema,
			Marker:    opts.Marker,
			Strip:     opts.StripUpdates,
			Lenient:   opts.LenientUpdates,
			MaxTokens: opts.MaxTokens,
		}),
	}
}

// run carries the state of one execution through the phases.
type run struct {
	id       string
	task     string
	plan     models.Plan
	done     map[string]bool
	degraded bool
}

// Run executes task from scratch.
func (p *Pipeline) Run(ctx context.Context, task string) (*Result, error) {
	r := &run{task: task}
	if p.deps.Journal != nil {
		rec, err := p.deps.Journal.CreateRun(task, p.opts.Schema)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		r.id = rec.ID
	}
	log.Printf("[pipeline] run %s: %s (%s)", r.id, truncate(task, 60), p.opts.Schema)
	return p.drive(ctx, r)
}

// Resume continues the newest interrupted run. The persisted plan is reloaded
// and units the journal records as done are not generated again.
func (p *Pipeline) Resume(ctx context.Context) (*Result, error) {
	if p.deps.Journal == nil {
		return nil, ErrNoJournal
	}

	rec, err := p.deps.Journal.ResumableRun()
	if err != nil {
		return nil, fmt.Errorf("find resumable run: %w", err)
	}
	if err := p.deps.Journal.ClaimRun(rec.ID); err != nil {
		return nil, err
	}

	r := &run{id: rec.ID, task: rec.Task}

	plan, err := p.deps.Plans.LoadRun(r.id)
	switch {
	case errors.Is(err, checkpoint.ErrNoPlan):
		log.Printf("[pipeline] run %s: no persisted plan (%v), planning again", r.id, err)
	case err != nil:
		return nil, fmt.Errorf("reload plan: %w", err)
	default:
		r.plan = plan
		r.degraded = rec.Degraded
		if r.done, err = p.deps.Journal.CompletedUnits(r.id); err != nil {
			return nil, fmt.Errorf("load completed units: %w", err)
		}
	}

	log.Printf("[pipeline] resuming run %s (%d units already done)", r.id, len(r.done))
	return p.drive(ctx, r)
}

func (p *Pipeline) drive(ctx context.Context, r *run) (*Result, error) {
	if r.plan == nil {
		err := p.plan(ctx, r)
		if errors.Is(err, errPlanningInterrupted) {
			return p.interrupted(r, &Result{RunID: r.id}, "stopped while planning")
		}
		if err != nil {
			return nil, err
		}
	} else {
		p.emit(ProgressEvent{Type: EventPlanReady, Phase: models.RunStatusPlanning, Total: len(r.plan.Units()), Message: r.plan.Name()})
	}

	result := &Result{RunID: r.id, Plan: r.plan, Degraded: r.degraded}

	if err := p.setStatus(r, models.RunStatusExecuting, ""); err != nil {
		return nil, err
	}
	artifacts, interrupted, err := p.execute(ctx, r)
	result.Artifacts = artifacts
	if err != nil {
		p.fail(r, err)
		return nil, err
	}
	if interrupted {
		return p.interrupted(r, result, "stopped before all units ran")
	}

	if p.opts.Integrate {
		if err := p.setStatus(r, models.RunStatusIntegrating, ""); err != nil {
			return nil, err
		}
		integrated, err := p.integrate(ctx, r, artifacts)
		if err != nil {
			p.fail(r, err)
			return nil, err
		}
		result.Integrated = integrated
	}

	result.SharedState = p.deps.Board.Snapshot()
	if err := p.setStatus(r, models.RunStatusDone, ""); err != nil {
		return nil, err
	}
	p.emit(ProgressEvent{Type: EventFinished, Phase: models.RunStatusDone, Total: len(artifacts), Message: r.plan.Name()})
	log.Printf("[pipeline] run %s done: %d artifacts, %d shared keys", r.id, len(artifacts), len(result.SharedState))
	return result, nil
}

// interrupted journals the run as resumable and returns the partial result.
func (p *Pipeline) interrupted(r *run, result *Result, msg string) (*Result, error) {
	result.Interrupted = true
	result.SharedState = p.deps.Board.Snapshot()
	if err := p.setStatus(r, models.RunStatusInterrupted, ""); err != nil {
		return nil, err
	}
	p.emit(ProgressEvent{Type: EventFinished, Phase: models.RunStatusInterrupted, Message: msg})
	return result, nil
}

// plan runs PLANNING and persists the resulting plan.
func (p *Pipeline) plan(ctx context.Context, r *run) error {
	p.emit(ProgressEvent{Type: EventPhase, Phase: models.RunStatusPlanning, Message: "decomposing task"})

	d := decompose.New(p.deps.Generator, decompose.Options{
		Schema:     p.opts.Schema,
		Strategies: p.opts.strategies(),
		MaxTokens:  p.opts.MaxTokens,
	})

	plan, err := d.Decompose(ctx, r.task)
	if err != nil && ctx.Err() != nil {
		log.Printf("[pipeline] run %s: planning cancelled: %v", r.id, err)
		return errPlanningInterrupted
	}
	if err != nil {
		if !p.opts.Fallback {
			err = fmt.Errorf("%w: %w", ErrDecomposition, err)
			p.fail(r, err)
			return err
		}
		log.Printf("[pipeline] decomposition failed, using single-unit plan: %v", err)
		p.emit(ProgressEvent{Type: EventWarning, Phase: models.RunStatusPlanning, Message: "decomposition failed, using single-unit plan", Err: err})
		plan = decompose.Fallback(r.task, p.opts.Schema)
		r.degraded = true
		if p.deps.Journal != nil && r.id != "" {
			if err := p.deps.Journal.MarkDegraded(r.id); err != nil {
				return fmt.Errorf("mark run degraded: %w", err)
			}
		}
	}

	for _, w := range decompose.Validate(plan).Warnings {
		log.Printf("[pipeline] plan warning: %s", w)
	}

	if err := p.deps.Plans.Save(r.id, plan); err != nil {
		err = fmt.Errorf("persist plan: %w", err)
		p.fail(r, err)
		return err
	}

	r.plan = plan
	p.emit(ProgressEvent{Type: EventPlanReady, Phase: models.RunStatusPlanning, Total: len(plan.Units()), Message: plan.Name()})
	return nil
}

// execute runs every unit in execution order. A unit's backend failure does
// not stop the loop; persistence failures do.
func (p *Pipeline) execute(ctx context.Context, r *run) ([]*models.Artifact, bool, error) {
	units := r.plan.ExecutionOrder()
	total := len(units)
	artifacts := make([]*models.Artifact, 0, total)

	p.emit(ProgressEvent{Type: EventPhase, Phase: models.RunStatusExecuting, Total: total})

	for i, unit := range units {
		event := ProgressEvent{Phase: models.RunStatusExecuting, UnitID: unit.ID, Label: unit.Label(), Index: i + 1, Total: total}

		if r.done[unit.ID] {
			artifacts = append(artifacts, p.reloadArtifact(unit))
			event.Type = EventUnitSkipped
			p.emit(event)
			continue
		}

		if ctx.Err() != nil || (p.deps.Stop != nil && p.deps.Stop.ShouldStop()) {
			log.Printf("[pipeline] stop requested, %d of %d units left", total-i, total)
			return artifacts, true, nil
		}

		event.Type = EventUnitStarted
		p.emit(event)

		artifact, err := p.exec.Execute(ctx, unit)
		if err != nil {
			return artifacts, false, err
		}
		artifacts = append(artifacts, artifact)

		rec := &state.UnitRecord{
			RunID:    r.id,
			UnitID:   unit.ID,
			Position: i,
			Status:   models.UnitStatusDone,
			FileName: artifact.FileName,
		}
		event.Type = EventUnitDone
		if artifact.Error != "" {
			rec.Status = models.UnitStatusFailed
			rec.Error = artifact.Error
			event.Type = EventUnitFailed
			event.Err = errors.New(artifact.Error)
		}
		if err := p.recordUnit(rec); err != nil {
			return artifacts, false, err
		}
		p.emit(event)
	}

	return artifacts, false, nil
}

// reloadArtifact rebuilds the artifact of a unit completed by an earlier attempt.
func (p *Pipeline) reloadArtifact(unit *models.WorkUnit) *models.Artifact {
	a := &models.Artifact{
		UnitID:   unit.ID,
		Name:     unit.Name,
		FileName: checkpoint.SanitizeFileName(unit.FileName()),
		Order:    unit.Order,
	}
	content, err := p.deps.Artifacts.Load(a.FileName)
	if err != nil {
		log.Printf("[pipeline] %s: completed artifact unreadable: %v", unit.Label(), err)
		return a
	}
	a.Content = content
	return a
}

// integrate combines all artifacts with the final shared state. The plan is
// reloaded from disk so integration only depends on persisted state.
func (p *Pipeline) integrate(ctx context.Context, r *run, artifacts []*models.Artifact) (string, error) {
	p.emit(ProgressEvent{Type: EventPhase, Phase: models.RunStatusIntegrating, Total: len(artifacts)})

	plan, err := p.deps.Plans.LoadRun(r.id)
	if err != nil {
		return "", fmt.Errorf("reload plan for integration: %w", err)
	}

	prompt := IntegrationPrompt(plan, p.deps.Board.Snapshot(), artifacts)
	out, err := p.deps.Generator.Generate(ctx, api.Request{
		Prompt:    prompt,
		MaxTokens: p.opts.IntegrationMaxTokens,
	})
	if err != nil {
		log.Printf("[pipeline] integration failed: %v", err)
		p.emit(ProgressEvent{Type: EventWarning, Phase: models.RunStatusIntegrating, Message: "integration failed", Err: err})
		return "", nil
	}
	return out, nil
}

// IntegrationPrompt renders the combination request for plan.
func IntegrationPrompt(plan models.Plan, shared map[string]any, artifacts []*models.Artifact) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(shared); err != nil {
		buf.WriteString("{}")
	}

	rule := strings.Repeat("=", 60)
	var sb strings.Builder
	fmt.Fprintf(&sb, "PROJECT: %s\n\n", plan.Name())
	fmt.Fprintf(&sb, "INTEGRATION RULES:\n%s\n\n", plan.IntegrationRules())
	fmt.Fprintf(&sb, "SHARED STATE (Contracts between modules):\n%s\n\n", strings.TrimSpace(buf.String()))
	sb.WriteString("ARTIFACTS:\n")
	for _, a := range artifacts {
		name := a.Name
		if name == "" {
			name = a.UnitID
		}
		fmt.Fprintf(&sb, "\n%s\n%s\n%s\n%s\n", rule, name, rule, a.Content)
	}
	sb.WriteString("\nIntegrate the artifacts following the rules. ")
	sb.WriteString("Use the SHARED STATE to ensure that IDs, APIs and contracts are consistent.")
	return sb.String()
}

func (p *Pipeline) setStatus(r *run, status models.RunStatus, errMsg string) error {
	if p.deps.Journal == nil || r.id == "" {
		return nil
	}
	if err := p.deps.Journal.UpdateRunStatus(r.id, status, errMsg); err != nil {
		return fmt.Errorf("journal run status: %w", err)
	}
	return nil
}

func (p *Pipeline) recordUnit(rec *state.UnitRecord) error {
	if p.deps.Journal == nil || rec.RunID == "" {
		return nil
	}
	if err := p.deps.Journal.RecordUnit(rec); err != nil {
		return fmt.Errorf("journal unit %s: %w", rec.UnitID, err)
	}
	return nil
}

// fail journals a terminal failure. Journal errors are logged since the run
// is already failing with err.
func (p *Pipeline) fail(r *run, err error) {
	log.Printf("[pipeline] run %s failed: %v", r.id, err)
	if serr := p.setStatus(r, models.RunStatusFailed, err.Error()); serr != nil {
		log.Printf("[pipeline] %v", serr)
	}
	p.emit(ProgressEvent{Type: EventFinished, Phase: models.RunStatusFailed, Err: err})
}

func (p *Pipeline) emit(event ProgressEvent) {
	if p.deps.Progress == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.deps.Progress(event)
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}
