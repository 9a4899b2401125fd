package pipeline

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// EventType represents the type of progress event.
type EventType string

const (
	// EventPhase indicates the run entered a new phase.
	EventPhase EventType = "phase"
	// EventPlanReady indicates a plan was decomposed or reloaded.
	EventPlanReady EventType = "plan_ready"
	// EventUnitStarted indicates a unit is being generated.
	EventUnitStarted EventType = "unit_started"
	// EventUnitDone indicates a unit produced its artifact.
	EventUnitDone EventType = "unit_done"
	// EventUnitFailed indicates the backend failed for a unit.
	EventUnitFailed EventType = "unit_failed"
	// EventUnitSkipped indicates a unit was already completed by an earlier attempt.
	EventUnitSkipped EventType = "unit_skipped"
	// EventWarning carries a recoverable diagnostic.
	EventWarning EventType = "warning"
	// EventFinished indicates the run stopped, successfully or not.
	EventFinished EventType = "finished"
)

// ProgressEvent reports pipeline progress to the CLI or TUI.
type ProgressEvent struct {
	// Type is the kind of event.
	Type EventType
	// Phase is the run phase at the time of the event.
	Phase models.RunStatus
	// UnitID is the related unit, if any.
	UnitID string
	// Label is the display label of the related unit.
	Label string
	// Index is the 1-based position of the unit in execution order.
	Index int
	// Total is the number of units in the plan.
	Total int
	// Message provides additional context.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter buffers progress events for a consumer running in another
// goroutine, such as the TUI.
type EventEmitter struct {
	events       chan ProgressEvent
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan ProgressEvent, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it waits briefly before dropping the event.
func (e *EventEmitter) Emit(event ProgressEvent) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[pipeline] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan ProgressEvent {
	return e.events
}

// Close closes the events channel. Emit must not be called afterwards.
func (e *EventEmitter) Close() {
	close(e.events)
}
