package main

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ShayCichocki/matrioska/internal/pipeline"
	"github.com/ShayCichocki/matrioska/internal/tui"
	"github.com/ShayCichocki/matrioska/internal/watch"
)

// runWithTUI runs the pipeline while the progress view owns the terminal.
// Closing the view requests a stop, so the run ends at the next unit
// boundary and stays resumable.
func runWithTUI(deps pipeline.Deps, opts pipeline.Options, watcher *watch.Watcher, refresh time.Duration,
	start func(*pipeline.Pipeline) (*pipeline.Result, error)) (res *pipeline.Result, retErr error) {

	// Log output corrupts the display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	emitter := pipeline.NewEventEmitter(64)
	deps.Progress = emitter.Emit

	program, app := tui.NewProgressProgram(emitter.Events(), refresh)
	app.SetStopHandler(watcher.RequestStop)

	type outcome struct {
		res *pipeline.Result
		err error
	}
	runDone := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				runDone <- outcome{err: fmt.Errorf("PANIC in pipeline: %v", r)}
			}
		}()
		r, err := start(pipeline.New(deps, opts))
		program.Send(tui.DoneMsg{Result: r, Err: err})
		runDone <- outcome{res: r, err: err}
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("run progress view: %w", err)
	}

	select {
	case o := <-runDone:
		return o.res, o.err
	default:
	}

	// The view was closed early: stop at the next unit and wait for the run.
	if err := watcher.RequestStop(); err != nil {
		return nil, fmt.Errorf("%w: %v", errInterruptedTUI, err)
	}
	o := <-runDone
	return o.res, o.err
}
