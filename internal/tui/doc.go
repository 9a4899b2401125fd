// Package tui provides the terminal progress view for Matrioska runs.
//
// The view is read-only: it shows the current phase, unit progress, the unit
// being generated and an activity log, then a summary once the run ends.
// Users can request a graceful stop with 's' and quit with 'q' or Ctrl+C.
//
// Usage:
//
//	emitter := pipeline.NewEventEmitter(64)
//	program, app := tui.NewProgressProgram(emitter.Events(), cfg.TUI.RefreshRate)
//	app.SetStopHandler(watcher.RequestStop)
//
//	go func() {
//	    res, err := p.Run(ctx, task)
//	    program.Send(tui.DoneMsg{Result: res, Err: err})
//	}()
//	program.Run()
package tui
