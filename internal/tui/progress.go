package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/matrioska/internal/pipeline"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// maxLogLines is the number of activity log entries shown.
const maxLogLines = 8

// ProgressState tracks the displayed run progress.
type ProgressState struct {
	Project string
	Phase   models.RunStatus
	Current string
	Done    int
	Failed  int
	Skipped int
	Total   int
}

// Finished returns the number of units that no longer need work.
func (s ProgressState) Finished() int {
	return s.Done + s.Failed + s.Skipped
}

// Percent returns the unit completion percentage.
func (s ProgressState) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Finished()) / float64(s.Total) * 100
}

// EventMsg wraps a pipeline progress event.
type EventMsg struct {
	Event pipeline.ProgressEvent
}

// DoneMsg is sent when the run returns.
type DoneMsg struct {
	Result *pipeline.Result
	Err    error
}

// LogEntry represents a line in the activity log.
type LogEntry struct {
	Timestamp time.Time
	Phase     string
	Message   string
	Warning   bool
}

// StopHandler asks the running pipeline to stop after the current unit.
type StopHandler func() error

// ProgressApp is the bubbletea model for the run command TUI.
type ProgressApp struct {
	state   ProgressState
	logs    []LogEntry
	events  <-chan pipeline.ProgressEvent
	spinner spinner.Model
	onStop  StopHandler

	width         int
	height        int
	quitting      bool
	stopRequested bool
	done          bool
	result        *pipeline.Result
	err           error

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	phaseStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	logStyle      lipgloss.Style
	logTimeStyle  lipgloss.Style
	warningStyle  lipgloss.Style
	errorStyle    lipgloss.Style
	doneStyle     lipgloss.Style
	hintStyle     lipgloss.Style
}

// NewProgressApp creates a ProgressApp reading events from ch.
func NewProgressApp(ch <-chan pipeline.ProgressEvent) *ProgressApp {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &ProgressApp{
		events:  ch,
		spinner: s,
		logs:    make([]LogEntry, 0),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),
		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),
		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetStopHandler sets the callback invoked when the user presses 's'.
func (a *ProgressApp) SetStopHandler(h StopHandler) {
	a.onStop = h
}

// State returns the current progress state.
func (a *ProgressApp) State() ProgressState {
	return a.state
}

// Logs returns the activity log.
func (a *ProgressApp) Logs() []LogEntry {
	return a.logs
}

// Init implements tea.Model.
func (a *ProgressApp) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, waitForEvent(a.events))
}

// waitForEvent reads the next event from ch. It returns nil once ch is closed.
func waitForEvent(ch <-chan pipeline.ProgressEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: e}
	}
}

// Update implements tea.Model.
func (a *ProgressApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "s":
			a.requestStop()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)
		return a, waitForEvent(a.events)

	case DoneMsg:
		a.done = true
		a.result = msg.Result
		a.err = msg.Err
		a.state.Current = ""
		switch {
		case msg.Err != nil:
			a.state.Phase = models.RunStatusFailed
		case msg.Result != nil && msg.Result.Interrupted:
			a.state.Phase = models.RunStatusInterrupted
		default:
			a.state.Phase = models.RunStatusDone
		}
	}

	return a, nil
}

func (a *ProgressApp) requestStop() {
	if a.done || a.stopRequested || a.onStop == nil {
		return
	}
	if err := a.onStop(); err != nil {
		a.addLog("stop", fmt.Sprintf("Error requesting stop: %v", err), true)
		return
	}
	a.stopRequested = true
	a.addLog("stop", "Stop requested, finishing current unit", false)
}

// apply folds a pipeline event into the state and the log.
func (a *ProgressApp) apply(e pipeline.ProgressEvent) {
	if e.Phase != "" {
		a.state.Phase = e.Phase
	}
	if e.Total > 0 && e.Type != pipeline.EventFinished {
		a.state.Total = e.Total
	}

	phase := string(e.Phase)
	switch e.Type {
	case pipeline.EventPhase:
		a.addLog(phase, phaseMessage(e), false)
	case pipeline.EventPlanReady:
		a.state.Project = e.Message
		a.addLog(phase, fmt.Sprintf("Plan %q with %d units", e.Message, e.Total), false)
	case pipeline.EventUnitStarted:
		a.state.Current = e.Label
		a.addLog(phase, fmt.Sprintf("[%d/%d] Generating %s", e.Index, e.Total, e.Label), false)
	case pipeline.EventUnitDone:
		a.state.Done++
		a.state.Current = ""
		a.addLog(phase, fmt.Sprintf("[%d/%d] %s done", e.Index, e.Total, e.Label), false)
	case pipeline.EventUnitFailed:
		a.state.Failed++
		a.state.Current = ""
		a.addLog(phase, fmt.Sprintf("[%d/%d] %s failed: %v", e.Index, e.Total, e.Label, e.Err), true)
	case pipeline.EventUnitSkipped:
		a.state.Skipped++
		a.addLog(phase, fmt.Sprintf("[%d/%d] %s already done", e.Index, e.Total, e.Label), false)
	case pipeline.EventWarning:
		msg := e.Message
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
		a.addLog(phase, msg, true)
	case pipeline.EventFinished:
		a.state.Current = ""
		if e.Err != nil {
			a.addLog(phase, e.Err.Error(), true)
		}
	}
}

func phaseMessage(e pipeline.ProgressEvent) string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Phase {
	case models.RunStatusExecuting:
		return fmt.Sprintf("Executing %d units", e.Total)
	case models.RunStatusIntegrating:
		return fmt.Sprintf("Integrating %d artifacts", e.Total)
	default:
		return string(e.Phase)
	}
}

func (a *ProgressApp) addLog(phase, message string, warning bool) {
	a.logs = append(a.logs, LogEntry{
		Timestamp: time.Now(),
		Phase:     phase,
		Message:   message,
		Warning:   warning,
	})
}

// View implements tea.Model.
func (a *ProgressApp) View() string {
	if a.quitting {
		return "Run view closed.\n"
	}

	var b strings.Builder
	b.WriteString(a.headerStyle.Render("=== Matrioska ==="))
	b.WriteString("\n\n")

	project := a.state.Project
	if project == "" {
		project = "(planning)"
	}
	b.WriteString(a.labelStyle.Render("Project:"))
	b.WriteString(a.valueStyle.Render(project))
	b.WriteString("\n")

	phase := string(a.state.Phase)
	if phase == "" {
		phase = "starting"
	}
	b.WriteString(a.labelStyle.Render("Phase:"))
	if !a.done {
		b.WriteString(a.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(a.phaseStyle.Render(phase))
	b.WriteString("\n")

	unitStr := fmt.Sprintf("%d/%d complete (%.0f%%)", a.state.Finished(), a.state.Total, a.state.Percent())
	if a.state.Failed > 0 {
		unitStr += fmt.Sprintf(", %d failed", a.state.Failed)
	}
	b.WriteString(a.labelStyle.Render("Units:"))
	b.WriteString(a.valueStyle.Render(unitStr))
	b.WriteString("\n")
	b.WriteString(a.renderProgressBar(a.state.Percent(), 30))
	b.WriteString("\n")

	if a.state.Current != "" {
		b.WriteString(a.labelStyle.Render("Current:"))
		b.WriteString(a.state.Current)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	if a.done {
		b.WriteString(a.renderSummary())
	} else if a.stopRequested {
		b.WriteString(a.hintStyle.Render("Stopping after the current unit... q to close"))
	} else {
		b.WriteString(a.hintStyle.Render("s to stop after the current unit, q to close"))
	}
	b.WriteString("\n")

	return b.String()
}

// renderProgressBar renders a progress bar.
func (a *ProgressApp) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

// renderLogs renders the recent log entries.
func (a *ProgressApp) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity Log"))
	b.WriteString("\n")

	start := 0
	if len(a.logs) > maxLogLines {
		start = len(a.logs) - maxLogLines
	}

	for _, entry := range a.logs[start:] {
		ts := a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05"))
		phase := lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Width(12).
			Render(entry.Phase)
		style := a.logStyle
		if entry.Warning {
			style = a.warningStyle
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, phase, style.Render(entry.Message)))
	}

	return b.String()
}

func (a *ProgressApp) renderSummary() string {
	if a.err != nil {
		return a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)) + "\n" + a.hintStyle.Render("Press q to exit.")
	}

	var b strings.Builder
	if res := a.result; res != nil {
		switch {
		case res.Interrupted:
			b.WriteString(a.warningStyle.Render(fmt.Sprintf("Stopped with %d artifacts. Resume with: matrioska run --resume", len(res.Artifacts))))
		default:
			b.WriteString(a.doneStyle.Render(fmt.Sprintf("Done: %d artifacts, %d shared keys", len(res.Artifacts), len(res.SharedState))))
		}
		if res.Degraded {
			b.WriteString("\n")
			b.WriteString(a.warningStyle.Render("Decomposition failed, the task ran as a single unit."))
		}
		if res.Integrated != "" {
			b.WriteString("\n")
			b.WriteString(a.logStyle.Render(fmt.Sprintf("Integrated result: %d bytes", len(res.Integrated))))
		}
		b.WriteString("\n")
	}
	b.WriteString(a.hintStyle.Render("Press q to exit."))
	return b.String()
}

// SetRefreshRate sets the spinner frame interval. Non-positive values keep the default.
func (a *ProgressApp) SetRefreshRate(d time.Duration) {
	if d > 0 {
		a.spinner.Spinner.FPS = d
	}
}

// NewProgressProgram creates a new Bubbletea program for the run TUI.
func NewProgressProgram(events <-chan pipeline.ProgressEvent, refresh time.Duration) (*tea.Program, *ProgressApp) {
	app := NewProgressApp(events)
	app.SetRefreshRate(refresh)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
