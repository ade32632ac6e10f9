// Package tui renders a live terminal view of one session's run.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
)

// maxLines bounds the scrollback kept in the view.
const maxLines = 200

// Outcome is what the view observed by the time the run returned.
type Outcome struct {
	Failed      *events.SessionFailedEvent
	Completed   *events.SessionCompletedEvent
	Interrupted int
}

// Aborted reports whether the user asked to abort the run.
func (o Outcome) Aborted() bool { return o.Interrupted >= 2 }

type eventMsg struct{ ev events.Event }

type eventsClosedMsg struct{}

type doneMsg struct{}

// Model follows a session's events until done is closed.
type Model struct {
	sessionID   string
	events      <-chan events.Event
	done        <-chan struct{}
	onInterrupt func(n int)

	spinner    spinner.Model
	round      int
	stage      string
	stageStart time.Time
	lines      []string
	status     string
	width      int
	now        func() time.Time

	outcome  Outcome
	finished bool
}

// New creates a model. onInterrupt is called with the running count each
// time the user presses Ctrl-C; the model keeps running until done closes.
func New(sessionID string, ch <-chan events.Event, done <-chan struct{}, onInterrupt func(n int)) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	return Model{
		sessionID:   sessionID,
		events:      ch,
		done:        done,
		onInterrupt: onInterrupt,
		spinner:     sp,
		now:         time.Now,
	}
}

// Outcome returns the result once the program has exited.
func (m Model) Outcome() Outcome { return m.outcome }

// Init starts the spinner and the event and completion listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), waitForDone(m.done))
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev}
	}
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type != tea.KeyCtrlC {
			return m, nil
		}
		m.outcome.Interrupted++
		if m.onInterrupt != nil {
			m.onInterrupt(m.outcome.Interrupted)
		}
		if m.outcome.Interrupted == 1 {
			m.status = warnStyle.Render("Pausing after the current stage. Press Ctrl-C again to abort.")
		} else {
			m.status = errorStyle.Render("Aborting.")
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		m.apply(msg.ev)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case doneMsg:
		m.finished = true
		m.stage = ""
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev events.Event) {
	switch e := ev.(type) {
	case events.RoundStartedEvent:
		m.round = e.Round
		line := headerStyle.Render(fmt.Sprintf("Round %d", e.Round))
		if e.Comment != "" {
			line += dimStyle.Render("  comment: " + e.Comment)
		}
		m.addLine(line)
	case events.StageEvent:
		switch e.EventType() {
		case events.TypeStageStarted:
			m.stage = e.Stage
			m.stageStart = m.now()
		case events.TypeStageCompleted:
			m.stage = ""
			m.addLine(fmt.Sprintf("  %s %-10s %s", okStyle.Render("✓"), e.Stage,
				dimStyle.Render(e.Duration.Round(10*time.Millisecond).String())))
		case events.TypeStageFailed:
			m.stage = ""
			m.addLine(fmt.Sprintf("  %s %-10s %s", errorStyle.Render("✗"), e.Stage, e.Error))
		}
	case events.RoundCompletedEvent:
		verdict := warnStyle.Render("no consensus")
		if e.Finalize {
			verdict = okStyle.Render("finalizing")
		}
		m.addLine(fmt.Sprintf("  votes %d/%d (%.0f%%) %s", e.Approved, e.Total, e.ApprovalRate*100, verdict))
	case events.SessionPausedEvent:
		if e.NextRound > 0 {
			m.addLine(warnStyle.Render(fmt.Sprintf("Paused before round %d.", e.NextRound)))
		}
	case events.SessionFailedEvent:
		e2 := e
		m.outcome.Failed = &e2
		m.addLine(errorStyle.Render(e.Title + ": " + e.Message))
	case events.SessionCompletedEvent:
		e2 := e
		m.outcome.Completed = &e2
		m.addLine(okStyle.Render(fmt.Sprintf("Specification written after %d round(s).", e.Rounds)))
	}
}

func (m *Model) addLine(s string) {
	m.lines = append(m.lines, s)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("quorum-spec") + " " + dimStyle.Render(m.sessionID) + "\n")
	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	if m.stage != "" && !m.finished {
		elapsed := m.now().Sub(m.stageStart).Truncate(time.Second)
		fmt.Fprintf(&b, "  %s %-10s %s\n", m.spinner.View(), m.stage, dimStyle.Render(elapsed.String()))
	}
	if m.status != "" && !m.finished {
		b.WriteString(m.status + "\n")
	}
	return b.String()
}
