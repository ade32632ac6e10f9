package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
)

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_RendersProgress(t *testing.T) {
	ch := make(chan events.Event, 8)
	m := New("s1", ch, make(chan struct{}), nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m, _ = step(t, m, eventMsg{events.NewRoundStartedEvent("s1", 1, "")})
	m, _ = step(t, m, eventMsg{events.NewStageStartedEvent("s1", 1, "questions")})
	assert.Contains(t, m.View(), "questions")
	assert.Contains(t, m.View(), "Round 1")

	m, _ = step(t, m, eventMsg{events.NewStageCompletedEvent("s1", 1, "questions", 1500*time.Millisecond, nil)})
	m, _ = step(t, m, eventMsg{events.NewRoundCompletedEvent("s1", 1, 1, 3, 3, true)})
	m, _ = step(t, m, eventMsg{events.NewSessionCompletedEvent("s1", 1, 1024, 4)})

	view := m.View()
	assert.Contains(t, view, "1.5s")
	assert.Contains(t, view, "votes 3/3 (100%)")
	assert.Contains(t, view, "finalizing")
	require.NotNil(t, m.Outcome().Completed)
	assert.Equal(t, 1, m.Outcome().Completed.Rounds)
}

func TestModel_RecordsFailure(t *testing.T) {
	m := New("s1", nil, nil, nil)
	m, _ = step(t, m, eventMsg{events.NewSessionFailedEvent("s1", 2, "review", "Provider outage", "all providers failed")})

	require.NotNil(t, m.Outcome().Failed)
	assert.Equal(t, "review", m.Outcome().Failed.Stage)
	assert.Contains(t, m.View(), "Provider outage")
}

func TestModel_Interrupts(t *testing.T) {
	var calls []int
	m := New("s1", nil, nil, func(n int) { calls = append(calls, n) })

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "first interrupt keeps the view running")
	assert.Contains(t, m.View(), "Pausing")
	assert.False(t, m.Outcome().Aborted())

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, []int{1, 2}, calls)
	assert.True(t, m.Outcome().Aborted())
}

func TestModel_QuitsWhenDone(t *testing.T) {
	m := New("s1", nil, nil, nil)
	m, cmd := step(t, m, doneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.finished)
}

func TestModel_ListenersDeliverMessages(t *testing.T) {
	ch := make(chan events.Event, 1)
	ch <- events.NewRoundStartedEvent("s1", 1, "")
	msg := waitForEvent(ch)()
	assert.IsType(t, eventMsg{}, msg)

	close(ch)
	assert.IsType(t, eventsClosedMsg{}, waitForEvent(ch)())

	done := make(chan struct{})
	close(done)
	assert.IsType(t, doneMsg{}, waitForDone(done)())
}

func TestModel_BoundsScrollback(t *testing.T) {
	m := New("s1", nil, nil, nil)
	for i := 0; i < maxLines+10; i++ {
		m.addLine("line")
	}
	assert.Len(t, m.lines, maxLines)
}
