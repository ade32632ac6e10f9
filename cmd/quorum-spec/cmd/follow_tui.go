package cmd

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/tui"
)

var useTUI bool

// watch follows a run with the interactive view when asked for and w is a
// terminal, and with plain progress lines otherwise.
func (a *app) watch(ctx context.Context, w io.Writer, sessionID string, ch <-chan events.Event) runOutcome {
	if !useTUI || !isTerminal(w) {
		return a.follow(ctx, w, sessionID, ch)
	}
	out, err := a.followTUI(ctx, w, sessionID, ch)
	if err != nil {
		a.logger.Warn("interactive view failed; falling back to plain output", "error", err)
		return a.follow(ctx, w, sessionID, ch)
	}
	return out
}

func (a *app) followTUI(ctx context.Context, w io.Writer, sessionID string, ch <-chan events.Event) (runOutcome, error) {
	done := make(chan struct{})
	go func() {
		a.manager.Wait()
		close(done)
	}()

	m := tui.New(sessionID, ch, done, func(n int) {
		if n == 1 {
			go func() {
				if err := a.manager.Pause(ctx, sessionID); err != nil {
					a.logger.Warn("pause request failed", "error", err)
				}
			}()
			return
		}
		go func() { _ = a.manager.Shutdown(context.Background()) }()
	})

	final, err := tea.NewProgram(m, tea.WithOutput(w), tea.WithContext(ctx)).Run()
	if err != nil {
		return runOutcome{}, err
	}
	fm, ok := final.(tui.Model)
	if !ok {
		return runOutcome{}, nil
	}
	res := fm.Outcome()
	return runOutcome{failed: res.Failed, aborted: res.Aborted()}, nil
}
