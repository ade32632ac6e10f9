package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
)

// runOutcome is what follow observed while a session ran.
type runOutcome struct {
	failed  *events.SessionFailedEvent
	aborted bool
}

// follow prints progress for sessionID until its run returns. The first
// interrupt asks the session to pause at its next checkpoint; the second
// cancels the run.
func (a *app) follow(ctx context.Context, w io.Writer, sessionID string, ch <-chan events.Event) runOutcome {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		a.manager.Wait()
		close(done)
	}()

	var out runOutcome
	interrupts := 0
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			printEvent(w, ev, &out)
		case <-sigCh:
			interrupts++
			if interrupts == 1 {
				fmt.Fprintln(w, warnStyle().Render("Pausing after the current stage. Press Ctrl-C again to abort."))
				if err := a.manager.Pause(ctx, sessionID); err != nil {
					a.logger.Warn("pause request failed", "error", err)
				}
				continue
			}
			fmt.Fprintln(w, errorStyle().Render("Aborting."))
			out.aborted = true
			go func() { _ = a.manager.Shutdown(context.Background()) }()
		case <-done:
			drain(w, ch, &out)
			return out
		}
	}
}

func drain(w io.Writer, ch <-chan events.Event, out *runOutcome) {
	if ch == nil {
		return
	}
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			printEvent(w, ev, out)
		default:
			return
		}
	}
}

func printEvent(w io.Writer, ev events.Event, out *runOutcome) {
	switch e := ev.(type) {
	case events.RoundStartedEvent:
		fmt.Fprintln(w, headerStyle().Render(fmt.Sprintf("Round %d", e.Round)))
	case events.StageEvent:
		switch e.EventType() {
		case events.TypeStageStarted:
			fmt.Fprintf(w, "  %s %s\n", dimStyle().Render("..."), e.Stage)
		case events.TypeStageCompleted:
			fmt.Fprintf(w, "  %s %s %s\n", successStyle().Render("ok "), e.Stage, dimStyle().Render(e.Duration.Round(10*time.Millisecond).String()))
		case events.TypeStageFailed:
			fmt.Fprintf(w, "  %s %s: %s\n", errorStyle().Render("err"), e.Stage, e.Error)
		}
	case events.RoundCompletedEvent:
		verdict := warnStyle().Render("no consensus")
		if e.Finalize {
			verdict = successStyle().Render("finalizing")
		}
		fmt.Fprintf(w, "  votes %d/%d approved (%.0f%%), %s\n", e.Approved, e.Total, e.ApprovalRate*100, verdict)
	case events.SessionPausedEvent:
		if e.NextRound > 0 {
			fmt.Fprintln(w, warnStyle().Render(fmt.Sprintf("Paused before round %d.", e.NextRound)))
		}
	case events.SessionFailedEvent:
		e2 := e
		out.failed = &e2
	case events.SessionCompletedEvent:
		fmt.Fprintln(w, successStyle().Render(fmt.Sprintf("Specification written after %d round(s).", e.Rounds)))
	}
}

// report prints the final state of a run and returns an error when it did
// not end cleanly.
func (a *app) report(ctx context.Context, w, docOut io.Writer, sessionID, outputPath string, out runOutcome) error {
	st, err := a.manager.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	switch {
	case st.Status == core.SessionComplete:
		if outputPath != "" {
			if err := writeDocument(outputPath, st.GeneratedDocument); err != nil {
				return err
			}
			fmt.Fprintf(w, "Document saved to %s\n", outputPath)
			return nil
		}
		return printDocument(docOut, st.GeneratedDocument, false)
	case st.PendingResume != nil:
		fmt.Fprintf(w, "Session %s is paused. Continue with:\n  quorum-spec resume %s --comment \"...\"\n", sessionID, sessionID)
		return nil
	case out.failed != nil:
		return fmt.Errorf("session %s failed in round %d (%s): %s. Retry with: quorum-spec resume %s",
			sessionID, out.failed.Round, out.failed.Stage, out.failed.Message, sessionID)
	case out.aborted:
		return fmt.Errorf("session %s aborted; retry with: quorum-spec resume %s", sessionID, sessionID)
	default:
		return fmt.Errorf("session %s stopped with status %s", sessionID, st.Status)
	}
}
