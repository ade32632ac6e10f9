package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/clip"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show a session's rounds, votes and document",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	showJSON     bool
	showDialogue bool
	showDocument bool
	showRaw      bool
	showCopy     bool
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output the session state as JSON")
	showCmd.Flags().BoolVar(&showDialogue, "dialogue", false, "print the dialogue transcript")
	showCmd.Flags().BoolVar(&showDocument, "document", false, "print only the generated specification")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "print the specification as plain markdown")
	showCmd.Flags().BoolVar(&showCopy, "copy", false, "copy the specification to the clipboard")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.resolveSessionID(ctx, args[0], true)
	if err != nil {
		return err
	}
	st, err := a.manager.Get(ctx, id)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if showCopy {
		return copyDocument(cmd.ErrOrStderr(), st)
	}
	switch {
	case showJSON:
		return outputJSON(w, st)
	case showDocument:
		if st.GeneratedDocument == "" {
			return fmt.Errorf("session %s has no document yet (status %s)", st.SessionID, st.Status)
		}
		return printDocument(w, st.GeneratedDocument, showRaw)
	case showDialogue:
		printDialogue(w, st.Dialogue)
		return nil
	}
	printSummary(w, st)
	return nil
}

func printSummary(w io.Writer, st *core.SessionState) {
	fmt.Fprintf(w, "%s %s\n", headerStyle().Render("Session"), st.SessionID)
	fmt.Fprintf(w, "Idea:    %s\n", st.Idea)
	fmt.Fprintf(w, "Status:  %s\n", statusStyle(st.Status).Render(string(st.Status)))
	if st.PendingResume != nil {
		fmt.Fprintf(w, "Paused:  next round %d\n", st.PendingResume.NextRound)
	}
	names := make([]string, 0, len(st.Personas))
	for _, p := range st.EnabledPersonas() {
		names = append(names, p.DisplayName())
	}
	fmt.Fprintf(w, "Panel:   %s\n", strings.Join(names, ", "))

	for _, r := range st.Rounds {
		approved := 0
		for _, v := range r.Votes {
			if v.Approved {
				approved++
			}
		}
		line := fmt.Sprintf("Round %d: %s at %s", r.Number, r.Status, r.Stage)
		if len(r.Votes) > 0 {
			line += fmt.Sprintf(", %d/%d approved", approved, len(r.Votes))
		}
		if r.ReviewResult != nil {
			line += fmt.Sprintf(", review score %.0f", r.ReviewResult.Score)
		}
		fmt.Fprintln(w, "  "+line)
		if r.UserComment != "" {
			fmt.Fprintf(w, "    %s %s\n", dimStyle().Render("comment:"), r.UserComment)
		}
	}
	if len(st.TechStack) > 0 {
		items := make([]string, 0, len(st.TechStack))
		for _, t := range st.TechStack {
			items = append(items, t.Name)
		}
		fmt.Fprintf(w, "Stack:   %s\n", strings.Join(items, ", "))
	}
	if st.GeneratedDocument != "" {
		fmt.Fprintf(w, "Document: %d bytes (show --document to print)\n", len(st.GeneratedDocument))
	}
}

func printDialogue(w io.Writer, entries []core.DialogueEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No dialogue recorded")
		return
	}
	round := 0
	for _, e := range entries {
		if e.Round != round {
			round = e.Round
			fmt.Fprintln(w, headerStyle().Render(fmt.Sprintf("Round %d", round)))
		}
		fmt.Fprintf(w, "%s %s\n%s\n\n", e.Speaker, dimStyle().Render("("+e.Kind+")"), e.Content)
	}
}

func copyDocument(w io.Writer, st *core.SessionState) error {
	if st.GeneratedDocument == "" {
		return fmt.Errorf("session %s has no document yet (status %s)", st.SessionID, st.Status)
	}
	res, err := clip.New().Copy(st.GeneratedDocument)
	if err != nil {
		return err
	}
	switch res.Method {
	case clip.MethodFile:
		fmt.Fprintf(w, "No clipboard available; document written to %s\n", res.FilePath)
	default:
		fmt.Fprintf(w, "%s (%s)\n", successStyle().Render("Copied specification to clipboard"), res.Method)
	}
	return nil
}
