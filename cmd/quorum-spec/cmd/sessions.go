package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List saved sessions",
	Args:    cobra.NoArgs,
	RunE:    runSessions,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id-or-prefix>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var (
	sessionsJSON  bool
	sessionsPrune time.Duration
)

// pruner is implemented by repositories that can drop old sessions in bulk.
type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "output as JSON")
	sessionsCmd.Flags().DurationVar(&sessionsPrune, "prune", 0, "first delete sessions not updated within this duration (e.g. 720h)")
}

func runSessions(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	w := cmd.OutOrStdout()
	if sessionsPrune > 0 {
		p, ok := a.repo.(pruner)
		if !ok {
			return fmt.Errorf("the %s state backend does not support pruning", a.cfg.State.Backend)
		}
		n, err := p.Prune(ctx, time.Now().Add(-sessionsPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d session(s)\n", n)
	}

	list, err := a.manager.List(ctx)
	if err != nil {
		return err
	}
	if sessionsJSON {
		return outputJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No sessions")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATUS\tROUNDS\tUPDATED\tIDEA")
	for _, s := range list {
		status := statusStyle(s.Status).Render(string(s.Status))
		if s.Stale {
			status = dimStyle().Render("stale")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.SessionID,
			status,
			s.Rounds,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncate(s.Idea, 60),
		)
	}
	return tw.Flush()
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.resolveSessionID(cmd.Context(), args[0], false)
	if err != nil {
		return err
	}
	if err := a.manager.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
	return nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
