package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session>",
	Short: "Resume a paused session or retry a failed one",
	Long: `Resume a session paused at a checkpoint, optionally steering the next
round with a comment. A session that failed or was aborted mid-round is
retried from the stage where it stopped.

The session may be given as a full id, a unique id prefix or words from its
idea.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var (
	resumeComment string
	resumeOutput  string
)

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().StringVarP(&resumeComment, "comment", "m", "", "guidance for the next round")
	resumeCmd.Flags().StringVarP(&resumeOutput, "output", "o", "", "write the specification to this file instead of stdout")
	resumeCmd.Flags().BoolVar(&useTUI, "tui", false, "show an interactive progress view")
}

func runResume(cmd *cobra.Command, args []string) error {
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

	ch := a.bus.SubscribeForSession(id)
	started, err := a.manager.Resume(ctx, id, resumeComment)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	if !started {
		st, err := a.manager.Get(ctx, id)
		if err != nil {
			return err
		}
		if st.Status == core.SessionComplete {
			fmt.Fprintf(stderr, "Session %s is already complete.\n", id)
			return nil
		}
		if err := a.manager.Retry(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Retrying round %d of session %s\n", len(st.Rounds), id)
	} else {
		fmt.Fprintf(stderr, "Resuming session %s\n", headerStyle().Render(id))
	}

	out := a.watch(ctx, stderr, id, ch)
	return a.report(ctx, stderr, cmd.OutOrStdout(), id, resumeOutput, out)
}
