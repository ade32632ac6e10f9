package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <idea>",
	Short: "Start a new session for an idea",
	Long: `Start a new session and follow it until the panel agrees and the
specification is written.

Press Ctrl-C once to pause at the next checkpoint, twice to abort.

Examples:
  quorum-spec run "A habit tracker for small teams"
  quorum-spec run --personas team.yaml --output spec.md "An offline-first notes app"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runPersonasFile string
	runOutput       string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runPersonasFile, "personas", "", "YAML persona roster (overrides pipeline.personas_file)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the specification to this file instead of stdout")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show an interactive progress view")
}

func runRun(cmd *cobra.Command, args []string) error {
	idea := strings.TrimSpace(strings.Join(args, " "))

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	personas := a.personas
	if runPersonasFile != "" {
		if personas, err = pipeline.LoadPersonas(runPersonasFile); err != nil {
			return err
		}
	}

	ch := a.bus.Subscribe()
	id, err := a.manager.Create(idea, personas)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Session %s\n", headerStyle().Render(id))

	out := a.watch(cmd.Context(), stderr, id, ch)
	return a.report(cmd.Context(), stderr, cmd.OutOrStdout(), id, runOutput, out)
}

func writeDocument(path, doc string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil { //nolint:gosec // documents are meant to be shared
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}
