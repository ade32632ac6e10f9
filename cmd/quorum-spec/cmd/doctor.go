package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and host resources",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var doctorJSON bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the host report as JSON")
}

type doctorCheck struct {
	Name string
	OK   bool
	Note string
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	report := a.diag.Collect(ctx)
	w := cmd.OutOrStdout()
	if doctorJSON {
		return outputJSON(w, report)
	}

	checks := a.checks()
	if _, err := a.manager.List(ctx); err != nil {
		checks = append(checks, doctorCheck{"session store", false, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"session store", true, a.cfg.State.Backend + " at " + a.cfg.State.Path})
	}

	fmt.Fprintln(w, headerStyle().Render("Checks"))
	failed := 0
	for _, c := range checks {
		mark := successStyle().Render("ok  ")
		if !c.OK {
			mark = warnStyle().Render("warn")
			failed++
		}
		fmt.Fprintf(w, "  %s %s %s\n", mark, c.Name, dimStyle().Render(c.Note))
	}
	printHostReport(w, report)
	if failed > 0 {
		fmt.Fprintf(w, "\n%d check(s) need attention.\n", failed)
	}
	return nil
}

func (a *app) checks() []doctorCheck {
	var out []doctorCheck
	if a.cfg.DryRun {
		out = append(out, doctorCheck{"providers", true, "dry-run mode, no credentials needed"})
	} else {
		names := make([]string, 0, len(a.cfg.Providers))
		for name := range a.cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := a.cfg.Providers[name]
			if p.APIKey == "" {
				out = append(out, doctorCheck{"provider " + name, false, "no API key"})
				continue
			}
			out = append(out, doctorCheck{"provider " + name, true, "API key set"})
		}
	}
	defs := a.tools.Describe()
	hasResearch := false
	for _, d := range defs {
		if d.Name == a.cfg.Pipeline.ResearchTool {
			hasResearch = true
		}
	}
	if hasResearch {
		out = append(out, doctorCheck{"research tool", true, a.cfg.Pipeline.ResearchTool})
	} else {
		out = append(out, doctorCheck{"research tool", false, a.cfg.Pipeline.ResearchTool + " is not registered"})
	}
	return out
}

func printHostReport(w io.Writer, r diagnostics.Report) {
	fmt.Fprintln(w, headerStyle().Render("Host"))
	h := r.Host
	if h.CPUModel != "" {
		fmt.Fprintf(w, "  cpu     %s (%d cores, %d threads)\n", h.CPUModel, h.CPUCores, h.CPUThreads)
	}
	fmt.Fprintf(w, "  memory  %.0f / %.0f MB (%.0f%%)\n", h.MemUsedMB, h.MemTotalMB, h.MemPercent)
	fmt.Fprintf(w, "  load    %.2f %.2f %.2f\n", h.LoadAvg1, h.LoadAvg5, h.LoadAvg15)
	if r.Disk != nil {
		fmt.Fprintf(w, "  disk    %.1f GB free of %.1f GB (%s)\n", r.Disk.FreeGB, r.Disk.TotalGB, r.Disk.Path)
	}
	fmt.Fprintf(w, "  runtime %s, %d goroutines\n", r.Process.GoVersion, r.Process.Goroutines)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warnStyle().Render("warn"), warn)
	}
}
