package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/router"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and model chains",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

var providersJSON bool

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "output as JSON")
}

func runProviders(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	w := cmd.OutOrStdout()
	models := a.router.Models()
	if providersJSON {
		chains := map[string]router.Chain{"default": models.Resolve("")}
		for _, role := range models.Roles() {
			chains[role] = models.Resolve(role)
		}
		return outputJSON(w, map[string]interface{}{
			"providers": a.router.GetStats(),
			"chains":    chains,
		})
	}

	fmt.Fprintln(w, headerStyle().Render("Providers"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range a.router.GetStats() {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.Provider, healthStyle(s.Health).Render(string(s.Health)), s.CircuitState)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, headerStyle().Render("Model chains"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\t%s\n", dimStyle().Render("default"), chainString(models.Resolve("")))
	for _, role := range models.Roles() {
		fmt.Fprintf(tw, "  %s\t%s\n", role, chainString(models.Resolve(role)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	names := make([]string, 0)
	for _, d := range a.tools.Describe() {
		names = append(names, d.Name)
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle().Render("Tools"), strings.Join(names, ", "))
	return nil
}

func chainString(c router.Chain) string {
	refs := make([]string, 0, len(c.Fallbacks)+1)
	for _, m := range c.Models() {
		refs = append(refs, m.String())
	}
	return strings.Join(refs, " → ")
}
