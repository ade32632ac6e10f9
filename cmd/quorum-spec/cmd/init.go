package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .quorum-spec.yaml in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var (
	initForce bool
	initPath  string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().StringVar(&initPath, "path", config.ConfigName+".yaml", "where to write the file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	if err := config.WriteDefault(initPath, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle().Render("Wrote"), initPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Set OPENAI_API_KEY and ANTHROPIC_API_KEY, or run with --dry-run.")
	return nil
}
