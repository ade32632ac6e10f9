// Package cmd implements the quorum-spec command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	noColor   bool

	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "quorum-spec",
	Short: "Turn an idea into a product specification through a panel of AI personas",
	Long: `quorum-spec runs a panel of expert personas through rounds of questions,
research, debate, synthesis, review and voting until they agree, then writes
a product specification.

Sessions are saved after every stage and can be paused and resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		var domErr *core.DomainError
		if errors.As(err, &domErr) {
			title, msg := core.UserMessage(err)
			fmt.Fprintln(os.Stderr, errorStyle().Render(title)+": "+msg)
		} else {
			fmt.Fprintln(os.Stderr, errorStyle().Render("Error")+": "+err.Error())
		}
	}
	return err
}

// SetVersion records build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./.quorum-spec.yaml, then ~/.config/quorum-spec/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"use offline canned model output and search results")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
}
