package main

import (
	"os"

	"github.com/hugo-lorenzo-mato/quorum-spec/cmd/quorum-spec/cmd"
)

// Version information, set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
