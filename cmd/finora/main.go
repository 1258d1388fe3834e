// Package main is the entry point for the Finora CLI.
package main

import (
	"os"

	"github.com/mrz1836/finora/internal/cli"
)

// Set by the linker at build time.
//
//nolint:gochecknoglobals // ldflags targets must be package variables
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if err := cli.Execute(cli.BuildInfo{Version: version, Commit: commit, Date: date}); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
