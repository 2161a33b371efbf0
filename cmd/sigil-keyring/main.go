// Package main is the entry point for the sigil-keyring CLI.
package main

import (
	"os"

	"github.com/mrz1836/sigil-keyring/internal/cli"
)

// Set by the linker at release time.
//
//nolint:gochecknoglobals // linker-stamped build metadata
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
