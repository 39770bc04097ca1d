// Package main is the entry point for the vibeops CLI.
//
// vibeops turns a plain-language infrastructure request into a deployed GCP
// environment: it analyzes requirements, designs an architecture, generates
// Terraform and applies it, streaming progress as server-sent events.
//
// Commands: serve, run, history, version.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/KaranKendre11/VibeOPS/cmd/vibeops/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
