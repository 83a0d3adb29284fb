// Package cmd provides command-line interface functionality for SBKTools.
// SBKTools is a collection of utilities for inspecting, extracting and
// rebuilding SBK sound bank containers.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
// It provides the main entry point for the SBKTools application.
var rootCmd = &cobra.Command{
	Use:   "sbktools",
	Short: "Tools for inspecting and rebuilding SBK sound banks",
	Long: `SBKTools - A collection of utilities for inspecting, extracting and
rebuilding SBK sound bank containers (legacy SBK3/SBK4 and modern SBK5),
standalone or nested inside bundle files.

Currently supports:
  - SBK containers (list chunks, extract streams to WAV, replace streams)
  - Batch replacement runs driven by a YAML description
  - Bundle files (scan for nested containers, extract them)

Examples:
  sbktools sbk info MUSIC.SBK
  sbktools sbk extract MUSIC.SBK ./output/
  sbktools sbk replace MUSIC.SBK 2 new_theme.wav MUSIC_modified.SBK
  sbktools batch run replacements.yaml
  sbktools bundle scan ASSETS.BIG

Use 'sbktools [command] --help' for more information about a command.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
