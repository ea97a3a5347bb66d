// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repo-census",
	Short: "A CLI tool to export per-repository summary data for a GitHub organization.",
	Long: `repo-census enumerates every repository of a GitHub organization and writes
one CSV row per repository: size, recent commit activity, contributors and
the teams those contributors belong to. Re-runs in --append-only mode add
rows only for repositories not already recorded.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}
