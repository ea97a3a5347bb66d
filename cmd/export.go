// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/t-okubo/repo-census/internal/config"
	"github.com/t-okubo/repo-census/internal/gateway"
	"github.com/t-okubo/repo-census/internal/ledger"
	"github.com/t-okubo/repo-census/internal/usecase"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exports one CSV summary row per repository of an organization",
	Long: `Exports a CSV with one row per repository of the given organization:
name, id, size, 3-week and 52-week commit counts, contributor count and
handles, and the teams whose members contributed to the repository.

In normal mode the output file must not already exist. With --append-only it
must exist, and only repositories missing from it are processed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// Get the verbose flag from the root command to set up the loggers.
		// Progress output is discarded unless verbose; warnings always reach
		// standard error so no failure goes unrecorded.
		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := log.New(io.Discard, "", log.LstdFlags)
		if verbose {
			logger.SetOutput(os.Stderr)
		}
		warnLog := log.New(os.Stderr, "WARNING: ", log.LstdFlags)

		owner, _ := cmd.Flags().GetString("owner")
		token, _ := cmd.Flags().GetString("token")
		file, _ := cmd.Flags().GetString("file")
		appendOnly, _ := cmd.Flags().GetBool("append-only")
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath, config.Config{
			Owner:      owner,
			Token:      token,
			File:       file,
			AppendOnly: appendOnly,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Inject dependencies and run the main business logic.
		githubGateway, err := gateway.NewGateway(cfg.Token, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create GitHub gateway: %v\n", err)
			os.Exit(1)
		}
		exporter := usecase.NewExporter(githubGateway, ledger.NewCSV(cfg.File), logger, warnLog)

		if err := exporter.Run(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("owner", "o", "", "GitHub organization whose repositories are summarized")
	exportCmd.Flags().StringP("token", "t", "", "GitHub personal access token (falls back to GITHUB_TOKEN)")
	exportCmd.Flags().StringP("file", "f", "", "Output CSV file path")
	exportCmd.Flags().Bool("append-only", false, "Only add rows for repositories missing from the existing CSV")
	exportCmd.Flags().String("config", "", "Optional TOML config file with owner/token/file/append_only")
}
