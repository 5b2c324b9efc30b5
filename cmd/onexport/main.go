// Package main provides the entry point for the onexport CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "onexport",
	Short: "OneNote to Markdown exporter",
	Long: `onexport mirrors your OneNote notebooks into a local directory tree of
markdown files with downloaded images and attachments.

Runs are resumable: pages that are already fully exported are skipped, and
pages left half-done by an interrupted run are repaired on the next one.`,
	// Running with zero arguments performs the export.
	RunE: runExport,
}

func main() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("onexport version " + version)
		},
	}
	rootCmd.AddCommand(exportCmd, statusCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
