package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gjican/onexport/internal/auth"
	"github.com/gjican/onexport/internal/config"
	"github.com/gjican/onexport/internal/export"
	"github.com/gjican/onexport/internal/graph"
	"github.com/gjican/onexport/internal/tui"
)

var (
	dryRun bool
	force  bool
	quiet  bool // quiet disables the TUI and shows plain log output
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export OneNote notebooks to markdown",
	Long: `Export fetches your notebooks, sections and pages from the Microsoft
Graph API, converts each page to markdown, and downloads embedded images
and attachments next to it.

Pages whose output already exists and no longer references the remote host
are skipped, so an interrupted export can simply be run again. Use --force
to re-export everything.

When running in a terminal, a progress display is shown by default.
Use --quiet for plain log output instead.`,
	RunE: runExport,
}

func init() {
	for _, cmd := range []*cobra.Command{exportCmd, rootCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
		cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "preview the walk without writing files")
		cmd.Flags().BoolVarP(&force, "force", "f", false, "re-export pages even if they look complete")
		cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
		cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable TUI, use plain log output")
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	useTUI := !quiet && term.IsTerminal(int(os.Stdout.Fd()))

	var logOutput io.Writer = os.Stderr
	if useTUI && !verbose {
		logOutput = io.Discard
	}
	logger := newLogger(logOutput, verbose)

	ctx, cancel := signalContext(logger)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dryRun {
		logger.Info("dry-run mode enabled, no files will be written")
	}
	if force {
		logger.Info("force mode enabled, re-exporting all pages")
	}

	var tokens auth.TokenProvider
	if cfg.AccessToken != "" {
		logger.Info("using access token from environment")
		tokens = auth.StaticTokenProvider(cfg.AccessToken)
	} else {
		tokens = auth.NewDeviceCodeAuthenticator(cfg.Auth.ClientID, cfg.Auth.Authority, cfg.Auth.Scopes, logger)
	}

	// Acquire the token up front: authentication failure is the one thing
	// that makes the whole run fail with a non-zero exit.
	if _, err := tokens.Token(ctx); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	logger.Info("signed in, scanning notebooks")

	client := graph.NewClient(tokens, logger,
		graph.WithBaseURL(cfg.Graph.BaseURL),
		graph.WithPageSize(cfg.Graph.PageSize),
		graph.WithRetries(cfg.Graph.ListRetries, cfg.Graph.DownloadRetries),
	)

	opts := []export.Option{
		export.WithForce(force),
		export.WithDryRun(dryRun),
	}

	var tuiRunner *tui.Runner
	if useTUI {
		tuiRunner = tui.NewRunner()
		if err := tuiRunner.Start(); err != nil {
			return fmt.Errorf("starting TUI: %w", err)
		}
		opts = append(opts, export.WithProgress(tuiRunner))
	}

	exporter := export.New(client, cfg.Output.Dir, logger, opts...)

	result, runErr := exporter.Run(ctx)

	if tuiRunner != nil {
		tuiRunner.Done(runErr)
		tuiRunner.Wait()
	}

	if runErr != nil {
		// Pages could not even be listed this run; the next run picks up
		// where this one left off. Only authentication failures flip the
		// exit status.
		logger.Error("export did not complete", "error", runErr)
		return nil
	}

	logger.Info("all done",
		"export_dir", cfg.Output.Dir,
		"synced", result.PagesSynced,
		"skipped", result.PagesSkipped,
		"failed", result.PagesFailed,
	)
	for _, err := range result.Errors {
		logger.Warn("recorded error", "error", err)
	}
	return nil
}
