package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
)

// Flag variables shared between the root command and export.
var (
	configPath string
	verbose    bool
)

// newLogger builds the tint-backed logger every command uses and installs
// it as the process default. The export command passes io.Discard while
// the TUI owns the terminal so log lines do not tear the display.
func newLogger(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(tint.NewHandler(out, &tint.Options{
		Level: level,
	}))
	slog.SetDefault(logger)

	return logger
}

// signalContext returns a context canceled on SIGINT or SIGTERM. The first
// signal stops the walk cleanly after the current page; a second one exits
// immediately for users who do not want to wait out an in-flight download.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down, finishing the current page")
		cancel()
		<-sigCh
		logger.Error("interrupted again, exiting now")
		os.Exit(1)
	}()

	return ctx, cancel
}
