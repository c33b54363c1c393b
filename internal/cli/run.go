package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/petal/internal/config"
	"github.com/roach88/petal/internal/module"
	"github.com/roach88/petal/internal/pipeline"
)

// RunOptions configures how the pipeline is assembled.
type RunOptions struct {
	// Modules builds the module registry from the startup settings.
	Modules func(*config.Settings) (*module.Registry, error)

	// Pipeline holds extra pipeline options (for testing).
	Pipeline []pipeline.Option
}

func runPipeline(cmd *cobra.Command, opts *RunOptions, path string) error {
	settings, err := config.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	reg, err := opts.Modules(settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register modules", err)
	}

	pipeOpts := append([]pipeline.Option{pipeline.WithConsole(cmd.ErrOrStderr())}, opts.Pipeline...)
	p, err := pipeline.Open(settings, reg, pipeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open pipeline", err)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			slog.Error("error closing pipeline", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Pipeline started with %d module(s) from %s.\n", reg.Len(), settings.Path)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := p.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "pipeline error", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Pipeline stopped.")
	return nil
}
