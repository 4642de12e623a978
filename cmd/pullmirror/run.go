package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ligustah/pullmirror/internal/config"
	"github.com/ligustah/pullmirror/internal/mirror"
)

func newRunCommand(gf *globalFlags, stderr io.Writer) *cobra.Command {
	var override config.Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe and download every file of the source tree",
		Long: `Walk the source directory, probe BASE_URL + <relative path> for every file
and download the ones the origin has into the destination, preserving
relative paths. Files the origin does not have are skipped.

The destination may be a local directory or a bucket URL such as
s3://bucket?region=us-east-1, gs://bucket or file:///srv/mirror.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf, override)
			if err != nil {
				return err
			}
			return runMirror(cmd.Context(), cfg, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&override.SourceDirectory, "source", "", "local directory to mirror (SOURCE_DIRECTORY)")
	f.StringVar(&override.BaseURL, "base-url", "", "URL prefix for relative paths (BASE_URL)")
	f.StringVar(&override.DestinationDirectory, "dest", "", "destination directory or bucket URL (DESTINATION_DIRECTORY)")
	f.IntVar(&override.WorkerLimit, "workers", 0, "maximum concurrent workers (WORKER_LIMIT)")
	f.BoolVar(&override.Progress, "progress", false, "show progress output")
	f.BoolVar(&override.AtomicWrites, "atomic", false, "write to a temporary file and rename on success")

	return cmd
}

func runMirror(parent context.Context, cfg config.Config, stderr io.Writer) error {
	logger := newLogger(cfg)
	defer logger.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn().Msg("Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	r, err := mirror.NewFromConfig(ctx, cfg, logger, stderr)
	if err != nil {
		return withCode(ExitStorageError, err)
	}
	defer r.Close()

	if _, err := r.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return withCode(ExitInterrupted, err)
		}
		return err
	}
	return nil
}
