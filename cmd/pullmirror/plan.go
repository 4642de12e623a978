package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ligustah/pullmirror/internal/config"
	"github.com/ligustah/pullmirror/internal/mirror"
)

func newPlanCommand(gf *globalFlags) *cobra.Command {
	var override config.Config

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the URL and destination of every file without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(gf, override)
			if err != nil {
				return err
			}

			m := mirror.New(nil, nil, mirror.Options{
				SourceDirectory:      cfg.SourceDirectory,
				BaseURL:              cfg.BaseURL,
				DestinationDirectory: cfg.DestinationDirectory,
				WorkerLimit:          cfg.WorkerLimit,
				Logger:               zerolog.Nop(),
			})
			plan, workers, err := m.Plan()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKER\tURL\tDESTINATION")
			for _, a := range plan {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", a.Worker, a.Task.RemoteURL, a.Task.DestinationPath)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d files, %d workers\n", len(plan), workers)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&override.SourceDirectory, "source", "", "local directory to mirror (SOURCE_DIRECTORY)")
	f.StringVar(&override.BaseURL, "base-url", "", "URL prefix for relative paths (BASE_URL)")
	f.StringVar(&override.DestinationDirectory, "dest", "", "destination directory or bucket URL (DESTINATION_DIRECTORY)")
	f.IntVar(&override.WorkerLimit, "workers", 0, "maximum concurrent workers (WORKER_LIMIT)")

	return cmd
}
