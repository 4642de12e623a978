package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/ligustah/pullmirror/internal/config"
	"github.com/ligustah/pullmirror/internal/downloader"
	mirrorhttp "github.com/ligustah/pullmirror/internal/http"
	"github.com/ligustah/pullmirror/internal/logging"
	"github.com/ligustah/pullmirror/internal/sink"
)

// Runner is a Mirror wired to a real HTTP client and destination sink.
type Runner struct {
	*Mirror
	client *mirrorhttp.Client
	sink   sink.Sink
}

// Close releases the destination sink and idle connections.
func (r *Runner) Close() error {
	r.client.CloseIdleConnections()
	return r.sink.Close()
}

// NewFromConfig wires the HTTP client, destination sink and downloader
// described by cfg. progressOut receives progress output when enabled.
func NewFromConfig(ctx context.Context, cfg config.Config, log *logging.Logger, progressOut io.Writer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := mirrorhttp.NewClient(mirrorhttp.Options{
		ProbeTimeout:       cfg.HeadRequestTimeout,
		GetTimeout:         cfg.GetRequestTimeout,
		ProbeBodyLimit:     cfg.ProbeBodyLimit,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if cfg.InsecureSkipVerify {
		log.Warn().Msg("TLS certificate verification is disabled")
	}

	dst, err := sink.Open(ctx, cfg.DestinationDirectory, sink.Options{Atomic: cfg.AtomicWrites})
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}

	dl := downloader.New(client, dst, downloader.Options{
		Retries: cfg.Retry.Count,
		Delay:   cfg.Retry.Delay,
		Logger:  log.WithComponent("downloader"),
	})

	m := New(client, dl, Options{
		SourceDirectory:      cfg.SourceDirectory,
		BaseURL:              cfg.BaseURL,
		DestinationDirectory: cfg.DestinationDirectory,
		WorkerLimit:          cfg.WorkerLimit,
		Logger:               log.WithComponent("mirror"),
		Progress:             cfg.Progress,
		ProgressOutput:       progressOut,
	})

	return &Runner{Mirror: m, client: client, sink: dst}, nil
}
