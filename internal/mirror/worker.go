package mirror

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/ligustah/pullmirror/internal/downloader"
	mirrorhttp "github.com/ligustah/pullmirror/internal/http"
	"github.com/ligustah/pullmirror/internal/progress"
	"github.com/ligustah/pullmirror/internal/task"
)

// worker processes one strided partition sequentially.
type worker struct {
	id       int
	mirror   *Mirror
	root     string
	files    []string // shared, read-only
	part     task.Partition
	counters *progress.Counters
	log      zerolog.Logger
}

// run processes every index of the partition in order. It returns nil once
// the partition is done, even if individual files failed. A panic or a
// broken mapping invariant ends the worker with a *WorkerError.
func (w *worker) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Worker crashed")
			err = &WorkerError{Worker: w.id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var processed int
	for _, idx := range w.part.Indices(len(w.files)) {
		if ctx.Err() != nil {
			w.log.Warn().Int("processed", processed).Msg("Worker interrupted")
			return nil
		}

		ft, err := task.Map(w.files[idx], w.root, w.mirror.opts.BaseURL, w.mirror.opts.DestinationDirectory)
		if err != nil {
			return &WorkerError{Worker: w.id, Err: err}
		}

		o, err := w.process(ctx, ft)
		if w.mirror.opts.OnFile != nil {
			w.mirror.opts.OnFile(ft, o, err)
		}
		processed++
	}

	w.log.Debug().Int("processed", processed).Msg("Worker finished")
	return nil
}

// process probes a single file and downloads it when it exists.
func (w *worker) process(ctx context.Context, ft task.FileTask) (Outcome, error) {
	log := w.log.With().Str("url", ft.RemoteURL).Logger()
	w.counters.FileStarted()

	log.Debug().Msg("Checking remote file")
	probe := w.mirror.prober.Probe(ctx, ft.RemoteURL)

	switch probe.Status {
	case mirrorhttp.Absent:
		log.Info().Int("status", probe.StatusCode).Msg("Remote file does not exist, skipping")
		w.counters.FileSkipped()
		return SkippedNotFound, nil
	case mirrorhttp.Unreachable:
		log.Warn().Err(probe.Err).Int("status", probe.StatusCode).Msg("Remote file unreachable, skipping")
		w.counters.FileSkipped()
		return SkippedUnreachable, nil
	}

	log.Info().Int("status", probe.StatusCode).Str("dest", ft.DestinationPath).Msg("Downloading file")
	res, err := w.mirror.fetcher.Download(ctx, ft.RemoteURL, ft.DestinationPath)
	if err != nil {
		if ctx.Err() != nil && downloader.IsCanceled(err) {
			log.Warn().Str("file", ft.LocalPath).Msg("Download interrupted")
			w.counters.FileAbandoned()
			return Interrupted, err
		}
		log.Error().Err(err).Str("file", ft.LocalPath).Msg("Failed to process file")
		w.counters.FileFailed()
		return Failed, err
	}

	event := log.Info().
		Int64("bytes", res.Bytes).
		Int("attempts", res.Attempts).
		Str("dest", ft.DestinationPath)
	if res.ContentLength >= 0 {
		event = event.Int64("content_length", res.ContentLength)
	}
	if res.ETag != "" {
		event = event.Str("etag", res.ETag)
	}
	event.Msg("Downloaded file")
	w.counters.FileDownloaded(res.Bytes)
	return Downloaded, nil
}
