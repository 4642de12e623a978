package mirror

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/pullmirror/internal/downloader"
	mirrorhttp "github.com/ligustah/pullmirror/internal/http"
	"github.com/ligustah/pullmirror/internal/progress"
	"github.com/ligustah/pullmirror/internal/task"
	"github.com/ligustah/pullmirror/internal/walker"
)

// Prober checks whether a remote file exists.
type Prober interface {
	Probe(ctx context.Context, url string) mirrorhttp.ProbeResult
}

// Fetcher downloads a remote file to a destination.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) (downloader.Result, error)
}

// Outcome is the terminal result for a single file.
type Outcome int

const (
	Downloaded Outcome = iota
	SkippedNotFound
	SkippedUnreachable
	Failed
	// Interrupted means the run was cancelled while the file was being
	// downloaded. It is neither a success nor a failure.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case SkippedNotFound:
		return "skipped_not_found"
	case SkippedUnreachable:
		return "skipped_unreachable"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Options configures a Mirror.
type Options struct {
	SourceDirectory      string
	BaseURL              string
	DestinationDirectory string

	// WorkerLimit caps the number of concurrent workers.
	WorkerLimit int

	// SourceFs is the filesystem the source tree is read from.
	// Default: the OS filesystem.
	SourceFs afero.Fs

	Logger zerolog.Logger

	// Progress enables periodic progress output to ProgressOutput.
	Progress       bool
	ProgressOutput io.Writer

	// OnFile, if set, is called by the owning worker after each file.
	OnFile func(t task.FileTask, o Outcome, err error)
}

// Result summarizes a run.
type Result struct {
	Files      int
	Workers    int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Duration   time.Duration
}

// WorkerError is returned when a worker dies instead of finishing its
// partition. Sibling workers are not stopped by it.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Mirror copies the remote counterparts of a local tree into a destination.
type Mirror struct {
	prober  Prober
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger
}

// New creates a Mirror.
func New(prober Prober, fetcher Fetcher, opts Options) *Mirror {
	if opts.SourceFs == nil {
		opts.SourceFs = afero.NewOsFs()
	}
	return &Mirror{
		prober:  prober,
		fetcher: fetcher,
		opts:    opts,
		log:     opts.Logger,
	}
}

// Run enumerates the source tree and processes every file with
// min(WorkerLimit, files) concurrent workers, each owning a strided
// partition of the file list. Per-file failures are logged and counted but
// do not fail the run. The returned error is the enumeration error, the
// first WorkerError, or the context error if the run was interrupted.
func (m *Mirror) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	root, err := filepath.Abs(m.opts.SourceDirectory)
	if err != nil {
		return Result{}, &walker.Error{Path: m.opts.SourceDirectory, Err: err}
	}

	files, err := walker.Walk(m.opts.SourceFs, root)
	if err != nil {
		m.log.Error().Err(err).Str("source", root).Msg("Failed to enumerate source directory")
		return Result{}, err
	}
	m.log.Info().Int("files", len(files)).Str("source", root).Msg("Found files in source directory")

	workers := task.WorkerCount(m.opts.WorkerLimit, len(files))
	res := Result{Files: len(files), Workers: workers}
	if workers == 0 {
		m.log.Info().Msg("Nothing to mirror")
		res.Duration = time.Since(start)
		return res, nil
	}

	var counters progress.Counters
	if m.opts.Progress {
		reporter := progress.NewReporter(&counters, progress.Options{
			TotalFiles: len(files),
			Workers:    workers,
			Output:     m.opts.ProgressOutput,
			BaseURL:    m.opts.BaseURL,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	m.log.Info().Int("workers", workers).Msg("Starting workers")

	// No derived context: a failing worker must not cancel its siblings.
	var g errgroup.Group
	for i, part := range task.Partitions(workers) {
		w := &worker{
			id:       i,
			mirror:   m,
			root:     root,
			files:    files,
			part:     part,
			counters: &counters,
			log:      m.log.With().Int("worker", i).Logger(),
		}
		g.Go(func() error {
			return w.run(ctx)
		})
	}
	runErr := g.Wait()

	snap := counters.Snapshot()
	res.Downloaded = snap.Downloaded
	res.Skipped = snap.Skipped
	res.Failed = snap.Failed
	res.Bytes = snap.Bytes
	res.Duration = time.Since(start)

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	event := m.log.Info()
	if runErr != nil {
		event = m.log.Error().Err(runErr)
	}
	event.
		Int("downloaded", res.Downloaded).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int64("bytes", res.Bytes).
		Dur("duration", res.Duration).
		Msg("All files processed")

	return res, runErr
}

// Assignment is a planned file task and the worker that would own it.
type Assignment struct {
	Worker int
	Task   task.FileTask
}

// Plan enumerates and maps the source tree without touching the network.
// Assignments are ordered by file index.
func (m *Mirror) Plan() ([]Assignment, int, error) {
	root, err := filepath.Abs(m.opts.SourceDirectory)
	if err != nil {
		return nil, 0, &walker.Error{Path: m.opts.SourceDirectory, Err: err}
	}

	files, err := walker.Walk(m.opts.SourceFs, root)
	if err != nil {
		return nil, 0, err
	}

	workers := task.WorkerCount(m.opts.WorkerLimit, len(files))
	plan := make([]Assignment, len(files))
	for w, part := range task.Partitions(workers) {
		for _, idx := range part.Indices(len(files)) {
			ft, err := task.Map(files[idx], root, m.opts.BaseURL, m.opts.DestinationDirectory)
			if err != nil {
				return nil, 0, err
			}
			plan[idx] = Assignment{Worker: w, Task: ft}
		}
	}
	return plan, workers, nil
}
