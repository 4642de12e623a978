package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counters tracks per-file outcomes of a run. All methods are safe for
// concurrent use by workers.
type Counters struct {
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
	inProgress atomic.Int64
	bytes      atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Downloaded int
	Skipped    int
	Failed     int
	InProgress int
	Bytes      int64
}

// Done returns the number of files that reached a terminal outcome.
func (s Snapshot) Done() int {
	return s.Downloaded + s.Skipped + s.Failed
}

// FileStarted marks a file as in progress.
func (c *Counters) FileStarted() {
	c.inProgress.Add(1)
}

// FileDownloaded marks a file as downloaded with size bytes.
func (c *Counters) FileDownloaded(size int64) {
	c.bytes.Add(size)
	c.downloaded.Add(1)
	c.inProgress.Add(-1)
}

// FileSkipped marks a file as skipped because the probe found nothing.
func (c *Counters) FileSkipped() {
	c.skipped.Add(1)
	c.inProgress.Add(-1)
}

// FileFailed marks a file as failed.
func (c *Counters) FileFailed() {
	c.failed.Add(1)
	c.inProgress.Add(-1)
}

// FileAbandoned removes a file from the in-progress count without giving it
// an outcome, as when the run is interrupted mid-download.
func (c *Counters) FileAbandoned() {
	c.inProgress.Add(-1)
}

// Snapshot returns the current counts.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Downloaded: int(c.downloaded.Load()),
		Skipped:    int(c.skipped.Load()),
		Failed:     int(c.failed.Load()),
		InProgress: int(c.inProgress.Load()),
		Bytes:      c.bytes.Load(),
	}
}

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of enumerated files.
	TotalFiles int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 1s
	UpdateInterval time.Duration

	// BaseURL is the origin prefix (for display).
	BaseURL string
}

// Reporter periodically prints human-readable progress for a run.
type Reporter struct {
	opts     Options
	counters *Counters

	mu        sync.Mutex
	startTime time.Time
	lastTime  time.Time
	lastBytes int64
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a reporter over counters.
func NewReporter(counters *Counters, opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = time.Second
	}

	return &Reporter{
		opts:     opts,
		counters: counters,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastTime = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[pullmirror] Mirroring from: %s\n", r.opts.BaseURL)
	fmt.Fprintf(r.opts.Output, "[pullmirror] Files: %d | Workers: %d\n", r.opts.TotalFiles, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status. It blocks until the
// final status has been written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	s := r.counters.Snapshot()

	elapsed := now.Sub(r.lastTime).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(s.Bytes-r.lastBytes) / elapsed
	r.lastTime = now
	r.lastBytes = s.Bytes

	var percent float64
	if r.opts.TotalFiles > 0 {
		percent = float64(s.Done()) / float64(r.opts.TotalFiles) * 100
	}

	fmt.Fprintf(r.opts.Output, "[pullmirror] Progress: %.1f%% | %d/%d files | %d downloaded | %d skipped | %d failed | %s | %s/s\n",
		percent,
		s.Done(),
		r.opts.TotalFiles,
		s.Downloaded,
		s.Skipped,
		s.Failed,
		humanize.IBytes(uint64(s.Bytes)),
		humanize.IBytes(uint64(speed)),
	)
}

func (r *Reporter) printFinalStatus() {
	s := r.counters.Snapshot()
	duration := time.Since(r.startTime)
	avgSpeed := float64(s.Bytes) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "[pullmirror] Done: %d downloaded | %d skipped | %d failed | %s\n",
		s.Downloaded,
		s.Skipped,
		s.Failed,
		humanize.IBytes(uint64(s.Bytes)),
	)
	fmt.Fprintf(r.opts.Output, "[pullmirror] Total time: %s | Average speed: %s/s\n",
		FormatDuration(duration),
		humanize.IBytes(uint64(avgSpeed)),
	)
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
