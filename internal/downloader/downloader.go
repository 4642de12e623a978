package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	mirrorhttp "github.com/ligustah/pullmirror/internal/http"
	"github.com/ligustah/pullmirror/internal/sink"
)

// Getter performs a single streamed GET.
type Getter interface {
	Get(ctx context.Context, url string) (*mirrorhttp.Response, error)
}

// Options configures the downloader.
type Options struct {
	// Retries is the number of additional attempts after the first one.
	Retries int

	// Delay is the fixed wait between a failed attempt and the next one.
	Delay time.Duration

	// Logger receives retry and failure events.
	Logger zerolog.Logger
}

// Downloader streams remote files into a sink, retrying failed attempts.
type Downloader struct {
	client Getter
	sink   sink.Sink
	opts   Options
}

// New creates a downloader.
func New(client Getter, s sink.Sink, opts Options) *Downloader {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return &Downloader{client: client, sink: s, opts: opts}
}

// Result describes the successful attempt of a download.
type Result struct {
	Bytes         int64
	ContentLength int64 // -1 when the origin sent none
	ETag          string
	Attempts      int
}

// Download fetches url into dest. Every kind of failure is retried the same
// way; after Retries+1 failed attempts the error of the last attempt is
// returned.
func (d *Downloader) Download(ctx context.Context, url, dest string) (Result, error) {
	log := d.opts.Logger.With().Str("url", url).Logger()

	var (
		attempts int
		res      Result
	)
	backoff := retry.WithMaxRetries(uint64(d.opts.Retries), constantBackoff(d.opts.Delay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := d.attempt(ctx, url, dest)
		if err == nil {
			res = r
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempts <= d.opts.Retries {
			log.Warn().
				Err(err).
				Int("attempt", attempts).
				Dur("delay", d.opts.Delay).
				Msg("Download failed, retrying")
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return Result{Attempts: attempts}, &Error{URL: url, Attempts: attempts, Err: err}
	}

	res.Attempts = attempts
	return res, nil
}

// attempt performs one GET and streams the body into the sink.
func (d *Downloader) attempt(ctx context.Context, url, dest string) (Result, error) {
	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	n, err := d.sink.Write(ctx, dest, resp.Body)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: n, ContentLength: resp.ContentLength, ETag: resp.ETag}, nil
}

// Error is returned when a download gives up.
type Error struct {
	URL      string
	Attempts int
	Err      error // error of the final attempt
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err stems from context cancellation rather
// than from the origin or the destination.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func constantBackoff(d time.Duration) retry.Backoff {
	if d > 0 {
		return retry.NewConstant(d)
	}
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	})
}
