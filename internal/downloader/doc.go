// Package downloader streams files from the origin into a sink with a
// bounded number of fixed-delay retries.
//
// # Usage
//
//	d := downloader.New(client, sink, downloader.Options{
//	    Retries: 2,
//	    Delay:   500 * time.Millisecond,
//	    Logger:  log,
//	})
//	n, err := d.Download(ctx, "https://example.test/assets/a.txt", "/mirror/a.txt")
//
// # Retry Policy
//
// A download is attempted at most Retries+1 times. Transport errors,
// non-success status codes and errors while writing the body are all
// retried identically after exactly Delay; there is no backoff growth and
// no jitter. When every attempt fails, the returned [*Error] wraps the error
// of the final attempt.
//
// # Writes
//
// The sink creates parent directories once the response has arrived and
// overwrites existing files. Unless the sink is atomic, a failed attempt may
// leave a truncated file behind until a later attempt succeeds.
package downloader
