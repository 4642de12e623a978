// Package mirror distributes the files of a local tree across workers that
// probe and download their remote counterparts.
//
// # Usage
//
//	r, err := mirror.NewFromConfig(ctx, cfg, log, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	res, err := r.Run(ctx)
//
// # Work Distribution
//
// The source tree is enumerated once. With W = min(WorkerLimit, files)
// workers, worker i owns the file indices i, i+W, i+2W, ... and handles
// them strictly in order: map to a URL and destination, probe, download if
// the probe found the file. No two workers ever share a file, so no two
// workers write the same destination.
//
// # Failure Semantics
//
//   - A file whose download fails after all retries is logged and counted;
//     its worker moves on to the next file.
//   - A worker that panics ends with a [*WorkerError]. Run waits for all
//     other workers and then returns the first such error.
//   - An enumeration failure aborts the run before any worker starts.
//   - A run over an empty tree starts no workers and succeeds.
package mirror
