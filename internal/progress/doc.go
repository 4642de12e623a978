// Package progress counts per-file outcomes of a mirror run and optionally
// prints them.
//
// # Usage
//
//	var counters progress.Counters
//	reporter := progress.NewReporter(&counters, progress.Options{
//	    TotalFiles: len(files),
//	    Workers:    workers,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	counters.FileStarted()
//	counters.FileDownloaded(n)
//
// # Output Format
//
//	[pullmirror] Mirroring from: https://example.test/assets/
//	[pullmirror] Files: 10240 | Workers: 16
//	[pullmirror] Progress: 45.2% | 4628/10240 files | 4100 downloaded | 520 skipped | 8 failed | 1.1 GiB | 12 MiB/s
//	[pullmirror] Done: 9100 downloaded | 1120 skipped | 20 failed | 2.5 GiB
package progress
