// Package progress provides progress reporting for downloads.
//
// This package outputs human-readable progress information to stderr,
// including completion percentage, transfer speed, and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalSize:  totalBytes,
//	    TotalParts: numParts,
//	    Output:     os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Update as parts are delivered
//	reporter.BytesWritten(n)
//	reporter.PartCompleted()
//
// # Output Format
//
//	[getm] Downloading: https://example.com/file.tar.gz
//	[getm] Total size: 2.5 GiB | Parts: 2560 x 1.0 MiB | Workers: 4
//	[getm] Progress: 45.2% | 1.1 GiB / 2.5 GiB | Speed: 120 MiB/s | ETA: 11s
//	[getm] Parts: 1157 completed | 4 in-progress | 1399 pending
package progress
