package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/DataBiosphere/getm/internal/config"
	"github.com/DataBiosphere/getm/internal/progress"
	"github.com/DataBiosphere/getm/pkg/getm"
)

// checksumOverride carries a manifest entry's expected checksum into the
// stream options.
type checksumOverride struct {
	Algorithm string
	Value     string
}

// sinkError marks a destination write failure, distinguishing it from
// stream-side failures when mapping to an exit code.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// download streams one object to its destination and returns an exit code.
func download(ctx context.Context, srcURL, dest string, cfg config.Config, logger *slog.Logger, override *checksumOverride) int {
	retries := cfg.Retry.Attempts - 1
	if retries < 0 {
		retries = 0
	}

	opts := []getm.Option{
		getm.WithConcurrency(cfg.Concurrency),
		getm.WithChunkSize(cfg.ChunkSize),
		getm.WithRetries(retries),
		getm.WithBackoff(cfg.Retry.Backoff, cfg.Retry.MaxBackoff),
		getm.WithTimeout(cfg.Timeout),
		getm.WithLogger(logger),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, getm.WithPoolSize(cfg.PoolSize))
	}
	if override != nil {
		opts = append(opts, getm.WithChecksum(override.Algorithm, override.Value))
	}

	s, err := getm.Open(ctx, srcURL, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	defer s.Close()

	bucketURL, key, display, err := resolveDestination(dest, s.Name())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening destination: %v\n", err)
		return ExitWriteFailed
	}
	defer bkt.Close()

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize:  s.Size(),
			TotalParts: s.Stats().Parts,
			Workers:    cfg.Concurrency,
			SourceURL:  srcURL,
			ChunkSize:  cfg.ChunkSize,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	// The writer gets its own context: cancelling it is how a staged
	// write is abandoned rather than committed on Close.
	wctx, wcancel := context.WithCancel(ctx)
	defer wcancel()

	w, err := bkt.NewWriter(wctx, key, &blob.WriterOptions{ContentType: s.ContentType()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating destination writer: %v\n", err)
		return ExitWriteFailed
	}

	copyErr := s.Chunks().Collect(ctx, func(c getm.Chunk) error {
		if reporter != nil {
			reporter.PartStarted()
		}
		if _, err := w.Write(c.Data); err != nil {
			if reporter != nil {
				reporter.PartFailed()
			}
			return &sinkError{err: err}
		}
		if reporter != nil {
			reporter.PartCompleted()
			reporter.BytesWritten(int64(len(c.Data)))
		}
		return nil
	})
	if copyErr != nil {
		wcancel()
		w.Close()
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[getm] Download cancelled")
			return ExitCancelled
		}
		var se *sinkError
		if errors.As(copyErr, &se) {
			logger.Error("destination write failed", "code", gcerrors.Code(se.err), "key", key)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", copyErr)
		return exitCode(copyErr)
	}
	if err := w.Close(); err != nil {
		logger.Error("destination write failed", "code", gcerrors.Code(err), "key", key)
		fmt.Fprintf(os.Stderr, "Error finalizing destination: %v\n", err)
		return ExitWriteFailed
	}

	if reporter != nil {
		reporter.Stop()
	}

	st := s.Stats()
	fmt.Fprintf(os.Stderr, "[getm] Downloaded %s (%s)\n", display, progress.FormatBytes(s.Size()))
	if st.Retries > 0 {
		fmt.Fprintf(os.Stderr, "[getm] Recovered from %d transient failures\n", st.Retries)
	}
	if st.Verified {
		alg, _ := s.Checksum()
		fmt.Fprintf(os.Stderr, "[getm] Integrity verified (%s)\n", alg)
	} else if st.Fingerprint != "" {
		fmt.Fprintf(os.Stderr, "[getm] No server checksum; content fingerprint %s\n", st.Fingerprint)
	}

	return ExitSuccess
}

// resolveDestination splits dest into a gocloud bucket URL and an object
// key. A bucket URL keeps its scheme; a local path becomes a fileblob
// bucket over its directory. name is the filename learned from the
// probe, used when dest is empty, a directory, or ends with a slash.
func resolveDestination(dest, name string) (bucketURL, key, display string, err error) {
	if strings.Contains(dest, "://") {
		u, err := url.Parse(dest)
		if err != nil {
			return "", "", "", fmt.Errorf("invalid destination URL: %w", err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" || strings.HasSuffix(key, "/") {
			if name == "" {
				return "", "", "", errors.New("destination needs an object name and none could be derived from the source")
			}
			key += name
		}
		bucketURL := u.Scheme + "://" + u.Host
		if u.RawQuery != "" {
			bucketURL += "?" + u.RawQuery
		}
		return bucketURL, key, u.Scheme + "://" + u.Host + "/" + key, nil
	}

	dir, base := ".", ""
	switch info, statErr := os.Stat(dest); {
	case dest == "":
		base = name
	case statErr == nil && info.IsDir():
		dir, base = dest, name
	case strings.HasSuffix(dest, string(os.PathSeparator)):
		dir, base = dest, name
	default:
		dir, base = filepath.Dir(dest), filepath.Base(dest)
	}
	if base == "" {
		return "", "", "", errors.New("destination needs a filename and none could be derived from the source")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", "", fmt.Errorf("resolve destination directory: %w", err)
	}
	// fileblob stages writes in a temp file and renames on Close;
	// metadata sidecar files are disabled.
	return "file://" + abs + "?create_dir=true&metadata=skip", base, filepath.Join(dir, base), nil
}

// exitCode maps a stream error to the CLI's exit code contract.
func exitCode(err error) int {
	var (
		se *sinkError
		pe *getm.ProbeError
		fe *getm.FetchError
		ie *getm.IntegrityError
	)
	switch {
	case errors.As(err, &se):
		return ExitWriteFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	case errors.Is(err, getm.ErrConfig):
		return ExitInvalidArgs
	case errors.As(err, &pe):
		return ExitProbeFailed
	case errors.As(err, &ie):
		return ExitIntegrityFailed
	case errors.As(err, &fe):
		return ExitFetchFailed
	default:
		return ExitFetchFailed
	}
}
