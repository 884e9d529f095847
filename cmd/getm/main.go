package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataBiosphere/getm/internal/config"
	"github.com/DataBiosphere/getm/internal/progress"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitInvalidArgs     = 1
	ExitProbeFailed     = 2
	ExitFetchFailed     = 3
	ExitIntegrityFailed = 4
	ExitWriteFailed     = 5
	ExitCancelled       = 6
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("getm", flag.ContinueOnError)

	concurrency := fs.Int("concurrency", 4, "Number of parallel fetch workers (0 disables parallel fetching)")
	chunkSize := fs.String("chunk-size", "1MiB", "Size of each fetched part")
	poolSize := fs.Int("pool-size", 0, "Number of shared buffers (0 sizes the pool automatically)")
	retries := fs.Int("retries", 4, "Max retries per part after the first attempt")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-request timeout")
	configPath := fs.String("config", "", "Path to a YAML config file")
	manifest := fs.String("manifest", "", "Download a JSON manifest of URLs instead of a single URL")
	showProgress := fs.Bool("progress", false, "Show progress output")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: getm [options] <url> [destination]

Download a remote object addressed by a (typically signed) URL, verify
its checksum, and write it to the destination: a local path, a directory,
or a bucket URL (s3://, gs://). With no destination the filename is taken
from the remote object and written to the current directory.

With -manifest, download a JSON array of {url, filepath, checksum,
checksum-algorithm} entries instead of a single URL.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *showVersion {
		fmt.Printf("getm %s\n", version)
		return ExitSuccess
	}

	// Defaults, then config file, then environment, then explicit flags.
	cfg := config.Default()
	if *configPath != "" {
		c, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return ExitInvalidArgs
		}
		cfg = c
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading environment: %v\n", err)
		return ExitInvalidArgs
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "concurrency":
			cfg.Concurrency = *concurrency
		case "chunk-size":
			size, err := progress.ParseBytes(*chunkSize)
			if err != nil {
				flagErr = fmt.Errorf("invalid chunk size: %w", err)
				return
			}
			cfg.ChunkSize = size
		case "pool-size":
			cfg.PoolSize = *poolSize
		case "retries":
			cfg.Retry.Attempts = *retries + 1
		case "timeout":
			cfg.Timeout = *timeout
		case "progress":
			cfg.Progress = *showProgress
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", flagErr)
		return ExitInvalidArgs
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[getm] Received interrupt, shutting down...")
		cancel()
	}()

	if *manifest != "" {
		if fs.NArg() != 0 {
			fmt.Fprintln(os.Stderr, "Error: -manifest does not take positional arguments")
			fs.Usage()
			return ExitInvalidArgs
		}
		return runManifest(ctx, *manifest, cfg, logger)
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return ExitInvalidArgs
	}
	url := fs.Arg(0)
	dest := fs.Arg(1)

	return download(ctx, url, dest, cfg, logger, nil)
}
