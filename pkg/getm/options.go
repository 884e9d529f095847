package getm

import (
	"fmt"
	"log/slog"
	"time"
)

// Options configures a stream.
type Options struct {
	Concurrency int           // fetch workers; 0 selects the synchronous path
	ChunkSize   int64         // bytes per part
	PoolSize    int           // shared buffers; 0 sizes the pool from the concurrency
	Retries     int           // per-part retries after the first attempt
	Backoff     time.Duration // initial retry delay
	MaxBackoff  time.Duration // retry delay ceiling
	Timeout     time.Duration // per-request timeout
	Unordered   bool          // deliver parts as they complete
	Logger      *slog.Logger

	// ChecksumAlgorithm and ChecksumValue override the integrity token
	// discovered in the probe response headers.
	ChecksumAlgorithm string
	ChecksumValue     string
}

// Option is a functional option for configuring a stream.
type Option func(*Options)

// WithConcurrency sets the number of parallel fetch workers. Zero
// disables parallel fetching: the object is read with one synchronous
// streaming request instead, still delivered part by part.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithChunkSize sets the number of bytes fetched per part.
func WithChunkSize(size int64) Option {
	return func(o *Options) {
		o.ChunkSize = size
	}
}

// WithPoolSize sets the number of shared memory buffers. The pool must
// hold at least as many buffers as there are workers, or Open fails
// with ErrConfig. Zero sizes the pool automatically.
func WithPoolSize(n int) Option {
	return func(o *Options) {
		o.PoolSize = n
	}
}

// WithRetries sets the per-part retry budget. A part is attempted at
// most n+1 times before the stream fails.
func WithRetries(n int) Option {
	return func(o *Options) {
		o.Retries = n
	}
}

// WithBackoff sets the initial and maximum retry delay. The delay
// doubles per attempt with jitter, capped at max.
func WithBackoff(initial, max time.Duration) Option {
	return func(o *Options) {
		o.Backoff = initial
		o.MaxBackoff = max
	}
}

// WithTimeout sets the timeout for individual requests.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithUnordered delivers parts in completion order instead of offset
// order. Chunks carry their offset so callers can write them wherever
// they belong. Integrity verification is skipped: a running digest
// requires the bytes in order.
func WithUnordered() Option {
	return func(o *Options) {
		o.Unordered = true
	}
}

// WithLogger sets the logger for debug events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithChecksum sets the expected checksum, overriding whatever the
// probe response advertises. Supported algorithms are "md5",
// "gs_crc32c", and "s3_etag".
func WithChecksum(algorithm, value string) Option {
	return func(o *Options) {
		o.ChecksumAlgorithm = algorithm
		o.ChecksumValue = value
	}
}

func defaultOptions() Options {
	return Options{
		Concurrency: 4,
		ChunkSize:   1 << 20, // 1MiB
		Retries:     4,
		Backoff:     500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		Timeout:     30 * time.Second,
	}
}

func (o *Options) validate() error {
	if o.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency cannot be negative", ErrConfig)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, o.ChunkSize)
	}
	if o.Retries < 0 {
		return fmt.Errorf("%w: retries cannot be negative", ErrConfig)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrConfig)
	}
	if o.PoolSize != 0 && o.PoolSize < o.Concurrency {
		return fmt.Errorf("%w: pool size %d is below concurrency %d", ErrConfig, o.PoolSize, o.Concurrency)
	}
	return nil
}

// effectivePoolSize returns the pool size to use: the explicit setting,
// or enough buffers for every worker plus a reorder margin.
func (o *Options) effectivePoolSize() int {
	if o.PoolSize > 0 {
		return o.PoolSize
	}
	return 2*o.Concurrency + 1
}
