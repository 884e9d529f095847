package getm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DataBiosphere/getm/internal/checksum"
	getmhttp "github.com/DataBiosphere/getm/internal/http"
	"github.com/DataBiosphere/getm/internal/pool"
)

// Stream delivers the bytes of a remote object in offset order. It is an
// io.Reader; Chunks provides part-at-a-time access instead. A Stream is
// safe for one consumer goroutine plus a concurrent Close.
type Stream struct {
	url    string
	opts   Options
	log    *slog.Logger
	client *getmhttp.Client
	info   *getmhttp.Info
	parts  []part

	ctx    context.Context
	cancel context.CancelFunc

	// pool is nil on the synchronous path.
	pool    *pool.Pool
	results chan chunk

	// next is the claim counter shared by the fetch workers. workerErr
	// is written once before results is closed.
	next      atomic.Int64
	workerErr error

	attempts  []atomic.Int32
	delivered atomic.Int32
	bytesRead atomic.Int64
	verified  atomic.Bool
	fp        atomic.Value // string, set at end of stream

	verifier    checksum.Verifier
	fingerprint *checksum.Fingerprint

	// Consumer state. mu is held across the blocking receive in
	// nextOrdered; Close cancels the stream context first, which
	// unblocks the consumer before Close takes the lock.
	mu        sync.Mutex
	pending   map[int]chunk
	nextIndex int
	cur       chunk
	curOff    int
	haveCur   bool
	iterPrev  *chunkRef
	finalErr  error
	closed    bool
}

// Open probes the object behind url and starts fetching it. The stream
// is bound to ctx: cancelling it aborts all in-flight work. The caller
// must Close the stream to release its buffers.
//
// Open fails with ErrConfig for invalid options and with a ProbeError
// when the object's size cannot be learned.
func Open(ctx context.Context, url string, options ...Option) (*Stream, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	hopts := getmhttp.DefaultOptions()
	hopts.Timeout = opts.Timeout
	hopts.RetryAttempts = opts.Retries
	hopts.RetryBackoff = opts.Backoff
	hopts.RetryMaxBackoff = opts.MaxBackoff
	client := getmhttp.NewClient(hopts)

	info, err := client.Probe(ctx, url)
	if err != nil {
		return nil, &ProbeError{URL: redactURL(url), Err: err}
	}

	s := &Stream{
		url:     url,
		opts:    opts,
		log:     log,
		client:  client,
		info:    info,
		parts:   planParts(info.Size, opts.ChunkSize),
		pending: make(map[int]chunk),
	}
	s.attempts = make([]atomic.Int32, len(s.parts))

	// The explicit checksum override wins; otherwise take whatever
	// token the probe response advertised. With neither, a content
	// fingerprint is logged at end of stream in place of verification.
	if opts.ChecksumAlgorithm != "" {
		v, err := checksum.New(checksum.Algorithm(opts.ChecksumAlgorithm), opts.ChecksumValue, info.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: checksum override: %v", ErrConfig, err)
		}
		s.verifier = v
	} else {
		s.verifier = checksum.FromHeaders(info.Header, info.Size)
	}
	if s.verifier == nil {
		s.fingerprint = checksum.NewFingerprint()
	}
	if opts.Unordered {
		// Order-free delivery cannot feed a serial digest.
		s.verifier = nil
		s.fingerprint = nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	switch {
	case len(s.parts) == 0:
		s.results = make(chan chunk)
		close(s.results)
	case opts.Concurrency > 0 && info.RangeSupported && len(s.parts) > 1:
		poolSize := opts.effectivePoolSize()
		p, err := pool.New(poolSize, opts.ChunkSize, pool.Options{Logger: log})
		if err != nil {
			s.cancel()
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		s.pool = p
		s.results = make(chan chunk, poolSize)
		s.startWorkers(s.ctx)
		log.Debug("stream opened",
			"name", info.Name, "size", info.Size, "parts", len(s.parts),
			"workers", opts.Concurrency, "pool", poolSize)
	default:
		if opts.Concurrency > 0 && !info.RangeSupported {
			log.Warn("server ignored range request, falling back to sequential fetch", "name", info.Name)
		}
		s.results = make(chan chunk, 1)
		s.fetchSequential(s.ctx)
		log.Debug("stream opened sequentially", "name", info.Name, "size", info.Size, "parts", len(s.parts))
	}

	return s, nil
}

// ObjectInfo describes a remote object as reported by its server.
type ObjectInfo struct {
	URL            string
	Size           int64
	Name           string
	ETag           string
	ContentType    string
	RangeSupported bool

	// ChecksumAlgorithm and ChecksumValue hold the integrity token
	// parsed from the response headers; both are empty when the server
	// advertised nothing usable.
	ChecksumAlgorithm string
	ChecksumValue     string
}

// Probe issues the single metadata request Open performs and returns
// the object's description without starting a download. It accepts the
// same options as Open; only the timeout and retry settings apply.
func Probe(ctx context.Context, url string, options ...Option) (ObjectInfo, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if err := opts.validate(); err != nil {
		return ObjectInfo{}, err
	}

	hopts := getmhttp.DefaultOptions()
	hopts.Timeout = opts.Timeout
	hopts.RetryAttempts = opts.Retries
	hopts.RetryBackoff = opts.Backoff
	hopts.RetryMaxBackoff = opts.MaxBackoff

	info, err := getmhttp.NewClient(hopts).Probe(ctx, url)
	if err != nil {
		return ObjectInfo{}, &ProbeError{URL: redactURL(url), Err: err}
	}

	oi := ObjectInfo{
		URL:            url,
		Size:           info.Size,
		Name:           info.Name,
		ETag:           info.ETag,
		ContentType:    info.ContentType,
		RangeSupported: info.RangeSupported,
	}
	if v := checksum.FromHeaders(info.Header, info.Size); v != nil {
		oi.ChecksumAlgorithm = string(v.Algorithm())
		oi.ChecksumValue = v.Expected()
	}
	return oi, nil
}

// Read implements io.Reader. Bytes arrive in offset order; each part's
// buffer returns to the pool once its last byte has been copied out.
// After the final byte, Read reports io.EOF if the checksum matched and
// an IntegrityError otherwise. Read after Close returns ErrClosed.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.opts.Unordered {
		return 0, ErrUnorderedRead
	}
	if s.finalErr != nil {
		return 0, s.finalErr
	}

	if !s.haveCur {
		c, err := s.nextOrdered(s.ctx)
		if err != nil {
			s.finalErr = err
			return 0, err
		}
		s.cur, s.curOff, s.haveCur = c, 0, true
	}

	data := s.cur.buf.Bytes()[:s.cur.length]
	n := copy(p, data[s.curOff:])
	s.curOff += n
	s.bytesRead.Add(int64(n))
	if s.curOff == s.cur.length {
		s.cur.buf.Release()
		s.haveCur = false
	}
	return n, nil
}

// nextOrdered returns the next part in offset order, draining the
// reorder gate or blocking on the fetch pipeline. Must be called with
// mu held. Reports end of stream through finish.
func (s *Stream) nextOrdered(ctx context.Context) (chunk, error) {
	for {
		if c, ok := s.pending[s.nextIndex]; ok {
			delete(s.pending, s.nextIndex)
			return s.deliver(c), nil
		}

		select {
		case c, ok := <-s.results:
			if !ok {
				if s.workerErr != nil {
					return chunk{}, s.workerErr
				}
				if s.nextIndex < len(s.parts) {
					return chunk{}, fmt.Errorf("getm: stream ended with %d parts missing", len(s.parts)-s.nextIndex)
				}
				return chunk{}, s.finish()
			}
			if c.index == s.nextIndex {
				return s.deliver(c), nil
			}
			s.pending[c.index] = c
		case <-ctx.Done():
			return chunk{}, ctx.Err()
		}
	}
}

// nextUnordered returns parts in completion order. Must be called with
// mu held.
func (s *Stream) nextUnordered(ctx context.Context) (chunk, error) {
	select {
	case c, ok := <-s.results:
		if !ok {
			if s.workerErr != nil {
				return chunk{}, s.workerErr
			}
			return chunk{}, s.finish()
		}
		s.delivered.Add(1)
		return c, nil
	case <-ctx.Done():
		return chunk{}, ctx.Err()
	}
}

// deliver advances the order cursor and feeds the digest exactly once
// per part.
func (s *Stream) deliver(c chunk) chunk {
	s.nextIndex++
	s.delivered.Add(1)

	data := c.buf.Bytes()[:c.length]
	if s.verifier != nil {
		s.verifier.Write(data)
	}
	if s.fingerprint != nil {
		s.fingerprint.Write(data)
	}
	return c
}

// finish runs the end-of-stream integrity check.
func (s *Stream) finish() error {
	if s.verifier != nil {
		if !s.verifier.OK() {
			return &IntegrityError{
				Algorithm: string(s.verifier.Algorithm()),
				Expected:  s.verifier.Expected(),
				Actual:    s.verifier.Actual(),
			}
		}
		s.verified.Store(true)
		s.log.Debug("integrity verified", "algorithm", s.verifier.Algorithm(), "checksum", s.verifier.Expected())
	} else if s.fingerprint != nil {
		fp := s.fingerprint.String()
		s.fp.Store(fp)
		s.log.Debug("no server checksum to verify against", "fingerprint", fp)
	}
	return io.EOF
}

// Close aborts in-flight fetches, returns every buffer, and removes the
// pool's shared memory regions. It is idempotent and safe to call while
// a Read is blocked.
func (s *Stream) Close() error {
	s.cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	if s.haveCur {
		s.cur.buf.Release()
		s.haveCur = false
	}
	s.iterPrev.release()
	s.iterPrev = nil
	for idx, c := range s.pending {
		c.buf.Release()
		delete(s.pending, idx)
	}
	s.mu.Unlock()

	// The workers observe the cancelled context and exit, closing
	// results; anything they published but nobody consumed is drained
	// here so the pool sees every buffer returned.
	for c := range s.results {
		c.buf.Release()
	}

	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

// Size returns the object's total length in bytes.
func (s *Stream) Size() int64 { return s.info.Size }

// Name returns the object's filename as learned from the probe, which
// may be empty.
func (s *Stream) Name() string { return s.info.Name }

// ETag returns the object's entity tag, quotes stripped.
func (s *Stream) ETag() string { return s.info.ETag }

// ContentType returns the object's media type, which may be empty.
func (s *Stream) ContentType() string { return s.info.ContentType }

// Checksum returns the algorithm and expected value the stream verifies
// against, or empty strings when the server advertised no usable token.
func (s *Stream) Checksum() (algorithm, value string) {
	if s.verifier == nil {
		return "", ""
	}
	return string(s.verifier.Algorithm()), s.verifier.Expected()
}

// Stats describes the stream's progress.
type Stats struct {
	// Parts is the total number of parts in the plan.
	Parts int

	// Delivered counts parts handed to the consumer so far.
	Delivered int

	// BytesRead counts bytes consumed through Read or Chunks.
	BytesRead int64

	// Attempts records the attempt count per part index. Zero means the
	// part has not been claimed yet.
	Attempts []int

	// Retries is the total number of extra attempts across all parts.
	Retries int

	// Algorithm names the verification checksum, empty when none.
	Algorithm string

	// Verified reports whether the end-of-stream check passed.
	Verified bool

	// Fingerprint is the content hash computed when the server offered
	// no checksum, available once the stream is exhausted.
	Fingerprint string
}

// Stats returns a snapshot of the stream's progress. It never blocks,
// so it is safe to call from a progress loop while another goroutine
// reads.
func (s *Stream) Stats() Stats {
	st := Stats{
		Parts:     len(s.parts),
		Delivered: int(s.delivered.Load()),
		BytesRead: s.bytesRead.Load(),
		Attempts:  make([]int, len(s.parts)),
		Verified:  s.verified.Load(),
	}
	for i := range s.attempts {
		a := int(s.attempts[i].Load())
		st.Attempts[i] = a
		if a > 1 {
			st.Retries += a - 1
		}
	}
	if s.verifier != nil {
		st.Algorithm = string(s.verifier.Algorithm())
	}
	if fp, ok := s.fp.Load().(string); ok {
		st.Fingerprint = fp
	}
	return st
}
