package getm

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	getmhttp "github.com/DataBiosphere/getm/internal/http"
	"github.com/DataBiosphere/getm/internal/pool"
)

// chunk is one fetched part moving through the pipeline. Whoever holds
// the chunk owns its buffer until Release.
type chunk struct {
	index  int
	offset int64
	length int
	buf    owned
}

// owned is memory whose ownership travels with a chunk: a shared memory
// pool buffer on the concurrent path, a plain heap slice on the
// synchronous path.
type owned interface {
	Bytes() []byte
	Release()
}

// heapBuffer satisfies owned for the synchronous path, where no pool is
// involved and the garbage collector handles reclamation.
type heapBuffer []byte

func (h heapBuffer) Bytes() []byte { return h }
func (heapBuffer) Release()        {}

// startWorkers launches the concurrent fetch pipeline. A worker acquires
// a buffer before claiming a part, so every claimed part can always
// publish; since claims happen in index order, the part the reader is
// waiting for is always either published or actively being fetched,
// which is what makes the bounded reorder gate deadlock-free.
func (s *Stream) startWorkers(ctx context.Context) {
	workers := s.opts.Concurrency
	if workers > len(s.parts) {
		workers = len(s.parts)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return s.fetchLoop(ctx)
		})
	}
	go func() {
		s.workerErr = g.Wait()
		close(s.results)
	}()
}

func (s *Stream) fetchLoop(ctx context.Context) error {
	for {
		buf, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		p, ok := s.claim()
		if !ok {
			buf.Release()
			return nil
		}
		if err := s.fetchPart(ctx, p, buf); err != nil {
			buf.Release()
			return err
		}
	}
}

// claim hands out part indices in ascending order across all workers.
func (s *Stream) claim() (part, bool) {
	n := int(s.next.Add(1)) - 1
	if n >= len(s.parts) {
		return part{}, false
	}
	return s.parts[n], true
}

// fetchPart downloads one part into buf, retrying transient failures
// with exponential backoff. On success the chunk, and with it the
// buffer, is handed to the reorder gate.
func (s *Stream) fetchPart(ctx context.Context, p part, buf *pool.Buffer) error {
	dst := buf.Bytes()[:p.length]
	end := p.offset + p.length - 1

	var lastErr error
	for attempt := 1; attempt <= s.opts.Retries+1; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.attempts[p.index].Store(int32(attempt))

		if attempt > 1 {
			s.log.Debug("retrying part", "part", p.index, "attempt", attempt, "error", lastErr)
			if err := s.client.Backoff(ctx, attempt-1); err != nil {
				return err
			}
		}

		n, err := s.client.ReadRangeInto(ctx, s.url, p.offset, end, dst)
		if err == nil {
			c := chunk{index: p.index, offset: p.offset, length: n, buf: buf}
			select {
			case s.results <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !getmhttp.Retryable(err) {
			return &FetchError{Index: p.index, Attempts: attempt, Err: err}
		}
		lastErr = err
	}

	return &FetchError{Index: p.index, Attempts: s.opts.Retries + 1, Err: lastErr}
}

// fetchSequential is the fallback pipeline: one streaming request with
// parts sliced out of the body in order. Used when concurrency is
// disabled, when the server ignores range requests, and for objects
// that fit in a single chunk.
func (s *Stream) fetchSequential(ctx context.Context) {
	go func() {
		s.workerErr = s.streamBody(ctx)
		close(s.results)
	}()
}

func (s *Stream) streamBody(ctx context.Context) error {
	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FetchError{Index: 0, Attempts: 1, Err: err}
	}
	defer body.Close()

	for _, p := range s.parts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.attempts[p.index].Store(1)

		data := make([]byte, p.length)
		if _, err := io.ReadFull(body, data); err != nil {
			return &FetchError{Index: p.index, Attempts: 1, Err: err}
		}

		c := chunk{index: p.index, offset: p.offset, length: int(p.length), buf: heapBuffer(data)}
		select {
		case s.results <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
