package getm

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
)

// Chunk is one delivered part. Data aliases a recycled buffer: it is
// valid until the next call to Next, an explicit Release, or Close,
// whichever comes first.
type Chunk struct {
	Index  int
	Offset int64
	Data   []byte

	ref *chunkRef
}

// Release returns the chunk's buffer to the pool immediately instead of
// waiting for the next call to Next. Safe to call more than once; Data
// must not be used afterwards.
func (c Chunk) Release() { c.ref.release() }

// chunkRef shares buffer ownership between the iterator's auto-release
// and an explicit Chunk.Release, so the buffer returns exactly once.
type chunkRef struct {
	buf      owned
	released atomic.Bool
}

func (r *chunkRef) release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.buf.Release()
}

// Chunks is a finite, one-shot iterator over the stream's remaining
// parts. It cannot be restarted.
type Chunks struct {
	s *Stream
}

// Chunks returns an iterator over the stream's parts, avoiding the copy
// that Read performs. The iterator takes over consumption; do not mix
// it with Read afterwards. In ordered mode parts arrive in ascending
// offset order; with WithUnordered they arrive as completed, each
// tagged with its offset.
func (s *Stream) Chunks() *Chunks {
	return &Chunks{s: s}
}

// Iterate opens url the way Open does and returns the stream's chunk
// iterator directly. Closing the iterator closes the stream behind it.
func Iterate(ctx context.Context, url string, options ...Option) (*Chunks, error) {
	s, err := Open(ctx, url, options...)
	if err != nil {
		return nil, err
	}
	return s.Chunks(), nil
}

// Next returns the next part, recycling the previous one. It returns
// io.EOF after the final part (in ordered mode, only once the integrity
// check passed), ErrClosed after Close, and ctx's error if ctx ends
// first; a ctx error does not poison the iterator.
func (c *Chunks) Next(ctx context.Context) (Chunk, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Chunk{}, ErrClosed
	}
	s.iterPrev.release()
	s.iterPrev = nil
	if s.finalErr != nil {
		return Chunk{}, s.finalErr
	}

	// Read may have consumed part of the current chunk; hand over the
	// remainder so no bytes are lost switching to iteration.
	if s.haveCur {
		ck, off := s.cur, s.curOff
		s.haveCur = false
		ref := &chunkRef{buf: ck.buf}
		s.iterPrev = ref
		s.bytesRead.Add(int64(ck.length - off))
		return Chunk{
			Index:  ck.index,
			Offset: ck.offset + int64(off),
			Data:   ck.buf.Bytes()[off:ck.length],
			ref:    ref,
		}, nil
	}

	var (
		ck  chunk
		err error
	)
	if s.opts.Unordered {
		ck, err = s.nextUnordered(ctx)
	} else {
		ck, err = s.nextOrdered(ctx)
	}
	if err != nil {
		// The caller's context expiring is a property of the call, not
		// of the stream.
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return Chunk{}, err
		}
		s.finalErr = err
		return Chunk{}, err
	}

	ref := &chunkRef{buf: ck.buf}
	s.iterPrev = ref
	s.bytesRead.Add(int64(ck.length))
	return Chunk{
		Index:  ck.index,
		Offset: ck.offset,
		Data:   ck.buf.Bytes()[:ck.length],
		ref:    ref,
	}, nil
}

// All adapts the iterator to a range-over-func loop, releasing each
// chunk after its loop body returns. The sequence ends silently at
// io.EOF; any other failure is yielded once as a zero Chunk with the
// error.
func (c *Chunks) All(ctx context.Context) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			ck, err := c.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			more := yield(ck, nil)
			ck.Release()
			if !more {
				return
			}
		}
	}
}

// Collect reads the iterator to completion, calling fn for each part.
// It stops at the first error; io.EOF is reported as nil.
func (c *Chunks) Collect(ctx context.Context, fn func(Chunk) error) error {
	for {
		ck, err := c.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ck); err != nil {
			return err
		}
	}
}

// Close closes the underlying stream, releasing any chunk still held.
func (c *Chunks) Close() error { return c.s.Close() }
