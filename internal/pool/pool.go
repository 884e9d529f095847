// Package pool provides a bounded pool of reusable shared memory buffers.
//
// Buffers are fixed-size shm regions created lazily up to the pool's
// capacity and recycled for the lifetime of the pool. Ownership moves by
// message passing: Acquire transfers a buffer to the caller, Release
// returns it to the free set once its refcount drops to zero. Producers
// block in Acquire while the pool is exhausted, which is what bounds the
// memory of everything downstream.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/DataBiosphere/getm/internal/shm"
)

// ErrClosed is returned by Acquire after the pool has been closed.
var ErrClosed = errors.New("pool: pool is closed")

var sessionSeq atomic.Int64

// Options configures optional pool behavior.
type Options struct {
	// NamePrefix is prepended to region names. Defaults to a
	// process-unique "getm-<pid>-<session>" prefix.
	NamePrefix string

	// Logger receives debug events. Defaults to a discard logger.
	Logger *slog.Logger
}

// Pool hands out fixed-size shared memory buffers up to a configured
// capacity. All regions are unmapped and unlinked by Close.
type Pool struct {
	capacity   int
	bufferSize int64
	prefix     string
	log        *slog.Logger

	free chan *Buffer
	done chan struct{}

	mu      sync.Mutex
	created []*Buffer
	closed  bool
}

// Buffer is one pool-owned region. A buffer belongs to at most one owner
// between Acquire and the Release that drops its refcount to zero.
type Buffer struct {
	pool   *Pool
	region *shm.Region
	refs   atomic.Int32
}

// New creates a pool of capacity buffers of bufferSize bytes each. No
// regions are allocated until first Acquire.
func New(capacity int, bufferSize int64, opts Options) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("pool: capacity must be at least 1, got %d", capacity)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("pool: buffer size must be positive, got %d", bufferSize)
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = fmt.Sprintf("getm-%d-%d", os.Getpid(), sessionSeq.Add(1))
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		capacity:   capacity,
		bufferSize: bufferSize,
		prefix:     opts.NamePrefix,
		log:        opts.Logger,
		free:       make(chan *Buffer, capacity),
		done:       make(chan struct{}),
	}, nil
}

// Capacity returns the maximum number of buffers the pool will hold.
func (p *Pool) Capacity() int { return p.capacity }

// BufferSize returns the size in bytes of each buffer.
func (p *Pool) BufferSize() int64 { return p.bufferSize }

// Allocated returns how many regions have been created so far.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

// Acquire returns a free buffer, creating one if the pool is below
// capacity, or blocks until a buffer is released. It unblocks with the
// context error on cancellation and with ErrClosed once the pool closes.
// The returned buffer has refcount 1.
func (p *Pool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		b.refs.Store(1)
		return b, nil
	default:
	}

	if b, err := p.grow(); err != nil {
		return nil, err
	} else if b != nil {
		b.refs.Store(1)
		return b, nil
	}

	select {
	case b := <-p.free:
		b.refs.Store(1)
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// grow creates a new region if the pool is below capacity. Returns
// (nil, nil) at capacity.
func (p *Pool) grow() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if len(p.created) >= p.capacity {
		return nil, nil
	}

	name := fmt.Sprintf("%s-%d", p.prefix, len(p.created))
	region, err := shm.Create(name, p.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("pool: allocate buffer: %w", err)
	}
	b := &Buffer{pool: p, region: region}
	p.created = append(p.created, b)
	p.log.Debug("allocated buffer", "name", name, "size", p.bufferSize, "allocated", len(p.created))
	return b, nil
}

// Close unmaps and unlinks every region and unblocks pending acquirers
// with ErrClosed. No buffer may be in use when Close is called. Close is
// idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	created := p.created
	p.mu.Unlock()

	close(p.done)

	var firstErr error
	for _, b := range created {
		if err := b.region.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := shm.Unlink(b.region.Name()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.log.Debug("pool closed", "released", len(created))
	return firstErr
}

// Bytes returns the buffer's full backing memory. The slice is only valid
// while the caller holds a reference.
func (b *Buffer) Bytes() []byte { return b.region.Bytes() }

// Name returns the underlying region name, openable by other processes.
func (b *Buffer) Name() string { return b.region.Name() }

// Retain adds a reference. Each reference must be matched by a Release
// before the buffer returns to the free set.
func (b *Buffer) Retain() {
	b.refs.Add(1)
}

// Release drops one reference. At zero the buffer returns to the free set
// and wakes one blocked acquirer. Releasing an unowned buffer is logged
// and otherwise ignored. Safe to call on a nil buffer.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	for {
		cur := b.refs.Load()
		if cur <= 0 {
			b.pool.log.Warn("release of unowned buffer", "name", b.Name())
			return
		}
		if !b.refs.CompareAndSwap(cur, cur-1) {
			continue
		}
		if cur-1 > 0 {
			return
		}
		select {
		case b.pool.free <- b:
		case <-b.pool.done:
			// Pool closed; Close owns the region teardown.
		}
		return
	}
}
