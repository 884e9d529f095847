package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	p, err := New(2, 4096, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ctx := context.Background()

	if p.Allocated() != 0 {
		t.Fatalf("expected no buffers before first Acquire, got %d", p.Allocated())
	}

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if p.Allocated() != 2 {
		t.Errorf("expected 2 allocated buffers, got %d", p.Allocated())
	}
	if len(a.Bytes()) != 4096 || len(b.Bytes()) != 4096 {
		t.Errorf("expected 4096-byte buffers, got %d and %d", len(a.Bytes()), len(b.Bytes()))
	}
	if a.Name() == b.Name() {
		t.Errorf("buffers share a region name: %s", a.Name())
	}

	a.Release()

	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	if c.Name() != a.Name() {
		t.Errorf("expected recycled buffer %s, got %s", a.Name(), c.Name())
	}
	if p.Allocated() != 2 {
		t.Errorf("recycling must not allocate, got %d", p.Allocated())
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p, err := New(1, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ctx := context.Background()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan *Buffer, 1)
	go func() {
		b, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire: %v", err)
		}
		acquired <- b
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	held.Release()

	select {
	case b := <-acquired:
		if b.Name() != held.Name() {
			t.Errorf("expected woken acquirer to get released buffer")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire still blocked after Release")
	}
}

func TestAcquireCancelled(t *testing.T) {
	p, err := New(1, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not unblock on cancellation")
	}
}

func TestCloseUnblocksAcquire(t *testing.T) {
	p, err := New(1, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not unblock on Close")
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close: expected ErrClosed, got %v", err)
	}
}

func TestRefcount(t *testing.T) {
	p, err := New(1, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	b.Retain()
	b.Release()

	// One reference remains, so the pool must still be exhausted.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected exhausted pool while a reference is held, got %v", err)
	}

	b.Release()

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after final Release: %v", err)
	}
	if c.Name() != b.Name() {
		t.Errorf("expected recycled buffer after final Release")
	}
}

func TestDoubleReleaseIgnored(t *testing.T) {
	p, err := New(2, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b.Release()
	b.Release()

	// The double release must not have put the buffer on the free list
	// twice: acquiring capacity+1 buffers must still block.
	ctx := context.Background()
	if _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected pool exhausted after double release, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	p, err := New(1, 1024, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: expected nil, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(0, 1024, Options{}); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New(1, 0, Options{}); err == nil {
		t.Error("expected error for zero buffer size")
	}
}
