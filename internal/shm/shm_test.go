package shm

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"
)

func testName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("getm-test-%d-%d", os.Getpid(), time.Now().UnixNano())
	t.Cleanup(func() { Unlink(name) })
	return name
}

func TestCreateOpenRoundTrip(t *testing.T) {
	name := testName(t)

	region, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Close()

	if region.Name() != name {
		t.Errorf("expected name %q, got %q", name, region.Name())
	}
	if region.Size() != 4096 {
		t.Errorf("expected size 4096, got %d", region.Size())
	}

	payload := []byte("range request payload")
	copy(region.Bytes(), payload)

	// A second view by name must observe the same bytes.
	view, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer view.Close()

	if !bytes.Equal(view.Bytes()[:len(payload)], payload) {
		t.Fatalf("view bytes mismatch: got %q", view.Bytes()[:len(payload)])
	}

	// Writes through the view are visible in the original mapping.
	view.Bytes()[0] = 'R'
	if region.Bytes()[0] != 'R' {
		t.Error("write through view not visible in original mapping")
	}

	if err := Unlink(name); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
}

func TestCreateDuplicateName(t *testing.T) {
	name := testName(t)

	region, err := Create(name, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Close()

	_, err = Create(name, 1024)
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected fs.ErrExist for duplicate name, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(testName(t))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "a/b", "nul\x00byte"} {
		if _, err := Create(name, 1024); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Create(%q): expected ErrInvalidName, got %v", name, err)
		}
		if _, err := Open(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Open(%q): expected ErrInvalidName, got %v", name, err)
		}
		if err := Unlink(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Unlink(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestInvalidSize(t *testing.T) {
	for _, size := range []int64{0, -1} {
		if _, err := Create(testName(t), size); err == nil {
			t.Errorf("Create with size %d: expected error", size)
		}
	}
}

func TestUnlinkMissing(t *testing.T) {
	if err := Unlink(testName(t)); err != nil {
		t.Errorf("Unlink of missing name: expected nil, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	region, err := Create(testName(t), 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := region.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := region.Close(); err != nil {
		t.Errorf("second Close: expected nil, got %v", err)
	}
}

func TestCloseLeavesNameOpenable(t *testing.T) {
	name := testName(t)

	region, err := Create(name, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	region.Bytes()[0] = 'x'
	if err := region.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	view, err := Open(name)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	defer view.Close()

	if view.Bytes()[0] != 'x' {
		t.Error("data lost after creator closed its mapping")
	}
}
