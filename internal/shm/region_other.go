//go:build !linux

package shm

import (
	"fmt"
	"io/fs"
	"math"
	"sync"
)

// Process-local fallback. Names resolve within this process only, which is
// enough for single-process sessions and for tests on platforms without a
// tmpfs-backed shared memory directory.
var (
	registryMu sync.Mutex
	registry   = make(map[string][]byte)
)

// Region is a named shared memory mapping. The zero value is not usable;
// obtain one from Create or Open.
type Region struct {
	name string
	data []byte
}

// Create allocates a new named region of the given size. The name must not
// already exist; stale names from a crashed session should be Unlinked first.
func Create(name string, size int64) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size <= 0 || size > math.MaxInt32 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return nil, fmt.Errorf("shm: create %s: %w", name, fs.ErrExist)
	}
	data := make([]byte, size)
	registry[name] = data
	return &Region{name: name, data: data}, nil
}

// Open maps an existing named region created by Create. On this platform
// the view shares memory only within the creating process.
func Open(name string) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	data, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("shm: open %s: %w", name, fs.ErrNotExist)
	}
	return &Region{name: name, data: data}, nil
}

// Name returns the region's name, usable with Open and Unlink.
func (r *Region) Name() string { return r.name }

// Bytes returns the mapped memory. The slice is invalid after Close.
func (r *Region) Bytes() []byte { return r.data }

// Size returns the region size in bytes.
func (r *Region) Size() int64 { return int64(len(r.data)) }

// Close unmaps the region. The name remains valid for Open until Unlinked.
// Close is idempotent.
func (r *Region) Close() error {
	r.data = nil
	return nil
}

// Unlink removes a region name. Existing mappings stay valid until closed.
// Unlinking a name that does not exist is not an error.
func Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
	return nil
}
