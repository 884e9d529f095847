//go:build linux

package shm

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm/"

// Region is a named shared memory mapping. The zero value is not usable;
// obtain one from Create or Open.
type Region struct {
	name string
	fd   int
	data []byte
}

func regionPath(name string) string {
	return shmDir + name
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

	fd, err := unix.Open(regionPath(name), unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", name, err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		unix.Unlink(regionPath(name))
		return nil, fmt.Errorf("shm: size %s: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(regionPath(name))
		return nil, fmt.Errorf("shm: map %s: %w", name, err)
	}
	return &Region{name: name, fd: fd, data: data}, nil
}

// Open maps an existing named region created by Create, possibly in another
// process. The mapping covers the region's full size.
func Open(name string) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	fd, err := unix.Open(regionPath(name), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: stat %s: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: map %s: %w", name, err)
	}
	return &Region{name: name, fd: fd, data: data}, nil
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
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		unix.Close(r.fd)
		return fmt.Errorf("shm: unmap %s: %w", r.name, err)
	}
	if err := unix.Close(r.fd); err != nil {
		return fmt.Errorf("shm: close %s: %w", r.name, err)
	}
	return nil
}

// Unlink removes a region name. Existing mappings stay valid until closed.
// Unlinking a name that does not exist is not an error.
func Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := unix.Unlink(regionPath(name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("shm: unlink %s: %w", name, err)
	}
	return nil
}
