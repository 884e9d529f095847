// Package shm manages named shared memory regions.
//
// A Region is a fixed-size byte range backed by a named object that other
// processes can map by name. Regions live only as long as the process that
// created them intends: callers must Unlink the name when done, or the
// backing object outlives the session.
//
// # Usage
//
//	region, err := shm.Create("getm-1234-0", 1<<20)
//	defer region.Close()
//	defer shm.Unlink(region.Name())
//
//	copy(region.Bytes(), payload)
//
//	// Elsewhere, by name:
//	view, err := shm.Open("getm-1234-0")
//	defer view.Close()
//
// On Linux regions are files under /dev/shm mapped with MAP_SHARED, so a
// name opened by two processes refers to the same physical pages. Other
// platforms fall back to process-local memory with the same API; Open then
// shares pages only within the process.
package shm
