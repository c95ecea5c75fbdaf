//go:build linux

package state

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapMirrored maps size bytes of anonymous shared memory twice,
// back-to-back, so the returned 2*size-byte slice wraps transparently at
// size. size must be a multiple of the page size.
func mapMirrored(size int) ([]byte, func(), error) {
	fd, err := unix.MemfdCreate("netbricks-ring", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, nil, err
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, nil, err
	}

	// Reserve a 2*size window, then pin both halves onto the same file.
	reserved, err := unix.Mmap(-1, 0, 2*size, unix.PROT_NONE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	base := unsafe.Pointer(&reserved[0])

	lo, err := unix.MmapPtr(fd, 0, base, uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
	if err != nil {
		unix.Munmap(reserved)
		return nil, nil, err
	}
	hi := unsafe.Pointer(uintptr(base) + uintptr(size))
	if _, err := unix.MmapPtr(fd, 0, hi, uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED); err != nil {
		_ = unix.MunmapPtr(base, uintptr(2*size))
		return nil, nil, err
	}

	buf := unsafe.Slice((*byte)(lo), 2*size)
	cleanup := func() {
		_ = unix.MunmapPtr(base, uintptr(2*size))
	}
	return buf, cleanup, nil
}
