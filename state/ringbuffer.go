package state

import (
	"fmt"
	"math/bits"
)

const pageSize = 4096

// RoundToPowerOf2 returns the smallest power of two >= n (0 stays 0).
func RoundToPowerOf2(n int) int {
	if n <= 1 {
		return n
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n-1))
}

// RoundToPages rounds n bytes up to a whole number of 4 KiB pages.
func RoundToPages(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// RingBuffer is a byte ring for ordered data. When the capacity is at
// least a page, the backing pages are mapped twice back-to-back so any
// in-window slice is physically contiguous even when it wraps; smaller
// rings fall back to a copying implementation with identical behavior.
//
// Head is where the consumer reads, tail where the producer writes; both
// grow monotonically with wrapping arithmetic. The ring holds at most
// size-1 bytes.
type RingBuffer struct {
	head uint64
	tail uint64
	size int
	mask uint64

	// mirrored: buf is 2*size bytes of virtual space over size bytes of
	// storage. copying: buf is size bytes and accesses wrap manually.
	buf      []byte
	mirrored bool
	cleanup  func()
}

// NewRingBuffer creates a ring of size bytes, which must be a power of
// two.
func NewRingBuffer(size int) (*RingBuffer, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("invalid ring size %d: must be a power of 2", size)
	}
	r := &RingBuffer{size: size, mask: uint64(size - 1)}
	if size >= pageSize {
		if buf, cleanup, err := mapMirrored(size); err == nil {
			r.buf = buf
			r.mirrored = true
			r.cleanup = cleanup
			return r, nil
		}
	}
	r.buf = make([]byte, size)
	return r, nil
}

// Close releases the mirrored mapping, if any.
func (r *RingBuffer) Close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// Len is the ring capacity in bytes.
func (r *RingBuffer) Len() int { return r.size }

// Available reports bytes ready to be read.
func (r *RingBuffer) Available() int { return int(r.tail - r.head) }

func (r *RingBuffer) free() int { return int(r.mask + r.head - r.tail) }

// writeAt copies data into the ring at a masked offset.
func (r *RingBuffer) writeAt(offset int, data []byte) int {
	if r.mirrored {
		return copy(r.buf[offset:offset+len(data)], data)
	}
	n := copy(r.buf[offset:], data)
	if n < len(data) {
		n += copy(r.buf, data[n:])
	}
	return n
}

// readAt copies out of the ring at a masked offset.
func (r *RingBuffer) readAt(offset int, data []byte) int {
	if r.mirrored {
		return copy(data, r.buf[offset:offset+len(data)])
	}
	n := copy(data, r.buf[offset:])
	if n < len(data) {
		n += copy(data[n:], r.buf)
	}
	return n
}

// WriteAtOffset writes at an absolute ring offset. Not for use together
// with WriteAtTail/ReadFromHead.
func (r *RingBuffer) WriteAtOffset(offset int, data []byte) int {
	return r.writeAt(offset&int(r.mask), data)
}

// ReadFromOffset reads at an absolute ring offset. Not for use together
// with WriteAtTail/ReadFromHead.
func (r *RingBuffer) ReadFromOffset(offset int, data []byte) int {
	return r.readAt(offset&int(r.mask), data)
}

// WriteAtTail appends data, clamped to free space, and advances the tail.
func (r *RingBuffer) WriteAtTail(data []byte) int {
	write := min(len(data), r.free())
	offset := int(r.tail & r.mask)
	r.SeekTail(write)
	return r.writeAt(offset, data[:write])
}

// WriteAtOffsetFromTail writes at a gap beyond the tail without moving
// it; the caller advances the tail with SeekTail once the gap fills.
func (r *RingBuffer) WriteAtOffsetFromTail(offset int, data []byte) int {
	free := r.free()
	if free < offset {
		return 0
	}
	offsetTail := r.tail + uint64(offset)
	availableAtOffset := int(r.mask + r.head - offsetTail)
	write := min(len(data), availableAtOffset)
	return r.writeAt(int(offsetTail&r.mask), data[:write])
}

// ReadFromHeadWithIncrement copies available bytes into data and advances
// the head by at most increment.
func (r *RingBuffer) ReadFromHeadWithIncrement(data []byte, increment int) int {
	offset := int(r.head & r.mask)
	toRead := min(r.Available(), len(data))
	r.head += uint64(min(increment, toRead))
	return r.readAt(offset, data[:toRead])
}

// ReadFromHead copies available bytes into data, advancing the head.
func (r *RingBuffer) ReadFromHead(data []byte) int {
	return r.ReadFromHeadWithIncrement(data, len(data))
}

// SeekHead advances the read position without copying, clamped to the
// available bytes.
func (r *RingBuffer) SeekHead(n int) {
	r.head += uint64(min(n, r.Available()))
}

// SeekTail advances the write position without writing; used when gap
// writes become contiguous.
func (r *RingBuffer) SeekTail(n int) {
	r.tail += uint64(n)
}

// Clear forgets all content.
func (r *RingBuffer) Clear() {
	r.head = 0
	r.tail = 0
}
