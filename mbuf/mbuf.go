// Package mbuf provides the message buffer abstraction: a fixed-capacity,
// contiguous frame with head/tail headroom, bulk-allocated from a pool.
// All packet data in the pipeline lives in mbufs; the rest of the system
// only ever moves mbuf pointers around.
package mbuf

import "reflect"

const (
	// DefaultFrameSize is the full capacity of a frame, matching the
	// AF_XDP UMEM frame size used by the XDP backend.
	DefaultFrameSize = 2048

	// DefaultHeadroom is reserved in front of the data so headers can be
	// pushed without shifting the whole payload.
	DefaultHeadroom = 128

	// MetadataSlots is not used to size anything: an mbuf reserves no
	// metadata bytes and holds a single type-tagged metadata value.
	MetadataSlots = 8
)

// Mbuf is a single frame. The data region is buf[off : off+length]; bytes
// before off are headroom, bytes after are tailroom.
type Mbuf struct {
	buf    []byte
	off    int
	length int

	// User metadata slot. The value is type-tagged so a reader asking for
	// a different type than the writer stored fails instead of aliasing.
	meta     any
	metaType reflect.Type

	pool *Pool
}

// New returns a standalone mbuf not owned by any pool. Tests and the
// virtual port use this; the data path allocates through a Pool.
func New() *Mbuf {
	return newWithSize(DefaultFrameSize)
}

func newWithSize(frameSize int) *Mbuf {
	return &Mbuf{
		buf: make([]byte, frameSize),
		off: DefaultHeadroom,
	}
}

// FromBytes returns a standalone mbuf whose data region is a copy of data.
func FromBytes(data []byte) *Mbuf {
	m := New()
	if len(data) > len(m.buf)-m.off {
		m = &Mbuf{buf: make([]byte, len(data)+DefaultHeadroom), off: DefaultHeadroom}
	}
	copy(m.buf[m.off:], data)
	m.length = len(data)
	return m
}

// DataLen reports the current length of the data region.
func (m *Mbuf) DataLen() int { return m.length }

// Data returns the whole data region as a slice.
func (m *Mbuf) Data() []byte { return m.buf[m.off : m.off+m.length] }

// DataAddr returns the data region starting at offset. offset must be
// within [0, DataLen]; callers are expected to have bounds-checked.
func (m *Mbuf) DataAddr(offset int) []byte {
	return m.buf[m.off+offset : m.off+m.length]
}

// Tailroom reports how many bytes the data region can still grow at the end.
func (m *Mbuf) Tailroom() int { return len(m.buf) - m.off - m.length }

// Headroom reports how many bytes the data region can still grow at the front.
func (m *Mbuf) Headroom() int { return m.off }

// AddDataEnd grows the data region by n bytes at the end. Returns the new
// length, or 0 if there is not enough tailroom.
func (m *Mbuf) AddDataEnd(n int) int {
	if n > m.Tailroom() {
		return 0
	}
	m.length += n
	return m.length
}

// RemoveDataEnd shrinks the data region by n bytes at the end. Returns the
// new length, or 0 if n exceeds the current length.
func (m *Mbuf) RemoveDataEnd(n int) int {
	if n > m.length {
		return 0
	}
	m.length -= n
	return m.length
}

// AddDataBeginning grows the data region by n bytes at the front, consuming
// headroom. Returns the new length, or 0 if there is not enough headroom.
func (m *Mbuf) AddDataBeginning(n int) int {
	if n > m.off {
		return 0
	}
	m.off -= n
	m.length += n
	return m.length
}

// RemoveDataBeginning shrinks the data region by n bytes at the front.
// Returns the new length, or 0 if n exceeds the current length.
func (m *Mbuf) RemoveDataBeginning(n int) int {
	if n > m.length {
		return 0
	}
	m.off += n
	m.length -= n
	return m.length
}

// SetMetadata stores v in the mbuf's metadata slot, recording its dynamic
// type. A later ReadMetadata with a different type fails.
func (m *Mbuf) SetMetadata(v any) {
	m.meta = v
	m.metaType = reflect.TypeOf(v)
}

// ClearMetadata empties the metadata slot.
func (m *Mbuf) ClearMetadata() {
	m.meta = nil
	m.metaType = nil
}

// Metadata returns the raw metadata value and the writer's type tag.
func (m *Mbuf) Metadata() (any, reflect.Type) { return m.meta, m.metaType }

// reset prepares the mbuf for reuse by the pool.
func (m *Mbuf) reset(length int) {
	m.off = DefaultHeadroom
	m.length = length
	m.meta = nil
	m.metaType = nil
}
