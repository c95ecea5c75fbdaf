package queue

import (
	"sync/atomic"

	"github.com/netsys-io/netbricks/mbuf"
)

// Spsc is a single-producer single-consumer lock-free ring of mbuf
// pointers. One goroutine may enqueue, one may dequeue; neither blocks
// or retries.
type Spsc struct {
	slots []atomic.Pointer[mbuf.Mbuf]
	mask  uint64

	prodHead atomic.Uint64
	_        cacheLinePad
	prodTail atomic.Uint64
	_        cacheLinePad
	consHead atomic.Uint64
	_        cacheLinePad
	consTail atomic.Uint64
}

// NewSpsc creates a ring with at least size slots, rounded up to a power
// of two.
func NewSpsc(size int) *Spsc {
	size = RoundUpPowerOfTwo(size)
	return &Spsc{
		slots: make([]atomic.Pointer[mbuf.Mbuf], size),
		mask:  uint64(size - 1),
	}
}

// EnqueueOne inserts a single mbuf, reporting whether there was room.
func (q *Spsc) EnqueueOne(m *mbuf.Mbuf) bool {
	head := q.prodHead.Load()
	consTail := q.consTail.Load()
	if q.mask+consTail-head == 0 {
		return false
	}
	q.prodHead.Store(head + 1)
	q.slots[head&q.mask].Store(m)
	q.prodTail.Store(head + 1)
	return true
}

// Enqueue inserts as many mbufs as fit, returning the count inserted.
func (q *Spsc) Enqueue(ms []*mbuf.Mbuf) int {
	head := q.prodHead.Load()
	consTail := q.consTail.Load()
	free := q.mask + consTail - head
	n := min(int(free), len(ms))
	if n == 0 {
		return 0
	}
	q.prodHead.Store(head + uint64(n))
	for i := 0; i < n; i++ {
		q.slots[(head+uint64(i))&q.mask].Store(ms[i])
	}
	q.prodTail.Store(head + uint64(n))
	return n
}

// DequeueOne removes a single mbuf, or returns nil when empty.
func (q *Spsc) DequeueOne() *mbuf.Mbuf {
	head := q.consHead.Load()
	prodTail := q.prodTail.Load()
	if prodTail-head == 0 {
		return nil
	}
	q.consHead.Store(head + 1)
	m := q.slots[head&q.mask].Load()
	q.consTail.Store(head + 1)
	return m
}

// Dequeue fills ms with available mbufs, returning the count removed.
func (q *Spsc) Dequeue(ms []*mbuf.Mbuf) int {
	head := q.consHead.Load()
	prodTail := q.prodTail.Load()
	n := min(int(prodTail-head), len(ms))
	if n == 0 {
		return 0
	}
	q.consHead.Store(head + uint64(n))
	for i := 0; i < n; i++ {
		ms[i] = q.slots[(head+uint64(i))&q.mask].Load()
	}
	q.consTail.Store(head + uint64(n))
	return n
}

// Available reports how many entries are currently queued.
func (q *Spsc) Available() int {
	return int(q.prodTail.Load() - q.consTail.Load())
}
