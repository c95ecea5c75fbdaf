package queue

import (
	"runtime"
	"sync/atomic"

	"github.com/netsys-io/netbricks/mbuf"
)

// Mpsc is a multi-producer single-consumer lock-free ring of mbuf
// pointers. Producers reserve a range with a CAS on the head, write their
// slots, then publish by advancing the tail in reservation order. A
// dequeue observes messages in publication order; within one producer,
// FIFO.
type Mpsc struct {
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

// NewMpsc creates a ring with at least size slots, rounded up to a power
// of two.
func NewMpsc(size int) *Mpsc {
	size = RoundUpPowerOfTwo(size)
	return &Mpsc{
		slots: make([]atomic.Pointer[mbuf.Mbuf], size),
		mask:  uint64(size - 1),
	}
}

// Enqueue inserts as many mbufs as fit, returning the count inserted.
// Safe for concurrent producers.
func (q *Mpsc) Enqueue(ms []*mbuf.Mbuf) int {
	var head uint64
	var insert int
	for {
		head = q.prodHead.Load()
		consTail := q.consTail.Load()
		free := q.mask + consTail - head
		insert = min(int(free), len(ms))
		if insert == 0 {
			return 0
		}
		if q.prodHead.CompareAndSwap(head, head+uint64(insert)) {
			break
		}
	}

	for i := 0; i < insert; i++ {
		q.slots[(head+uint64(i))&q.mask].Store(ms[i])
	}

	// Publish in reservation order: wait for earlier producers to land
	// before advancing the tail past our range.
	for q.prodTail.Load() != head {
		runtime.Gosched()
	}
	q.prodTail.Store(head + uint64(insert))
	return insert
}

// EnqueueOne inserts a single mbuf, reporting whether there was room.
func (q *Mpsc) EnqueueOne(m *mbuf.Mbuf) bool {
	one := [1]*mbuf.Mbuf{m}
	return q.Enqueue(one[:]) == 1
}

// EnqueueSP is the single-producer fast path: no CAS, no publication
// spin. Only valid when the caller is the sole producer.
func (q *Mpsc) EnqueueSP(ms []*mbuf.Mbuf) int {
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

// Dequeue fills ms with available mbufs, returning the count removed.
// Single consumer only.
func (q *Mpsc) Dequeue(ms []*mbuf.Mbuf) int {
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
func (q *Mpsc) Available() int {
	return int(q.prodTail.Load() - q.consTail.Load())
}
