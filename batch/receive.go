package batch

import (
	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/port"
)

// ReceiveBatch is the root of a pipeline: each tick it pulls one burst
// from a port queue; Next drains the burst as raw packet views.
type ReceiveBatch struct {
	rx  port.PacketRx
	buf [BurstSize]*mbuf.Mbuf
	n   int
	i   int
}

// Receive creates a pipeline source over a port queue.
func Receive(rx port.PacketRx) *ReceiveBatch {
	return &ReceiveBatch{rx: rx}
}

// Receive pulls the next burst once the previous one is drained.
func (b *ReceiveBatch) Receive() {
	if b.i < b.n {
		return
	}
	b.n = b.rx.Recv(b.buf[:])
	b.i = 0
}

func (b *ReceiveBatch) Next() (*packets.Raw, error) {
	if b.i >= b.n {
		return nil, ErrEndOfBatch
	}
	m := b.buf[b.i]
	b.i++
	return packets.NewRaw(m), nil
}

// Dequeuer is the consumer side of an inter-core queue.
type Dequeuer interface {
	Dequeue(ms []*mbuf.Mbuf) int
}

// QueueSource roots a pipeline on an inter-core SPSC or MPSC ring
// instead of a port.
type QueueSource struct {
	q   Dequeuer
	buf [BurstSize]*mbuf.Mbuf
	n   int
	i   int
}

// ReceiveQueue creates a pipeline source over an inter-core queue.
func ReceiveQueue(q Dequeuer) *QueueSource {
	return &QueueSource{q: q}
}

func (b *QueueSource) Receive() {
	if b.i < b.n {
		return
	}
	b.n = b.q.Dequeue(b.buf[:])
	b.i = 0
}

func (b *QueueSource) Next() (*packets.Raw, error) {
	if b.i >= b.n {
		return nil, ErrEndOfBatch
	}
	m := b.buf[b.i]
	b.i++
	return packets.NewRaw(m), nil
}
