package batch

import (
	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/port"
)

const (
	// txRetriesPerTick bounds how often one tick re-offers unsent frames.
	txRetriesPerTick = 3
	// txPendingCap bounds the backlog a stalled port can accumulate
	// before the oldest frames are released.
	txPendingCap = 4 * BurstSize
)

// SendBatch terminates a pipeline on a port queue. Each RunOnce pulls one
// burst through the chain, releases dropped and aborted frames, and
// burst-transmits the survivors. Unsent frames stay queued for the next
// tick up to a bound.
type SendBatch[T packets.Packet] struct {
	parent  Batch[T]
	tx      port.PacketTx
	pending []*mbuf.Mbuf
}

// Send terminates a pipeline.
func Send[T packets.Packet](parent Batch[T], tx port.PacketTx) *SendBatch[T] {
	return &SendBatch[T]{
		parent:  parent,
		tx:      tx,
		pending: make([]*mbuf.Mbuf, 0, txPendingCap),
	}
}

// RunOnce processes one burst: this is the unit of cooperative scheduling.
func (s *SendBatch[T]) RunOnce() {
	s.parent.Receive()
	for {
		item, err := s.parent.Next()
		if err == ErrEndOfBatch {
			break
		}
		if err != nil {
			releaseError(err)
			continue
		}
		s.pending = append(s.pending, item.Mbuf())
	}

	for try := 0; try < txRetriesPerTick && len(s.pending) > 0; try++ {
		n := s.tx.Send(s.pending)
		s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	}

	if excess := len(s.pending) - txPendingCap; excess > 0 {
		mbuf.FreeBulk(s.pending[:excess])
		s.pending = s.pending[:copy(s.pending, s.pending[excess:])]
	}
}

// Pending reports frames awaiting transmission.
func (s *SendBatch[T]) Pending() int { return len(s.pending) }

// Release frees any frames still queued; called on shutdown.
func (s *SendBatch[T]) Release() {
	mbuf.FreeBulk(s.pending)
	s.pending = s.pending[:0]
}
