package batch

import (
	"github.com/netsys-io/netbricks/queue"
)

// QueueBatch is a batch fed by explicit enqueues on a single-threaded
// queue. Group-by uses one per sub-stream; tests use it to push packets
// through a pipeline under full control.
type QueueBatch[T Pkt] struct {
	q *queue.SingleThreaded[T]
}

// NewQueueBatch creates a queue-fed batch holding up to capacity packets,
// rounded up to a power of two.
func NewQueueBatch[T Pkt](capacity int) *QueueBatch[T] {
	return &QueueBatch[T]{q: queue.NewSingleThreaded[T](capacity)}
}

// Enqueue inserts a packet, reporting whether there was room.
func (b *QueueBatch[T]) Enqueue(item T) bool { return b.q.Enqueue(item) }

// Len reports the queued packet count.
func (b *QueueBatch[T]) Len() int { return b.q.Len() }

func (b *QueueBatch[T]) Receive() {}

func (b *QueueBatch[T]) Next() (T, error) {
	item, ok := b.q.Dequeue()
	if !ok {
		var zero T
		return zero, ErrEndOfBatch
	}
	return item, nil
}
