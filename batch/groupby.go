package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netsys-io/netbricks/packets"
)

// overflowDrops counts packets whose selector returned an index outside
// [0, groups). They are dropped, but never silently.
var overflowDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "netbricks_groupby_overflow_drops_total",
	Help: "Packets dropped because the group-by selector returned an out-of-range group.",
})

// GroupByBatch splits one stream into n sub-streams by a selector and
// merges the composed sub-pipelines back into one type-erased stream.
// Each sub-stream is an ordered single-threaded queue, so packets within
// a group keep their arrival order.
type GroupByBatch[T packets.Packet] struct {
	parent   Batch[T]
	groups   int
	selector func(T) int
	queues   []*QueueBatch[T]
	merged   Batch[packets.Packet]
}

// GroupBy partitions the parent stream. The composer receives the map of
// per-group queues and returns the sub-pipelines to merge; it runs once,
// at construction.
func GroupBy[T packets.Packet](
	parent Batch[T],
	groups int,
	selector func(T) int,
	composer func(map[int]*QueueBatch[T]) []Batch[packets.Packet],
) *GroupByBatch[T] {
	queues := make([]*QueueBatch[T], groups)
	byIndex := make(map[int]*QueueBatch[T], groups)
	for i := range queues {
		queues[i] = NewQueueBatch[T](BurstSize * 2)
		byIndex[i] = queues[i]
	}
	children := composer(byIndex)
	return &GroupByBatch[T]{
		parent:   parent,
		groups:   groups,
		selector: selector,
		queues:   queues,
		merged:   Merge(children...),
	}
}

func (b *GroupByBatch[T]) Receive() { b.parent.Receive() }

func (b *GroupByBatch[T]) Next() (packets.Packet, error) {
	for {
		// drain the sub-pipelines first
		item, err := b.merged.Next()
		if err != ErrEndOfBatch {
			return item, err
		}

		// feed one more packet into its group
		in, err := b.parent.Next()
		if err == ErrEndOfBatch {
			return nil, ErrEndOfBatch
		}
		if err != nil {
			return nil, err
		}
		g := b.selector(in)
		if g < 0 || g >= b.groups {
			overflowDrops.Inc()
			return nil, Drop(in.Mbuf())
		}
		if !b.queues[g].Enqueue(in) {
			// sub-stream backlogged beyond its bound
			return nil, Drop(in.Mbuf())
		}
	}
}
