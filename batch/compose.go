package batch

import (
	"github.com/netsys-io/netbricks/packets"
)

// CompositionBatch erases the static item type of a pipeline down to the
// Packet interface. Used at pipeline boundaries: merging heterogeneous
// branches and storing pipelines in collections. The indirection costs an
// interface call per packet.
type CompositionBatch struct {
	receive func()
	next    func() (packets.Packet, error)
}

// Compose type-erases a batch.
func Compose[T packets.Packet](b Batch[T]) *CompositionBatch {
	return &CompositionBatch{
		receive: b.Receive,
		next: func() (packets.Packet, error) {
			item, err := b.Next()
			if err != nil {
				return nil, err
			}
			return item, nil
		},
	}
}

func (c *CompositionBatch) Receive()                       { c.receive() }
func (c *CompositionBatch) Next() (packets.Packet, error) { return c.next() }
