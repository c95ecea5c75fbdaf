package batch

// MergeBatch combines several batches into one stream by round-robin:
// after each delivered packet the cursor moves to the next child, so no
// child starves while another has traffic.
type MergeBatch[T Pkt] struct {
	children []Batch[T]
	cursor   int
}

// Merge combines child batches. The order is advisory round-robin, fair
// on average; it is not a FIFO across children.
func Merge[T Pkt](children ...Batch[T]) *MergeBatch[T] {
	return &MergeBatch[T]{children: children}
}

func (b *MergeBatch[T]) Receive() {
	for _, c := range b.children {
		c.Receive()
	}
}

func (b *MergeBatch[T]) Next() (T, error) {
	var zero T
	for tried := 0; tried < len(b.children); tried++ {
		child := b.children[b.cursor]
		item, err := child.Next()
		if err == ErrEndOfBatch {
			b.cursor = (b.cursor + 1) % len(b.children)
			continue
		}
		b.cursor = (b.cursor + 1) % len(b.children)
		return item, err
	}
	return zero, ErrEndOfBatch
}
