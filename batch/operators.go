package batch

import (
	"github.com/netsys-io/netbricks/packets"
)

// MapBatch rewrites each packet to a new typed view. Parse operators are
// maps whose function is a header parse.
type MapBatch[T, U Pkt] struct {
	parent    Batch[T]
	f         func(T) (U, error)
	dropOnErr bool
}

// Map appends a typed rewrite. An error from f aborts the packet.
func Map[T, U Pkt](parent Batch[T], f func(T) (U, error)) *MapBatch[T, U] {
	return &MapBatch[T, U]{parent: parent, f: f}
}

// Parse appends a header parse. A parse failure drops the packet rather
// than aborting: malformed input is expected traffic, not a pipeline bug.
func Parse[T, U Pkt](parent Batch[T], f func(T) (U, error)) *MapBatch[T, U] {
	return &MapBatch[T, U]{parent: parent, f: f, dropOnErr: true}
}

func (b *MapBatch[T, U]) Receive() { b.parent.Receive() }

func (b *MapBatch[T, U]) Next() (U, error) {
	var zero U
	item, err := b.parent.Next()
	if err != nil {
		return zero, err
	}
	out, err := b.f(item)
	if err != nil {
		if b.dropOnErr {
			return zero, Drop(item.Mbuf())
		}
		return zero, Abort(item.Mbuf(), err)
	}
	return out, nil
}

// TransformBatch mutates packets in place and passes them through.
type TransformBatch[T Pkt] struct {
	parent Batch[T]
	f      func(T)
}

// Transform appends an in-place mutation.
func Transform[T Pkt](parent Batch[T], f func(T)) *TransformBatch[T] {
	return &TransformBatch[T]{parent: parent, f: f}
}

func (b *TransformBatch[T]) Receive() { b.parent.Receive() }

func (b *TransformBatch[T]) Next() (T, error) {
	item, err := b.parent.Next()
	if err != nil {
		return item, err
	}
	b.f(item)
	return item, nil
}

// FilterBatch drops packets failing a predicate.
type FilterBatch[T Pkt] struct {
	parent Batch[T]
	pred   func(T) bool
}

// Filter appends a predicate; packets for which it returns false are
// dropped.
func Filter[T Pkt](parent Batch[T], pred func(T) bool) *FilterBatch[T] {
	return &FilterBatch[T]{parent: parent, pred: pred}
}

func (b *FilterBatch[T]) Receive() { b.parent.Receive() }

func (b *FilterBatch[T]) Next() (T, error) {
	var zero T
	item, err := b.parent.Next()
	if err != nil {
		return zero, err
	}
	if !b.pred(item) {
		return zero, Drop(item.Mbuf())
	}
	return item, nil
}

// MetadataBatch computes a typed value from each packet and stores it in
// the mbuf's metadata slot for downstream stages.
type MetadataBatch[T packets.Packet, M any] struct {
	parent Batch[T]
	f      func(T) M
}

// Metadata appends a metadata writer. Downstream stages read the value
// with packets.ReadMetadata; a reader asking for a different type fails.
func Metadata[T packets.Packet, M any](parent Batch[T], f func(T) M) *MetadataBatch[T, M] {
	return &MetadataBatch[T, M]{parent: parent, f: f}
}

func (b *MetadataBatch[T, M]) Receive() { b.parent.Receive() }

func (b *MetadataBatch[T, M]) Next() (T, error) {
	item, err := b.parent.Next()
	if err != nil {
		return item, err
	}
	packets.SetMetadata(item, b.f(item))
	return item, nil
}
