package packets

import (
	"fmt"
	"reflect"
)

// Typed access to the mbuf metadata slot. The slot is type-erased at the
// mbuf; the writer's type is recorded so a reader asking for something
// else gets an error instead of a silently reinterpreted value.

// SetMetadata stores v in the packet's metadata slot.
func SetMetadata[M any](p Packet, v M) {
	p.Mbuf().SetMetadata(v)
}

// ReadMetadata returns the metadata value previously stored, failing when
// the slot is empty or was written with a different type.
func ReadMetadata[M any](p Packet) (M, error) {
	var zero M
	v, typ := p.Mbuf().Metadata()
	if typ == nil {
		return zero, fmt.Errorf("metadata slot is empty")
	}
	want := reflect.TypeOf(zero)
	if typ != want {
		return zero, fmt.Errorf("metadata type mismatch: slot holds %v, reader wants %v", typ, want)
	}
	return v.(M), nil
}
