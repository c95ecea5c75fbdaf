// Package batch implements the pipeline DSL: lazy, pull-based chains of
// typed operators over packet views. A pipeline is built by wrapping a
// receive source in operators and terminating with a send sink; each
// scheduler tick pulls one burst through the whole chain.
package batch

import (
	"errors"
	"fmt"

	"github.com/netsys-io/netbricks/mbuf"
)

// BurstSize is the number of frames moved per tick across any boundary.
const BurstSize = 32

// ErrEndOfBatch signals that the current burst is drained. The next tick
// starts with a fresh Receive.
var ErrEndOfBatch = errors.New("end of batch")

// Pkt is anything backed by an mbuf. Operators require it so a packet
// removed from the stream can still release its frame.
type Pkt interface {
	Mbuf() *mbuf.Mbuf
}

// PacketError removes one packet from the stream while keeping its mbuf
// reachable for the terminator to release.
type PacketError struct {
	M *mbuf.Mbuf
	// Dropped is true for intentional removals (filter, selector
	// overflow); false for aborts caused by Cause.
	Dropped bool
	Cause   error
}

func (e *PacketError) Error() string {
	if e.Dropped {
		return "packet dropped"
	}
	return fmt.Sprintf("packet aborted: %v", e.Cause)
}

func (e *PacketError) Unwrap() error { return e.Cause }

// Drop marks a packet as intentionally removed.
func Drop(m *mbuf.Mbuf) *PacketError { return &PacketError{M: m, Dropped: true} }

// Abort removes a packet because of an error.
func Abort(m *mbuf.Mbuf, cause error) *PacketError {
	return &PacketError{M: m, Cause: cause}
}

// Batch is a lazy stream of packets plus removals. Next returns an item,
// a *PacketError, or ErrEndOfBatch once the burst is drained. Receive
// propagates the tick to the source so it can pull the next burst.
type Batch[T Pkt] interface {
	Receive()
	Next() (T, error)
}

// releaseError frees the mbuf carried by a packet error. Terminators call
// this; intermediate operators just pass errors through.
func releaseError(err error) {
	var pe *PacketError
	if errors.As(err, &pe) && pe.M != nil {
		mbuf.FreeBulk([]*mbuf.Mbuf{pe.M})
	}
}
