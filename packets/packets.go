// Package packets implements zero-copy typed views over mbufs: one view
// per protocol layer, linked to the view that produced it. Parsing and
// pushing move down the header stack, deparse and remove move back up;
// no bytes are copied at any step.
package packets

import (
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

// ParseError reports a malformed or truncated header. Packets failing to
// parse are dropped on the batch, never fatal.
type ParseError struct {
	Msg string
}

func (e ParseError) Error() string { return e.Msg }

// ProtocolNumber is an IP next-protocol / next-header value.
type ProtocolNumber uint8

// Assigned protocol numbers used by the framework.
const (
	ProtoTCP     ProtocolNumber = 6
	ProtoUDP     ProtocolNumber = 17
	ProtoRouting ProtocolNumber = 43
	ProtoICMPv6  ProtocolNumber = 58
)

// Packet is one typed view into an mbuf. A view exclusively owns its mbuf
// while it exists; parse and push hand ownership to the inner view,
// deparse and remove hand it back out.
type Packet interface {
	// Mbuf returns the underlying frame.
	Mbuf() *mbuf.Mbuf
	// Offset is where this view's header starts in the frame.
	Offset() int
	// HeaderLen is the length of this view's header, including any
	// variable part (IPv4 options, SRH segments).
	HeaderLen() int
	// PayloadOffset is where this view's payload starts in the frame.
	PayloadOffset() int
	// Len is the number of bytes from this view's offset to the end of
	// the frame.
	Len() int
	// Payload is the byte region after this view's header.
	Payload() []byte
	// Cascade recomputes this layer's derived fields (lengths, checksums)
	// and then the envelope's, innermost first.
	Cascade()
}

// IPPacket is a network-layer view: IPv4, IPv6, or an IPv6 extension
// acting as the network layer for the header above it.
type IPPacket interface {
	Packet
	NextProto() ProtocolNumber
	Src() netip.Addr
	Dst() netip.Addr
	SetSrc(netip.Addr) error
	SetDst(netip.Addr) error
	// PseudoHeaderSum folds the source, destination, upper-layer length
	// and protocol into the 16-bit partial sum TCP and UDP checksums
	// start from.
	PseudoHeaderSum(packetLen uint16, proto ProtocolNumber) uint16
}

// IPv6Packet marks views that can envelope IPv6 extension headers.
type IPv6Packet interface {
	IPPacket
	ipv6Packet()
}

// Raw is the untyped root view over a freshly received frame.
type Raw struct {
	m *mbuf.Mbuf
}

// NewRaw wraps an mbuf in a raw view.
func NewRaw(m *mbuf.Mbuf) *Raw { return &Raw{m: m} }

// RawFromBytes builds a raw view over a standalone mbuf holding a copy of
// data. Test helper.
func RawFromBytes(data []byte) *Raw {
	return &Raw{m: mbuf.FromBytes(data)}
}

func (r *Raw) Mbuf() *mbuf.Mbuf  { return r.m }
func (r *Raw) Offset() int       { return 0 }
func (r *Raw) HeaderLen() int    { return 0 }
func (r *Raw) PayloadOffset() int { return 0 }
func (r *Raw) Len() int          { return r.m.DataLen() }
func (r *Raw) Payload() []byte   { return r.m.Data() }
func (r *Raw) Cascade()          {}
