package packets

import (
	"encoding/binary"
	"fmt"

	"github.com/netsys-io/netbricks/mbuf"
)

const icmpv6HeaderSize = 4

// Icmpv6Type identifies an ICMPv6 message.
type Icmpv6Type uint8

// Supported ICMPv6 message types.
const (
	Icmpv6PacketTooBig          Icmpv6Type = 2
	Icmpv6RouterSolicitation    Icmpv6Type = 133
	Icmpv6RouterAdvertisement   Icmpv6Type = 134
	Icmpv6NeighborSolicitation  Icmpv6Type = 135
	Icmpv6NeighborAdvertisement Icmpv6Type = 136
	Icmpv6Redirect              Icmpv6Type = 137
)

func (t Icmpv6Type) String() string {
	switch t {
	case Icmpv6PacketTooBig:
		return "Packet Too Big"
	case Icmpv6RouterSolicitation:
		return "Router Solicitation"
	case Icmpv6RouterAdvertisement:
		return "Router Advertisement"
	case Icmpv6NeighborSolicitation:
		return "Neighbor Solicitation"
	case Icmpv6NeighborAdvertisement:
		return "Neighbor Advertisement"
	case Icmpv6Redirect:
		return "Redirect"
	default:
		return fmt.Sprintf("%d", uint8(t))
	}
}

// Icmpv6 is the view over the 4-byte general ICMPv6 header. The message
// body is accessed through the typed NDP views or Payload.
type Icmpv6 struct {
	m      *mbuf.Mbuf
	offset int
	env    IPv6Packet
}

// ParseIcmpv6 reads an ICMPv6 header at the envelope payload.
func ParseIcmpv6(env IPv6Packet) (*Icmpv6, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, icmpv6HeaderSize); err != nil {
		return nil, err
	}
	return &Icmpv6{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushIcmpv6 inserts a zeroed ICMPv6 header at the envelope payload.
func PushIcmpv6(env IPv6Packet) (*Icmpv6, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, icmpv6HeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, icmpv6HeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	return &Icmpv6{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (i *Icmpv6) hdr() []byte { return i.m.Data()[i.offset : i.offset+icmpv6HeaderSize] }

func (i *Icmpv6) MsgType() Icmpv6Type       { return Icmpv6Type(i.hdr()[0]) }
func (i *Icmpv6) SetMsgType(t Icmpv6Type)   { i.hdr()[0] = uint8(t) }
func (i *Icmpv6) Code() uint8               { return i.hdr()[1] }
func (i *Icmpv6) SetCode(c uint8)           { i.hdr()[1] = c }
func (i *Icmpv6) Checksum() uint16          { return binary.BigEndian.Uint16(i.hdr()[2:4]) }
func (i *Icmpv6) setChecksum(sum uint16)    { binary.BigEndian.PutUint16(i.hdr()[2:4], sum) }

func (i *Icmpv6) computeChecksum() {
	i.setChecksum(0)
	data := i.m.Data()[i.offset:]
	pseudo := i.env.PseudoHeaderSum(uint16(len(data)), ProtoICMPv6)
	i.setChecksum(ChecksumCompute(pseudo, data))
}

func (i *Icmpv6) Mbuf() *mbuf.Mbuf   { return i.m }
func (i *Icmpv6) Offset() int        { return i.offset }
func (i *Icmpv6) HeaderLen() int     { return icmpv6HeaderSize }
func (i *Icmpv6) PayloadOffset() int { return i.offset + icmpv6HeaderSize }
func (i *Icmpv6) Len() int           { return i.m.DataLen() - i.offset }
func (i *Icmpv6) Payload() []byte    { return i.m.Data()[i.PayloadOffset():] }

// Cascade recomputes the ICMPv6 checksum and propagates outward.
func (i *Icmpv6) Cascade() {
	i.computeChecksum()
	i.env.Cascade()
}

// Deparse returns ownership of the mbuf to the envelope.
func (i *Icmpv6) Deparse() IPv6Packet { return i.env }

// Remove strips the ICMPv6 header from the frame.
func (i *Icmpv6) Remove() (IPv6Packet, error) {
	if err := mbuf.Dealloc(i.m, i.offset, i.HeaderLen()); err != nil {
		return nil, err
	}
	return i.env, nil
}

func (i *Icmpv6) String() string {
	return fmt.Sprintf("type: %s, code: %d, checksum: 0x%04x", i.MsgType(), i.Code(), i.Checksum())
}
