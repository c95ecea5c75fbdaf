package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

const ipv6HeaderSize = 40

// Ipv6 is the network-layer view over the fixed IPv6 header. Extension
// headers are separate views parsed from this one.
type Ipv6 struct {
	m      *mbuf.Mbuf
	offset int
	env    *Ethernet
}

// ParseIpv6 reads an IPv6 header at the Ethernet payload.
func ParseIpv6(env *Ethernet) (*Ipv6, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, ipv6HeaderSize); err != nil {
		return nil, err
	}
	return &Ipv6{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushIpv6 inserts a default IPv6 header (version 6) at the Ethernet payload.
func PushIpv6(env *Ethernet) (*Ipv6, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, ipv6HeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, ipv6HeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	hdr[0] = 6 << 4
	return &Ipv6{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (p *Ipv6) hdr() []byte { return p.m.Data()[p.offset : p.offset+ipv6HeaderSize] }

// The first word packs version(4) / traffic class(8) / flow label(20).
func (p *Ipv6) firstWord() uint32 { return binary.BigEndian.Uint32(p.hdr()[0:4]) }
func (p *Ipv6) setFirstWord(w uint32) {
	binary.BigEndian.PutUint32(p.hdr()[0:4], w)
}

func (p *Ipv6) Version() uint8 { return uint8(p.firstWord() >> 28) }

func (p *Ipv6) TrafficClass() uint8 { return uint8(p.firstWord() >> 20) }
func (p *Ipv6) SetTrafficClass(tc uint8) {
	p.setFirstWord(p.firstWord()&0xf00fffff | uint32(tc)<<20)
}

func (p *Ipv6) FlowLabel() uint32 { return p.firstWord() & 0x0fffff }

// SetFlowLabel writes a 20-bit flow label; larger values are rejected.
func (p *Ipv6) SetFlowLabel(label uint32) error {
	if label > 0x0fffff {
		return ParseError{"flow label exceeds 20 bits"}
	}
	p.setFirstWord(p.firstWord()&0xfff00000 | label)
	return nil
}

func (p *Ipv6) PayloadLen() uint16 { return binary.BigEndian.Uint16(p.hdr()[4:6]) }
func (p *Ipv6) SetPayloadLen(n uint16) {
	binary.BigEndian.PutUint16(p.hdr()[4:6], n)
}

func (p *Ipv6) NextHeader() ProtocolNumber       { return ProtocolNumber(p.hdr()[6]) }
func (p *Ipv6) SetNextHeader(next ProtocolNumber) { p.hdr()[6] = uint8(next) }

func (p *Ipv6) HopLimit() uint8       { return p.hdr()[7] }
func (p *Ipv6) SetHopLimit(hl uint8) { p.hdr()[7] = hl }

func (p *Ipv6) Src() netip.Addr {
	return netip.AddrFrom16([16]byte(p.hdr()[8:24]))
}

func (p *Ipv6) Dst() netip.Addr {
	return netip.AddrFrom16([16]byte(p.hdr()[24:40]))
}

func (p *Ipv6) SetSrc(src netip.Addr) error {
	if !src.Is6() || src.Is4In6() {
		return ParseError{"IP address family mismatch"}
	}
	b := src.As16()
	copy(p.hdr()[8:24], b[:])
	return nil
}

func (p *Ipv6) SetDst(dst netip.Addr) error {
	if !dst.Is6() || dst.Is4In6() {
		return ParseError{"IP address family mismatch"}
	}
	b := dst.As16()
	copy(p.hdr()[24:40], b[:])
	return nil
}

func (p *Ipv6) NextProto() ProtocolNumber { return p.NextHeader() }

func (p *Ipv6) PseudoHeaderSum(packetLen uint16, proto ProtocolNumber) uint16 {
	src, dst := p.Src().As16(), p.Dst().As16()
	return pseudoHeaderSumBytes(src[:], dst[:], packetLen, proto)
}

func (p *Ipv6) Mbuf() *mbuf.Mbuf   { return p.m }
func (p *Ipv6) Offset() int        { return p.offset }
func (p *Ipv6) HeaderLen() int     { return ipv6HeaderSize }
func (p *Ipv6) PayloadOffset() int { return p.offset + ipv6HeaderSize }
func (p *Ipv6) Len() int           { return p.m.DataLen() - p.offset }
func (p *Ipv6) Payload() []byte    { return p.m.Data()[p.PayloadOffset():] }

// Cascade writes the payload length (everything after the fixed header,
// extension headers included) and propagates outward.
func (p *Ipv6) Cascade() {
	p.SetPayloadLen(uint16(p.Len() - ipv6HeaderSize))
	p.env.Cascade()
}

// Deparse returns ownership of the mbuf to the Ethernet view.
func (p *Ipv6) Deparse() *Ethernet { return p.env }

// Remove strips the IPv6 header from the frame.
func (p *Ipv6) Remove() (*Ethernet, error) {
	if err := mbuf.Dealloc(p.m, p.offset, p.HeaderLen()); err != nil {
		return nil, err
	}
	return p.env, nil
}

func (p *Ipv6) ipv6Packet() {}

func (p *Ipv6) String() string {
	return fmt.Sprintf("%s > %s, version: %d, traffic_class: %d, flow_label: %d, len: %d, next_header: %d, hop_limit: %d",
		p.Src(), p.Dst(), p.Version(), p.TrafficClass(), p.FlowLabel(), p.PayloadLen(), p.NextHeader(), p.HopLimit())
}
