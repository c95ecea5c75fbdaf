package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

const ipv4HeaderSize = 20

// Ipv4 is the network-layer view over an IPv4 header. Only the fixed 20
// bytes are modeled; the payload offset honors IHL so options are skipped.
type Ipv4 struct {
	m      *mbuf.Mbuf
	offset int
	env    *Ethernet
}

// ParseIpv4 reads an IPv4 header at the Ethernet payload.
func ParseIpv4(env *Ethernet) (*Ipv4, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, ipv4HeaderSize); err != nil {
		return nil, err
	}
	return &Ipv4{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushIpv4 inserts a default IPv4 header (version 4, IHL 5) at the
// Ethernet payload.
func PushIpv4(env *Ethernet) (*Ipv4, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, ipv4HeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, ipv4HeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	hdr[0] = 4<<4 | 5
	return &Ipv4{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (p *Ipv4) hdr() []byte { return p.m.Data()[p.offset : p.offset+ipv4HeaderSize] }

func (p *Ipv4) Version() uint8 { return p.hdr()[0] >> 4 }
func (p *Ipv4) Ihl() uint8     { return p.hdr()[0] & 0x0f }

func (p *Ipv4) SetIhl(ihl uint8) {
	p.hdr()[0] = p.hdr()[0]&0xf0 | ihl&0x0f
}

func (p *Ipv4) TypeOfService() uint8       { return p.hdr()[1] }
func (p *Ipv4) SetTypeOfService(tos uint8) { p.hdr()[1] = tos }

func (p *Ipv4) TotalLength() uint16 { return binary.BigEndian.Uint16(p.hdr()[2:4]) }
func (p *Ipv4) SetTotalLength(n uint16) {
	binary.BigEndian.PutUint16(p.hdr()[2:4], n)
}

func (p *Ipv4) Identification() uint16 { return binary.BigEndian.Uint16(p.hdr()[4:6]) }
func (p *Ipv4) SetIdentification(id uint16) {
	binary.BigEndian.PutUint16(p.hdr()[4:6], id)
}

func (p *Ipv4) Ttl() uint8       { return p.hdr()[8] }
func (p *Ipv4) SetTtl(ttl uint8) { p.hdr()[8] = ttl }

func (p *Ipv4) Protocol() ProtocolNumber       { return ProtocolNumber(p.hdr()[9]) }
func (p *Ipv4) SetProtocol(pr ProtocolNumber) { p.hdr()[9] = uint8(pr) }

func (p *Ipv4) Checksum() uint16 { return binary.BigEndian.Uint16(p.hdr()[10:12]) }
func (p *Ipv4) SetChecksum(sum uint16) {
	binary.BigEndian.PutUint16(p.hdr()[10:12], sum)
}

func (p *Ipv4) Src() netip.Addr {
	return netip.AddrFrom4([4]byte(p.hdr()[12:16]))
}

func (p *Ipv4) Dst() netip.Addr {
	return netip.AddrFrom4([4]byte(p.hdr()[16:20]))
}

func (p *Ipv4) SetSrc(src netip.Addr) error {
	if !src.Is4() {
		return ParseError{"IP address family mismatch"}
	}
	b := src.As4()
	copy(p.hdr()[12:16], b[:])
	return nil
}

func (p *Ipv4) SetDst(dst netip.Addr) error {
	if !dst.Is4() {
		return ParseError{"IP address family mismatch"}
	}
	b := dst.As4()
	copy(p.hdr()[16:20], b[:])
	return nil
}

func (p *Ipv4) NextProto() ProtocolNumber { return p.Protocol() }

func (p *Ipv4) PseudoHeaderSum(packetLen uint16, proto ProtocolNumber) uint16 {
	src, dst := p.Src().As4(), p.Dst().As4()
	return pseudoHeaderSumBytes(src[:], dst[:], packetLen, proto)
}

// Flow returns the connection 5-tuple when the payload is TCP or UDP and
// long enough to carry ports.
func (p *Ipv4) Flow() (Flow, bool) {
	proto := p.Protocol()
	if proto != ProtoTCP && proto != ProtoUDP {
		return Flow{}, false
	}
	ports, err := mbuf.ReadSlice(p.m, p.PayloadOffset(), 4)
	if err != nil {
		return Flow{}, false
	}
	return Flow{
		Src:     p.Src(),
		Dst:     p.Dst(),
		SrcPort: binary.BigEndian.Uint16(ports[0:2]),
		DstPort: binary.BigEndian.Uint16(ports[2:4]),
		Proto:   proto,
	}, true
}

func (p *Ipv4) Mbuf() *mbuf.Mbuf   { return p.m }
func (p *Ipv4) Offset() int        { return p.offset }
func (p *Ipv4) HeaderLen() int     { return int(p.Ihl()) * 4 }
func (p *Ipv4) PayloadOffset() int { return p.offset + p.HeaderLen() }
func (p *Ipv4) Len() int           { return p.m.DataLen() - p.offset }
func (p *Ipv4) Payload() []byte    { return p.m.Data()[p.PayloadOffset():] }

// Cascade writes the total length, recomputes the header checksum, and
// propagates outward.
func (p *Ipv4) Cascade() {
	p.SetTotalLength(uint16(p.Len()))
	p.computeChecksum()
	p.env.Cascade()
}

func (p *Ipv4) computeChecksum() {
	p.SetChecksum(0)
	hdr := p.m.Data()[p.offset : p.offset+p.HeaderLen()]
	p.SetChecksum(ChecksumCompute(0, hdr))
}

// Deparse returns ownership of the mbuf to the Ethernet view.
func (p *Ipv4) Deparse() *Ethernet { return p.env }

// Remove strips the IPv4 header from the frame.
func (p *Ipv4) Remove() (*Ethernet, error) {
	if err := mbuf.Dealloc(p.m, p.offset, p.HeaderLen()); err != nil {
		return nil, err
	}
	return p.env, nil
}

func (p *Ipv4) String() string {
	return fmt.Sprintf("%s > %s version: %d, ihl: %d, len: %d, ttl: %d, protocol: %d, checksum: %d",
		p.Src(), p.Dst(), p.Version(), p.Ihl(), p.TotalLength(), p.Ttl(), p.Protocol(), p.Checksum())
}
