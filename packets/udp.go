package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

const udpHeaderSize = 8

// Udp is the transport-layer view over a UDP header.
type Udp struct {
	m      *mbuf.Mbuf
	offset int
	env    IPPacket
}

// ParseUdp reads a UDP header at the network-layer payload.
func ParseUdp(env IPPacket) (*Udp, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, udpHeaderSize); err != nil {
		return nil, err
	}
	return &Udp{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushUdp inserts a zeroed UDP header at the network-layer payload.
func PushUdp(env IPPacket) (*Udp, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, udpHeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, udpHeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	return &Udp{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (u *Udp) hdr() []byte { return u.m.Data()[u.offset : u.offset+udpHeaderSize] }

func (u *Udp) SrcPort() uint16 { return binary.BigEndian.Uint16(u.hdr()[0:2]) }
func (u *Udp) SetSrcPort(p uint16) {
	binary.BigEndian.PutUint16(u.hdr()[0:2], p)
}

func (u *Udp) DstPort() uint16 { return binary.BigEndian.Uint16(u.hdr()[2:4]) }
func (u *Udp) SetDstPort(p uint16) {
	binary.BigEndian.PutUint16(u.hdr()[2:4], p)
}

func (u *Udp) Length() uint16 { return binary.BigEndian.Uint16(u.hdr()[4:6]) }
func (u *Udp) setLength(n uint16) {
	binary.BigEndian.PutUint16(u.hdr()[4:6], n)
}

func (u *Udp) Checksum() uint16 { return binary.BigEndian.Uint16(u.hdr()[6:8]) }

// A computed checksum of zero is transmitted as all ones; use NoChecksum
// to write a literal zero, which means no checksum was generated.
func (u *Udp) setChecksum(sum uint16) {
	if sum == 0 {
		sum = 0xFFFF
	}
	binary.BigEndian.PutUint16(u.hdr()[6:8], sum)
}

// NoChecksum marks the datagram as carrying no checksum.
func (u *Udp) NoChecksum() {
	binary.BigEndian.PutUint16(u.hdr()[6:8], 0)
}

// Flow returns the connection 5-tuple.
func (u *Udp) Flow() Flow {
	return Flow{
		Src:     u.env.Src(),
		Dst:     u.env.Dst(),
		SrcPort: u.SrcPort(),
		DstPort: u.DstPort(),
		Proto:   ProtoUDP,
	}
}

// SetSrcIP rewrites the layer-3 source address and incrementally updates
// the UDP checksum.
func (u *Udp) SetSrcIP(src netip.Addr) error {
	sum, err := ChecksumIncAddr(u.Checksum(), u.env.Src(), src)
	if err != nil {
		return err
	}
	if err := u.env.SetSrc(src); err != nil {
		return err
	}
	u.setChecksum(sum)
	return nil
}

// SetDstIP rewrites the layer-3 destination address and incrementally
// updates the UDP checksum.
func (u *Udp) SetDstIP(dst netip.Addr) error {
	sum, err := ChecksumIncAddr(u.Checksum(), u.env.Dst(), dst)
	if err != nil {
		return err
	}
	if err := u.env.SetDst(dst); err != nil {
		return err
	}
	u.setChecksum(sum)
	return nil
}

func (u *Udp) computeChecksum() {
	u.NoChecksum()
	data := u.m.Data()[u.offset:]
	pseudo := u.env.PseudoHeaderSum(uint16(len(data)), ProtoUDP)
	u.setChecksum(ChecksumCompute(pseudo, data))
}

func (u *Udp) Mbuf() *mbuf.Mbuf   { return u.m }
func (u *Udp) Offset() int        { return u.offset }
func (u *Udp) HeaderLen() int     { return udpHeaderSize }
func (u *Udp) PayloadOffset() int { return u.offset + udpHeaderSize }
func (u *Udp) Len() int           { return u.m.DataLen() - u.offset }
func (u *Udp) Payload() []byte    { return u.m.Data()[u.PayloadOffset():] }

// SegmentLength is the byte count the checksum covers: header plus payload.
func (u *Udp) SegmentLength() int { return u.Len() }

// Cascade writes the datagram length, recomputes the checksum, and
// propagates outward.
func (u *Udp) Cascade() {
	u.setLength(uint16(u.Len()))
	u.computeChecksum()
	u.env.Cascade()
}

// Deparse returns ownership of the mbuf to the network-layer view.
func (u *Udp) Deparse() IPPacket { return u.env }

// Remove strips the UDP header from the frame.
func (u *Udp) Remove() (IPPacket, error) {
	if err := mbuf.Dealloc(u.m, u.offset, u.HeaderLen()); err != nil {
		return nil, err
	}
	return u.env, nil
}

func (u *Udp) String() string {
	return fmt.Sprintf("src_port: %d, dst_port: %d, length: %d, checksum: %d",
		u.SrcPort(), u.DstPort(), u.Length(), u.Checksum())
}
