package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/netsys-io/netbricks/mbuf"
)

const srhFixedSize = 8

// SegmentRouting is the view over an IPv6 segment routing extension
// header (SRH): an 8-byte fixed part followed by a list of 128-bit
// segments. The SRH itself acts as the network layer for the header
// above it.
type SegmentRouting struct {
	m      *mbuf.Mbuf
	offset int
	env    IPv6Packet
}

// ParseSegmentRouting reads an SRH at the envelope payload. The segment
// list length must be consistent with hdr_ext_len.
func ParseSegmentRouting(env IPv6Packet) (*SegmentRouting, error) {
	offset := env.PayloadOffset()
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, srhFixedSize)
	if err != nil {
		return nil, err
	}
	hdrExtLen := hdr[1]
	segmentsLen := int(hdr[4]) + 1
	if hdrExtLen == 0 || 2*segmentsLen != int(hdrExtLen) {
		return nil, ParseError{"packet has inconsistent segment list length"}
	}
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset+srhFixedSize, segmentsLen*16); err != nil {
		return nil, err
	}
	return &SegmentRouting{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushSegmentRouting inserts an empty SRH at the envelope payload,
// stealing the envelope's next-header value and pointing the envelope at
// the routing header. Call SetSegments before sending; an SRH with no
// segments is not valid on the wire.
func PushSegmentRouting(env IPv6Packet) (*SegmentRouting, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, srhFixedSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, srhFixedSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	hdr[0] = uint8(env.NextProto())
	hdr[2] = 4 // routing type suggested for SRH
	s := &SegmentRouting{m: env.Mbuf(), offset: offset, env: env}
	setEnvelopeNextHeader(env, ProtoRouting)
	return s, nil
}

func setEnvelopeNextHeader(env IPv6Packet, next ProtocolNumber) {
	switch e := env.(type) {
	case *Ipv6:
		e.SetNextHeader(next)
	case *SegmentRouting:
		e.SetNextHeader(next)
	}
}

func (s *SegmentRouting) hdr() []byte { return s.m.Data()[s.offset : s.offset+srhFixedSize] }

func (s *SegmentRouting) NextHeader() ProtocolNumber        { return ProtocolNumber(s.hdr()[0]) }
func (s *SegmentRouting) SetNextHeader(next ProtocolNumber) { s.hdr()[0] = uint8(next) }

func (s *SegmentRouting) HdrExtLen() uint8      { return s.hdr()[1] }
func (s *SegmentRouting) setHdrExtLen(n uint8)  { s.hdr()[1] = n }
func (s *SegmentRouting) RoutingType() uint8    { return s.hdr()[2] }
func (s *SegmentRouting) SegmentsLeft() uint8   { return s.hdr()[3] }
func (s *SegmentRouting) SetSegmentsLeft(n uint8) { s.hdr()[3] = n }
func (s *SegmentRouting) LastEntry() uint8      { return s.hdr()[4] }
func (s *SegmentRouting) setLastEntry(n uint8)  { s.hdr()[4] = n }
func (s *SegmentRouting) Flags() uint8          { return s.hdr()[5] }

func (s *SegmentRouting) Tag() uint16 { return binary.BigEndian.Uint16(s.hdr()[6:8]) }
func (s *SegmentRouting) SetTag(tag uint16) {
	binary.BigEndian.PutUint16(s.hdr()[6:8], tag)
}

func (s *SegmentRouting) segmentCount() int {
	if s.HdrExtLen() == 0 {
		return 0
	}
	return int(s.LastEntry()) + 1
}

// Segments returns the segment list, outermost policy segment last.
func (s *SegmentRouting) Segments() []netip.Addr {
	n := s.segmentCount()
	segs := make([]netip.Addr, n)
	base := s.offset + srhFixedSize
	data := s.m.Data()
	for i := 0; i < n; i++ {
		segs[i] = netip.AddrFrom16([16]byte(data[base+16*i : base+16*i+16]))
	}
	return segs
}

// SetSegments replaces the segment list, resizing the buffer by the
// difference and updating hdr_ext_len and last_entry. An empty list is
// rejected.
func (s *SegmentRouting) SetSegments(segments []netip.Addr) error {
	if len(segments) == 0 || len(segments) > 128 {
		return ParseError{"segment list length must be greater than 0"}
	}
	oldLen := s.segmentCount()
	newLen := len(segments)
	resizeAt := s.offset + srhFixedSize + min(oldLen, newLen)*16
	if err := mbuf.Realloc(s.m, resizeAt, (newLen-oldLen)*16); err != nil {
		return err
	}
	base := s.offset + srhFixedSize
	data := s.m.Data()
	for i, seg := range segments {
		b := seg.As16()
		copy(data[base+16*i:base+16*i+16], b[:])
	}
	s.setHdrExtLen(uint8(2 * newLen))
	s.setLastEntry(uint8(newLen - 1))
	return nil
}

func (s *SegmentRouting) NextProto() ProtocolNumber { return s.NextHeader() }

// The SRH delegates addressing to the enclosing IPv6 header.
func (s *SegmentRouting) Src() netip.Addr          { return s.env.Src() }
func (s *SegmentRouting) Dst() netip.Addr          { return s.env.Dst() }
func (s *SegmentRouting) SetSrc(a netip.Addr) error { return s.env.SetSrc(a) }
func (s *SegmentRouting) SetDst(a netip.Addr) error { return s.env.SetDst(a) }

func (s *SegmentRouting) PseudoHeaderSum(packetLen uint16, proto ProtocolNumber) uint16 {
	return s.env.PseudoHeaderSum(packetLen, proto)
}

func (s *SegmentRouting) Mbuf() *mbuf.Mbuf { return s.m }
func (s *SegmentRouting) Offset() int      { return s.offset }

// HeaderLen is (hdr_ext_len + 1) * 8 bytes.
func (s *SegmentRouting) HeaderLen() int { return srhFixedSize + s.segmentCount()*16 }

func (s *SegmentRouting) PayloadOffset() int { return s.offset + s.HeaderLen() }
func (s *SegmentRouting) Len() int           { return s.m.DataLen() - s.offset }
func (s *SegmentRouting) Payload() []byte    { return s.m.Data()[s.PayloadOffset():] }
func (s *SegmentRouting) Cascade()           { s.env.Cascade() }

// Deparse returns ownership of the mbuf to the envelope.
func (s *SegmentRouting) Deparse() IPv6Packet { return s.env }

// Remove strips the SRH, restoring the envelope's next-header chain.
func (s *SegmentRouting) Remove() (IPv6Packet, error) {
	next := s.NextHeader()
	if err := mbuf.Dealloc(s.m, s.offset, s.HeaderLen()); err != nil {
		return nil, err
	}
	setEnvelopeNextHeader(s.env, next)
	return s.env, nil
}

func (s *SegmentRouting) ipv6Packet() {}

func (s *SegmentRouting) String() string {
	segs := make([]string, 0, s.segmentCount())
	for _, seg := range s.Segments() {
		segs = append(segs, seg.String())
	}
	return fmt.Sprintf("next_header: %d, hdr_ext_len: %d, routing_type: %d, segments_left: %d, last_entry: %d, flags: %d, tag: %d, segments: [%s]",
		s.NextHeader(), s.HdrExtLen(), s.RoutingType(), s.SegmentsLeft(), s.LastEntry(), s.Flags(), s.Tag(), strings.Join(segs, ", "))
}
