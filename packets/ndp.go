package packets

import (
	"encoding/binary"
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

// NDP message payloads and options, carried inside ICMPv6.

// RouterAdvertisement is the fixed body of an ICMPv6 router advertisement.
type RouterAdvertisement struct {
	icmp *Icmpv6
}

// NeighborSolicitation is the fixed body of a neighbor solicitation.
type NeighborSolicitation struct {
	icmp *Icmpv6
}

// NeighborAdvertisement is the fixed body of a neighbor advertisement.
type NeighborAdvertisement struct {
	icmp *Icmpv6
}

const (
	routerAdvertSize   = 12
	neighborBodySize   = 20 // reserved/flags word + target address
)

// RouterAdvert narrows an ICMPv6 view to a router advertisement body.
func RouterAdvert(i *Icmpv6) (*RouterAdvertisement, error) {
	if _, err := mbuf.ReadSlice(i.m, i.PayloadOffset(), routerAdvertSize); err != nil {
		return nil, err
	}
	return &RouterAdvertisement{icmp: i}, nil
}

func (r *RouterAdvertisement) body() []byte {
	off := r.icmp.PayloadOffset()
	return r.icmp.m.Data()[off : off+routerAdvertSize]
}

func (r *RouterAdvertisement) CurrentHopLimit() uint8    { return r.body()[0] }
func (r *RouterAdvertisement) SetCurrentHopLimit(h uint8) { r.body()[0] = h }

func (r *RouterAdvertisement) ManagedAddrConfig() bool { return r.body()[1]&0x80 != 0 }
func (r *RouterAdvertisement) OtherConfig() bool       { return r.body()[1]&0x40 != 0 }

func (r *RouterAdvertisement) RouterLifetime() uint16 {
	return binary.BigEndian.Uint16(r.body()[2:4])
}

func (r *RouterAdvertisement) SetRouterLifetime(lt uint16) {
	binary.BigEndian.PutUint16(r.body()[2:4], lt)
}

func (r *RouterAdvertisement) ReachableTime() uint32 {
	return binary.BigEndian.Uint32(r.body()[4:8])
}

func (r *RouterAdvertisement) RetransTimer() uint32 {
	return binary.BigEndian.Uint32(r.body()[8:12])
}

// Options iterates the NDP options following the fixed body.
func (r *RouterAdvertisement) Options() *NdpOptionsIterator {
	return newNdpOptionsIterator(r.icmp.m, r.icmp.PayloadOffset()+routerAdvertSize)
}

// NeighborSolicit narrows an ICMPv6 view to a neighbor solicitation body.
func NeighborSolicit(i *Icmpv6) (*NeighborSolicitation, error) {
	if _, err := mbuf.ReadSlice(i.m, i.PayloadOffset(), neighborBodySize); err != nil {
		return nil, err
	}
	return &NeighborSolicitation{icmp: i}, nil
}

func (n *NeighborSolicitation) body() []byte {
	off := n.icmp.PayloadOffset()
	return n.icmp.m.Data()[off : off+neighborBodySize]
}

func (n *NeighborSolicitation) TargetAddr() netip.Addr {
	return netip.AddrFrom16([16]byte(n.body()[4:20]))
}

func (n *NeighborSolicitation) SetTargetAddr(a netip.Addr) {
	b := a.As16()
	copy(n.body()[4:20], b[:])
}

func (n *NeighborSolicitation) Options() *NdpOptionsIterator {
	return newNdpOptionsIterator(n.icmp.m, n.icmp.PayloadOffset()+neighborBodySize)
}

// NeighborAdvert narrows an ICMPv6 view to a neighbor advertisement body.
func NeighborAdvert(i *Icmpv6) (*NeighborAdvertisement, error) {
	if _, err := mbuf.ReadSlice(i.m, i.PayloadOffset(), neighborBodySize); err != nil {
		return nil, err
	}
	return &NeighborAdvertisement{icmp: i}, nil
}

func (n *NeighborAdvertisement) body() []byte {
	off := n.icmp.PayloadOffset()
	return n.icmp.m.Data()[off : off+neighborBodySize]
}

func (n *NeighborAdvertisement) Router() bool    { return n.body()[0]&0x80 != 0 }
func (n *NeighborAdvertisement) Solicited() bool { return n.body()[0]&0x40 != 0 }
func (n *NeighborAdvertisement) Override() bool  { return n.body()[0]&0x20 != 0 }

func (n *NeighborAdvertisement) TargetAddr() netip.Addr {
	return netip.AddrFrom16([16]byte(n.body()[4:20]))
}

func (n *NeighborAdvertisement) Options() *NdpOptionsIterator {
	return newNdpOptionsIterator(n.icmp.m, n.icmp.PayloadOffset()+neighborBodySize)
}

// NDP option type codes.
const (
	ndpSourceLinkLayerAddr = 1
	ndpTargetLinkLayerAddr = 2
	ndpPrefixInformation   = 3
	ndpMtu                 = 5
)

// NdpOption is one parsed NDP option.
type NdpOption struct {
	Kind   uint8
	Length uint8 // in units of 8 octets

	// LinkLayerAddr is set for source/target link-layer address options.
	LinkLayerAddr MacAddr
	// Prefix and PrefixLength are set for prefix information options.
	Prefix       netip.Addr
	PrefixLength uint8
	// Mtu is set for MTU options.
	Mtu uint32
}

// NdpOptionsIterator walks the options region of an NDP message.
type NdpOptionsIterator struct {
	m      *mbuf.Mbuf
	offset int
}

func newNdpOptionsIterator(m *mbuf.Mbuf, offset int) *NdpOptionsIterator {
	return &NdpOptionsIterator{m: m, offset: offset}
}

// Next returns the next option, (nil, nil) at the end of the buffer, or an
// error for a zero-length option.
func (it *NdpOptionsIterator) Next() (*NdpOption, error) {
	if it.offset+2 > it.m.DataLen() {
		return nil, nil
	}
	hdr, err := mbuf.ReadSlice(it.m, it.offset, 2)
	if err != nil {
		return nil, err
	}
	kind, length := hdr[0], hdr[1]
	if length == 0 {
		return nil, ParseError{"NDP option has zero length"}
	}
	body, err := mbuf.ReadSlice(it.m, it.offset, int(length)*8)
	if err != nil {
		return nil, err
	}

	opt := &NdpOption{Kind: kind, Length: length}
	switch kind {
	case ndpSourceLinkLayerAddr, ndpTargetLinkLayerAddr:
		copy(opt.LinkLayerAddr[:], body[2:8])
	case ndpPrefixInformation:
		if len(body) < 32 {
			return nil, ParseError{"prefix information option too short"}
		}
		opt.PrefixLength = body[2]
		opt.Prefix = netip.AddrFrom16([16]byte(body[16:32]))
	case ndpMtu:
		opt.Mtu = binary.BigEndian.Uint32(body[4:8])
	}

	it.offset += int(length) * 8
	return opt, nil
}
