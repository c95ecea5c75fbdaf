package packets

import (
	"encoding/binary"
	"fmt"

	"github.com/netsys-io/netbricks/mbuf"
)

// MacAddr is a 48-bit hardware address.
type MacAddr [6]byte

func (a MacAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// EtherType identifies the protocol carried in an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeIPv6 EtherType = 0x86DD
	EtherTypeVlan EtherType = 0x8100
	EtherTypeQinQ EtherType = 0x88A8
)

func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeIPv6:
		return "IPv6"
	case EtherTypeVlan:
		return "VLAN"
	case EtherTypeQinQ:
		return "QinQ"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

const ethernetHeaderSize = 14

// Ethernet is the link-layer view. The header is 14 bytes plus 4 per
// VLAN tag; at most two tags (QinQ) are recognized.
type Ethernet struct {
	m      *mbuf.Mbuf
	offset int
	env    *Raw
}

// ParseEthernet reads an Ethernet header at the start of a raw packet.
func ParseEthernet(env *Raw) (*Ethernet, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, ethernetHeaderSize); err != nil {
		return nil, err
	}
	return &Ethernet{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushEthernet prepends a zeroed Ethernet header to a raw packet.
func PushEthernet(env *Raw) (*Ethernet, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, ethernetHeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, ethernetHeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	return &Ethernet{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (e *Ethernet) hdr() []byte { return e.m.Data()[e.offset:] }

func (e *Ethernet) Dst() MacAddr {
	var a MacAddr
	copy(a[:], e.hdr()[0:6])
	return a
}

func (e *Ethernet) SetDst(dst MacAddr) { copy(e.hdr()[0:6], dst[:]) }

func (e *Ethernet) Src() MacAddr {
	var a MacAddr
	copy(a[:], e.hdr()[6:12])
	return a
}

func (e *Ethernet) SetSrc(src MacAddr) { copy(e.hdr()[6:12], src[:]) }

// SwapAddresses exchanges the source and destination MACs.
func (e *Ethernet) SwapAddresses() {
	src, dst := e.Src(), e.Dst()
	e.SetSrc(dst)
	e.SetDst(src)
}

// VlanTags reports the number of 802.1Q tags present (0, 1 or 2).
func (e *Ethernet) VlanTags() int {
	h := e.hdr()
	if len(h) < ethernetHeaderSize {
		return 0
	}
	outer := EtherType(binary.BigEndian.Uint16(h[12:14]))
	if outer != EtherTypeVlan && outer != EtherTypeQinQ {
		return 0
	}
	if len(h) < ethernetHeaderSize+4 {
		return 0
	}
	if len(h) >= ethernetHeaderSize+8 {
		inner := EtherType(binary.BigEndian.Uint16(h[16:18]))
		if inner == EtherTypeVlan {
			return 2
		}
	}
	return 1
}

// EtherType returns the protocol of the payload, skipping VLAN tags.
func (e *Ethernet) EtherType() EtherType {
	pos := 12 + 4*e.VlanTags()
	return EtherType(binary.BigEndian.Uint16(e.hdr()[pos : pos+2]))
}

// SetEtherType writes the payload protocol at the innermost tag position.
func (e *Ethernet) SetEtherType(t EtherType) {
	pos := 12 + 4*e.VlanTags()
	binary.BigEndian.PutUint16(e.hdr()[pos:pos+2], uint16(t))
}

func (e *Ethernet) Mbuf() *mbuf.Mbuf { return e.m }
func (e *Ethernet) Offset() int      { return e.offset }

// HeaderLen is 14, 18 or 22 bytes for zero, one or two VLAN tags.
func (e *Ethernet) HeaderLen() int { return ethernetHeaderSize + 4*e.VlanTags() }

func (e *Ethernet) PayloadOffset() int { return e.offset + e.HeaderLen() }
func (e *Ethernet) Len() int           { return e.m.DataLen() - e.offset }
func (e *Ethernet) Payload() []byte    { return e.m.Data()[e.PayloadOffset():] }
func (e *Ethernet) Cascade()           { e.env.Cascade() }

// Deparse returns ownership of the mbuf to the raw view.
func (e *Ethernet) Deparse() *Raw { return e.env }

// Remove strips the Ethernet header from the frame.
func (e *Ethernet) Remove() (*Raw, error) {
	if err := mbuf.Dealloc(e.m, e.offset, e.HeaderLen()); err != nil {
		return nil, err
	}
	return e.env, nil
}

func (e *Ethernet) String() string {
	return fmt.Sprintf("%s > %s [%s]", e.Src(), e.Dst(), e.EtherType())
}
