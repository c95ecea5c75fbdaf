package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys-io/netbricks/mbuf"
)

const tcpHeaderSize = 20

// TCP flag bits.
const (
	tcpCWR = 0b1000_0000
	tcpECE = 0b0100_0000
	tcpURG = 0b0010_0000
	tcpACK = 0b0001_0000
	tcpPSH = 0b0000_1000
	tcpRST = 0b0000_0100
	tcpSYN = 0b0000_0010
	tcpFIN = 0b0000_0001
)

// Tcp is the transport-layer view over a TCP header. Options are covered
// by the data offset but not decoded.
type Tcp struct {
	m      *mbuf.Mbuf
	offset int
	env    IPPacket
}

// ParseTcp reads a TCP header at the network-layer payload.
func ParseTcp(env IPPacket) (*Tcp, error) {
	offset := env.PayloadOffset()
	if _, err := mbuf.ReadSlice(env.Mbuf(), offset, tcpHeaderSize); err != nil {
		return nil, err
	}
	return &Tcp{m: env.Mbuf(), offset: offset, env: env}, nil
}

// PushTcp inserts a default TCP header (data offset 5) at the
// network-layer payload.
func PushTcp(env IPPacket) (*Tcp, error) {
	offset := env.PayloadOffset()
	if err := mbuf.Alloc(env.Mbuf(), offset, tcpHeaderSize); err != nil {
		return nil, err
	}
	hdr, err := mbuf.ReadSlice(env.Mbuf(), offset, tcpHeaderSize)
	if err != nil {
		return nil, err
	}
	clear(hdr)
	hdr[12] = 5 << 4
	return &Tcp{m: env.Mbuf(), offset: offset, env: env}, nil
}

func (t *Tcp) hdr() []byte { return t.m.Data()[t.offset : t.offset+tcpHeaderSize] }

func (t *Tcp) SrcPort() uint16 { return binary.BigEndian.Uint16(t.hdr()[0:2]) }
func (t *Tcp) SetSrcPort(p uint16) {
	binary.BigEndian.PutUint16(t.hdr()[0:2], p)
}

func (t *Tcp) DstPort() uint16 { return binary.BigEndian.Uint16(t.hdr()[2:4]) }
func (t *Tcp) SetDstPort(p uint16) {
	binary.BigEndian.PutUint16(t.hdr()[2:4], p)
}

func (t *Tcp) SeqNo() uint32 { return binary.BigEndian.Uint32(t.hdr()[4:8]) }
func (t *Tcp) SetSeqNo(seq uint32) {
	binary.BigEndian.PutUint32(t.hdr()[4:8], seq)
}

func (t *Tcp) AckNo() uint32 { return binary.BigEndian.Uint32(t.hdr()[8:12]) }
func (t *Tcp) SetAckNo(ack uint32) {
	binary.BigEndian.PutUint32(t.hdr()[8:12], ack)
}

// DataOffset is the header length in 32-bit words, options included.
func (t *Tcp) DataOffset() uint8 { return t.hdr()[12] >> 4 }

func (t *Tcp) Ns() bool { return t.hdr()[12]&0x01 != 0 }

func (t *Tcp) flagBit(bit uint8) bool  { return t.hdr()[13]&bit != 0 }
func (t *Tcp) setFlagBit(bit uint8)    { t.hdr()[13] |= bit }
func (t *Tcp) unsetFlagBit(bit uint8)  { t.hdr()[13] &^= bit }

func (t *Tcp) Cwr() bool   { return t.flagBit(tcpCWR) }
func (t *Tcp) Ece() bool   { return t.flagBit(tcpECE) }
func (t *Tcp) Urg() bool   { return t.flagBit(tcpURG) }
func (t *Tcp) Ack() bool   { return t.flagBit(tcpACK) }
func (t *Tcp) Psh() bool   { return t.flagBit(tcpPSH) }
func (t *Tcp) Rst() bool   { return t.flagBit(tcpRST) }
func (t *Tcp) Syn() bool   { return t.flagBit(tcpSYN) }
func (t *Tcp) Fin() bool   { return t.flagBit(tcpFIN) }

func (t *Tcp) SetSyn()   { t.setFlagBit(tcpSYN) }
func (t *Tcp) UnsetSyn() { t.unsetFlagBit(tcpSYN) }
func (t *Tcp) SetAck()   { t.setFlagBit(tcpACK) }
func (t *Tcp) SetPsh()   { t.setFlagBit(tcpPSH) }
func (t *Tcp) SetRst()   { t.setFlagBit(tcpRST) }
func (t *Tcp) SetFin()   { t.setFlagBit(tcpFIN) }

func (t *Tcp) Window() uint16 { return binary.BigEndian.Uint16(t.hdr()[14:16]) }
func (t *Tcp) SetWindow(w uint16) {
	binary.BigEndian.PutUint16(t.hdr()[14:16], w)
}

func (t *Tcp) Checksum() uint16 { return binary.BigEndian.Uint16(t.hdr()[16:18]) }
func (t *Tcp) setChecksum(sum uint16) {
	binary.BigEndian.PutUint16(t.hdr()[16:18], sum)
}

func (t *Tcp) UrgentPointer() uint16 { return binary.BigEndian.Uint16(t.hdr()[18:20]) }
func (t *Tcp) SetUrgentPointer(p uint16) {
	binary.BigEndian.PutUint16(t.hdr()[18:20], p)
}

// Flow returns the connection 5-tuple.
func (t *Tcp) Flow() Flow {
	return Flow{
		Src:     t.env.Src(),
		Dst:     t.env.Dst(),
		SrcPort: t.SrcPort(),
		DstPort: t.DstPort(),
		Proto:   ProtoTCP,
	}
}

// SetSrcIP rewrites the layer-3 source address and incrementally updates
// the TCP checksum.
func (t *Tcp) SetSrcIP(src netip.Addr) error {
	sum, err := ChecksumIncAddr(t.Checksum(), t.env.Src(), src)
	if err != nil {
		return err
	}
	if err := t.env.SetSrc(src); err != nil {
		return err
	}
	t.setChecksum(sum)
	return nil
}

// SetDstIP rewrites the layer-3 destination address and incrementally
// updates the TCP checksum.
func (t *Tcp) SetDstIP(dst netip.Addr) error {
	sum, err := ChecksumIncAddr(t.Checksum(), t.env.Dst(), dst)
	if err != nil {
		return err
	}
	if err := t.env.SetDst(dst); err != nil {
		return err
	}
	t.setChecksum(sum)
	return nil
}

func (t *Tcp) computeChecksum() {
	t.setChecksum(0)
	data := t.m.Data()[t.offset:]
	pseudo := t.env.PseudoHeaderSum(uint16(len(data)), ProtoTCP)
	t.setChecksum(ChecksumCompute(pseudo, data))
}

func (t *Tcp) Mbuf() *mbuf.Mbuf   { return t.m }
func (t *Tcp) Offset() int        { return t.offset }
func (t *Tcp) HeaderLen() int     { return int(t.DataOffset()) * 4 }
func (t *Tcp) PayloadOffset() int { return t.offset + t.HeaderLen() }
func (t *Tcp) Len() int           { return t.m.DataLen() - t.offset }
func (t *Tcp) Payload() []byte    { return t.m.Data()[t.PayloadOffset():] }

// SegmentLength is the byte count the checksum covers: header plus payload.
func (t *Tcp) SegmentLength() int { return t.Len() }

// Cascade recomputes the TCP checksum and propagates outward.
func (t *Tcp) Cascade() {
	t.computeChecksum()
	t.env.Cascade()
}

// Deparse returns ownership of the mbuf to the network-layer view.
func (t *Tcp) Deparse() IPPacket { return t.env }

// Remove strips the TCP header from the frame.
func (t *Tcp) Remove() (IPPacket, error) {
	if err := mbuf.Dealloc(t.m, t.offset, t.HeaderLen()); err != nil {
		return nil, err
	}
	return t.env, nil
}

func (t *Tcp) String() string {
	return fmt.Sprintf("src_port: %d, dst_port: %d, seq_no: %d, ack_no: %d, data_offset: %d, window: %d, checksum %d, SYN: %t, FIN: %t, RST: %t",
		t.SrcPort(), t.DstPort(), t.SeqNo(), t.AckNo(), t.DataOffset(), t.Window(), t.Checksum(), t.Syn(), t.Fin(), t.Rst())
}
