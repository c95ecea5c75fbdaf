package packets

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 170-byte Ethernet/IPv6/SRH(3 segments)/TCP packet.
var srhPacket = []byte{
	// ethernet
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	0x86, 0xDD,
	// IPv6: payload_len=116, next=routing, hop=2
	0x60, 0x00, 0x00, 0x00,
	0x00, 0x74,
	0x2b,
	0x02,
	0x20, 0x01, 0x0d, 0xb8, 0x85, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x20, 0x01, 0x0d, 0xb8, 0x85, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x8a, 0x2e, 0x03, 0x70, 0x73, 0x34,
	// SRH: next=TCP, hdr_ext_len=6, type=4, left=0, last_entry=2
	0x06, 0x06, 0x04, 0x00, 0x02, 0x00, 0x00, 0x00,
	0x20, 0x01, 0x0d, 0xb8, 0x85, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x8a, 0x2e, 0x03, 0x70, 0x73, 0x33,
	0x20, 0x01, 0x0d, 0xb8, 0x85, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x8a, 0x2e, 0x03, 0x70, 0x73, 0x34,
	0x20, 0x01, 0x0d, 0xb8, 0x85, 0xa3, 0x00, 0x00, 0x00, 0x00, 0x8a, 0x2e, 0x03, 0x70, 0x73, 0x35,
	// TCP: 3464 -> 1024
	0x0d, 0x88, 0x04, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x50, 0x02,
	0x00, 0x0a,
	0x00, 0x00,
	0x00, 0x00,
	// payload
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07,
}

func parseSrh(t *testing.T, data []byte) (*Ipv6, *SegmentRouting) {
	t.Helper()
	eth, err := ParseEthernet(RawFromBytes(data))
	require.NoError(t, err)
	ip, err := ParseIpv6(eth)
	require.NoError(t, err)
	srh, err := ParseSegmentRouting(ip)
	require.NoError(t, err)
	return ip, srh
}

func TestParseSegmentRouting(t *testing.T) {
	_, srh := parseSrh(t, srhPacket)

	assert.Equal(t, ProtoTCP, srh.NextHeader())
	assert.Equal(t, uint8(6), srh.HdrExtLen())
	assert.Equal(t, uint8(4), srh.RoutingType())
	assert.Equal(t, uint8(0), srh.SegmentsLeft())
	assert.Equal(t, uint8(2), srh.LastEntry())
	assert.Equal(t, uint16(0), srh.Tag())

	segs := srh.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, "2001:db8:85a3::8a2e:370:7333", segs[0].String())
	assert.Equal(t, "2001:db8:85a3::8a2e:370:7334", segs[1].String())
	assert.Equal(t, "2001:db8:85a3::8a2e:370:7335", segs[2].String())

	assert.Equal(t, srhFixedSize+48, srh.HeaderLen())
}

func TestSetSegments(t *testing.T) {
	_, srh := parseSrh(t, srhPacket)
	oldLen := srh.Mbuf().DataLen()

	seg1 := netip.MustParseAddr("::1")
	require.NoError(t, srh.SetSegments([]netip.Addr{seg1}))
	assert.Equal(t, uint8(2), srh.HdrExtLen())
	assert.Equal(t, uint8(0), srh.LastEntry())
	require.Len(t, srh.Segments(), 1)
	assert.Equal(t, seg1, srh.Segments()[0])
	assert.Equal(t, oldLen-32, srh.Mbuf().DataLen())

	seg2 := netip.MustParseAddr("::2")
	seg3 := netip.MustParseAddr("::3")
	seg4 := netip.MustParseAddr("::4")
	require.NoError(t, srh.SetSegments([]netip.Addr{seg1, seg2, seg3, seg4}))
	assert.Equal(t, uint8(8), srh.HdrExtLen())
	assert.Equal(t, uint8(3), srh.LastEntry())
	require.Len(t, srh.Segments(), 4)
	assert.Equal(t, seg4, srh.Segments()[3])

	assert.Error(t, srh.SetSegments(nil))
}

func TestSetSegmentsKeepsPayloadIntact(t *testing.T) {
	_, srh := parseSrh(t, srhPacket)
	require.NoError(t, srh.SetSegments([]netip.Addr{netip.MustParseAddr("::1")}))

	tcp, err := ParseTcp(srh)
	require.NoError(t, err)
	assert.Equal(t, uint16(3464), tcp.SrcPort())
	assert.Equal(t, uint16(1024), tcp.DstPort())
	// trailer byte survived the shift
	data := srh.Mbuf().Data()
	assert.Equal(t, uint8(0x07), data[len(data)-1])
}

func TestPushSegmentRouting(t *testing.T) {
	eth, err := ParseEthernet(RawFromBytes(ipv6TcpPacket))
	require.NoError(t, err)
	ip, err := ParseIpv6(eth)
	require.NoError(t, err)
	oldPayloadLen := ip.PayloadLen()

	srh, err := PushSegmentRouting(ip)
	require.NoError(t, err)
	assert.Equal(t, ProtoRouting, ip.NextHeader())
	assert.Equal(t, ProtoTCP, srh.NextHeader())

	segs := []netip.Addr{
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("2001:db8::2"),
	}
	require.NoError(t, srh.SetSegments(segs))
	assert.Equal(t, uint8(4), srh.HdrExtLen())
	assert.Equal(t, uint8(1), srh.LastEntry())

	srh.Cascade()
	assert.Equal(t, oldPayloadLen+40, ip.PayloadLen())

	// the TCP header shifted down intact
	tcp, err := ParseTcp(srh)
	require.NoError(t, err)
	assert.Equal(t, uint16(36869), tcp.SrcPort())
	assert.Equal(t, uint16(23), tcp.DstPort())
}

func TestSegmentRoutingInconsistentLength(t *testing.T) {
	bad := append([]byte{}, srhPacket...)
	bad[54+4] = 7 // last_entry no longer matches hdr_ext_len
	eth, err := ParseEthernet(RawFromBytes(bad))
	require.NoError(t, err)
	ip, err := ParseIpv6(eth)
	require.NoError(t, err)
	_, err = ParseSegmentRouting(ip)
	assert.Error(t, err)
}
