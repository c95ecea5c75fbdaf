package packets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 78-byte router advertisement with one MTU option.
var routerAdvertPacket = []byte{
	// ethernet
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	0x86, 0xDD,
	// IPv6: payload_len=24, next=ICMPv6, hop=255
	0x60, 0x00, 0x00, 0x00,
	0x00, 0x18,
	0x3a,
	0xff,
	0xfe, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xd4, 0xf0, 0x45, 0xff, 0xfe, 0x0c, 0x66, 0x4b,
	0xff, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	// ICMPv6: router advertisement
	0x86, 0x00, 0xf5, 0x0c,
	// hop limit, flags, router lifetime
	0x40, 0x58, 0x07, 0x08,
	// reachable time, retrans timer
	0x00, 0x00, 0x08, 0x07,
	0x00, 0x00, 0x05, 0xdc,
	// MTU option
	0x05, 0x01, 0x00, 0x00, 0x00, 0x00, 0x05, 0xdc,
}

func parseRouterAdvert(t *testing.T, data []byte) *Icmpv6 {
	t.Helper()
	eth, err := ParseEthernet(RawFromBytes(data))
	require.NoError(t, err)
	ip, err := ParseIpv6(eth)
	require.NoError(t, err)
	require.Equal(t, ProtoICMPv6, ip.NextHeader())
	icmp, err := ParseIcmpv6(ip)
	require.NoError(t, err)
	return icmp
}

func TestParseRouterAdvertisement(t *testing.T) {
	icmp := parseRouterAdvert(t, routerAdvertPacket)
	assert.Equal(t, Icmpv6RouterAdvertisement, icmp.MsgType())
	assert.Equal(t, uint8(0), icmp.Code())
	assert.Equal(t, uint16(0xf50c), icmp.Checksum())

	ra, err := RouterAdvert(icmp)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x40), ra.CurrentHopLimit())
	assert.Equal(t, uint16(0x0708), ra.RouterLifetime())
	assert.Equal(t, uint32(0x0807), ra.ReachableTime())
	assert.Equal(t, uint32(0x05dc), ra.RetransTimer())
}

func TestNdpOptionsIterator(t *testing.T) {
	icmp := parseRouterAdvert(t, routerAdvertPacket)
	ra, err := RouterAdvert(icmp)
	require.NoError(t, err)

	it := ra.Options()
	opt, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, opt)
	assert.Equal(t, uint8(ndpMtu), opt.Kind)
	assert.Equal(t, uint32(0x05dc), opt.Mtu)

	opt, err = it.Next()
	require.NoError(t, err)
	assert.Nil(t, opt)
}

func TestNdpZeroLengthOption(t *testing.T) {
	bad := append([]byte{}, routerAdvertPacket...)
	bad[len(bad)-7] = 0 // option length byte
	icmp := parseRouterAdvert(t, bad)
	ra, err := RouterAdvert(icmp)
	require.NoError(t, err)

	_, err = ra.Options().Next()
	assert.Error(t, err)
}

func TestIcmpv6CascadeRecomputesChecksum(t *testing.T) {
	icmp := parseRouterAdvert(t, routerAdvertPacket)
	icmp.Cascade()
	first := icmp.Checksum()
	// recomputing over unchanged bytes is stable
	icmp.Cascade()
	assert.Equal(t, first, icmp.Checksum())
	assert.NotZero(t, first)
}
