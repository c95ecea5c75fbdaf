package packets

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumIncremental(t *testing.T) {
	// RFC 1624 worked example.
	assert.Equal(t, uint16(0x0000), ChecksumInc(0xdd2f, []uint16{0x5555}, []uint16{0x3285}))
}

func TestChecksumIncAddrEqualsFullRecompute(t *testing.T) {
	eth, _ := ParseEthernet(RawFromBytes(udpPacket))
	ip, err := ParseIpv4(eth)
	require.NoError(t, err)
	udp, err := ParseUdp(ip)
	require.NoError(t, err)

	newIP := netip.MustParseAddr("10.1.2.3")
	require.NoError(t, udp.SetSrcIP(newIP))
	incremental := udp.Checksum()

	// full recompute over the rewritten packet must agree
	udp.Cascade()
	assert.Equal(t, incremental, udp.Checksum())

	// family mismatch is rejected
	assert.Error(t, udp.SetSrcIP(netip.MustParseAddr("2001:db8::1")))
}

func TestChecksumIncAddrV6(t *testing.T) {
	eth, _ := ParseEthernet(RawFromBytes(ipv6TcpPacket))
	ip, err := ParseIpv6(eth)
	require.NoError(t, err)
	tcp, err := ParseTcp(ip)
	require.NoError(t, err)

	// seed a valid checksum first
	tcp.Cascade()
	before := tcp.Checksum()

	newIP := netip.MustParseAddr("2001:db8:85a3::42")
	require.NoError(t, tcp.SetDstIP(newIP))
	assert.NotEqual(t, before, tcp.Checksum())

	incremental := tcp.Checksum()
	tcp.Cascade()
	assert.Equal(t, incremental, tcp.Checksum())
}

func TestCascadeIdempotent(t *testing.T) {
	eth, _ := ParseEthernet(RawFromBytes(udpPacket))
	ip, err := ParseIpv4(eth)
	require.NoError(t, err)
	udp, err := ParseUdp(ip)
	require.NoError(t, err)

	// no mutation: a recompute must reproduce the wire checksums
	udp.Cascade()
	assert.Equal(t, uint16(0x7228), udp.Checksum())
	assert.Equal(t, uint16(18), udp.Length())
	assert.Equal(t, uint16(38), ip.TotalLength())
	assert.Equal(t, uint16(0xf700), ip.Checksum())
}

func TestTcpCascadeIdempotent(t *testing.T) {
	eth, _ := ParseEthernet(RawFromBytes(tcpPacket))
	ip, err := ParseIpv4(eth)
	require.NoError(t, err)
	tcp, err := ParseTcp(ip)
	require.NoError(t, err)

	tcp.Cascade()
	assert.Equal(t, uint16(0xa92c), tcp.Checksum())
	assert.Equal(t, uint16(0x9997), ip.Checksum())
}

func TestUdpEchoRewrite(t *testing.T) {
	// parse -> swap MACs -> swap IPv4 addresses -> cascade: the UDP
	// length is unchanged and the checksum recompute is bit-stable
	// because the address sum is commutative.
	eth, err := ParseEthernet(RawFromBytes(udpPacket))
	require.NoError(t, err)
	eth.SwapAddresses()
	ip, err := ParseIpv4(eth)
	require.NoError(t, err)
	udp, err := ParseUdp(ip)
	require.NoError(t, err)

	src, dst := ip.Src(), ip.Dst()
	require.NoError(t, ip.SetSrc(dst))
	require.NoError(t, ip.SetDst(src))
	udp.Cascade()

	assert.Equal(t, "00:00:00:00:00:01", eth.Src().String())
	assert.Equal(t, "00:00:00:00:00:02", eth.Dst().String())
	assert.Equal(t, "139.133.233.2", ip.Src().String())
	assert.Equal(t, "139.133.217.110", ip.Dst().String())
	assert.Equal(t, uint16(18), udp.Length())
	assert.Equal(t, uint16(0x7228), udp.Checksum())
}

func TestUdpZeroChecksumRule(t *testing.T) {
	eth, _ := ParseEthernet(RawFromBytes(udpPacket))
	ip, _ := ParseIpv4(eth)
	udp, err := ParseUdp(ip)
	require.NoError(t, err)

	udp.NoChecksum()
	assert.Equal(t, uint16(0), udp.Checksum())

	udp.setChecksum(0)
	assert.Equal(t, uint16(0xFFFF), udp.Checksum())
}
