package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/port"
)

// End-to-end UDP echo: parse, swap MACs, swap IPv4 addresses, cascade,
// send. The output must carry the swapped addresses with the UDP length
// unchanged and the checksum recomputed to the same wire value.
func TestUdpEchoPipeline(t *testing.T) {
	near, far := port.NewVirtualPortPair("near", "far")
	nearQ, err := near.Queue(0, 0)
	require.NoError(t, err)
	farQ, err := far.Queue(0, 0)
	require.NoError(t, err)

	require.True(t, near.InjectOne(mbuf.FromBytes(udpFrame)))

	eth := Transform(
		Parse(Receive(nearQ), packets.ParseEthernet),
		func(e *packets.Ethernet) { e.SwapAddresses() },
	)
	echoed := Transform(
		Parse(Parse(eth, packets.ParseIpv4), func(p *packets.Ipv4) (*packets.Udp, error) {
			return packets.ParseUdp(p)
		}),
		func(u *packets.Udp) {
			env := u.Deparse().(*packets.Ipv4)
			src, dst := env.Src(), env.Dst()
			_ = env.SetSrc(dst)
			_ = env.SetDst(src)
			u.Cascade()
		},
	)
	pipeline := Send(echoed, nearQ)
	pipeline.RunOnce()

	out := make([]*mbuf.Mbuf, 8)
	n := farQ.Recv(out)
	require.Equal(t, 1, n)

	outEth, err := packets.ParseEthernet(packets.NewRaw(out[0]))
	require.NoError(t, err)
	assert.Equal(t, "00:00:00:00:00:01", outEth.Src().String())
	assert.Equal(t, "00:00:00:00:00:02", outEth.Dst().String())

	outIP, err := packets.ParseIpv4(outEth)
	require.NoError(t, err)
	assert.Equal(t, "139.133.233.2", outIP.Src().String())
	assert.Equal(t, "139.133.217.110", outIP.Dst().String())

	outUdp, err := packets.ParseUdp(outIP)
	require.NoError(t, err)
	assert.Equal(t, uint16(18), outUdp.Length())
	assert.Equal(t, uint16(0x7228), outUdp.Checksum())
}

// A full-burst receive drains before the source pulls again, and frames
// make it out the far side in RX order.
func TestReceiveOrderPreserved(t *testing.T) {
	near, far := port.NewVirtualPortPair("a", "b")
	nearQ, _ := near.Queue(0, 0)
	farQ, _ := far.Queue(0, 0)

	for i := 0; i < 10; i++ {
		frame := append([]byte{}, udpFrame...)
		frame[len(frame)-1] = byte(i)
		require.True(t, near.InjectOne(mbuf.FromBytes(frame)))
	}

	pipeline := Send(Receive(nearQ), nearQ)
	pipeline.RunOnce()

	out := make([]*mbuf.Mbuf, 32)
	n := farQ.Recv(out)
	require.Equal(t, 10, n)
	for i := 0; i < n; i++ {
		data := out[i].Data()
		assert.Equal(t, byte(i), data[len(data)-1])
	}
}

// Unsent frames stay pending across ticks instead of leaking or being
// transmitted twice.
func TestSendKeepsUnsentPending(t *testing.T) {
	near, _ := port.NewVirtualPortPair("x", "y")
	nearQ, _ := near.Queue(0, 0)

	require.True(t, near.InjectOne(mbuf.FromBytes(udpFrame)))

	null := port.NewNullPort("sink")
	nullQ, _ := null.Queue(0, 0)

	pipeline := Send(Receive(nearQ), nullQ)
	pipeline.RunOnce()
	assert.Equal(t, 1, pipeline.Pending())

	pipeline.RunOnce()
	assert.Equal(t, 1, pipeline.Pending())

	pipeline.Release()
	assert.Equal(t, 0, pipeline.Pending())
}
