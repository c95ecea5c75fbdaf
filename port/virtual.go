package port

import (
	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/queue"
)

const virtualRingSize = 1024

// VirtualPort is a port backed by a pair of SPSC rings. Two cross-wired
// instances form an in-process cable; a loopback instance echoes its own
// transmissions back to its receive side.
type VirtualPort struct {
	name  string
	mac   packets.MacAddr
	rx    *queue.Spsc
	tx    *queue.Spsc
	stats QueueStats
}

// NewVirtualPortPair creates two ports wired back-to-back: frames sent on
// one are received on the other.
func NewVirtualPortPair(nameA, nameB string) (*VirtualPort, *VirtualPort) {
	ab := queue.NewSpsc(virtualRingSize)
	ba := queue.NewSpsc(virtualRingSize)
	a := &VirtualPort{name: nameA, mac: packets.MacAddr{0x02, 0, 0, 0, 0, 0x0a}, rx: ba, tx: ab}
	b := &VirtualPort{name: nameB, mac: packets.MacAddr{0x02, 0, 0, 0, 0, 0x0b}, rx: ab, tx: ba}
	return a, b
}

// NewLoopbackPort creates a port whose transmissions come back on its own
// receive queue.
func NewLoopbackPort(name string) *VirtualPort {
	ring := queue.NewSpsc(virtualRingSize)
	return &VirtualPort{name: name, mac: packets.MacAddr{0x02, 0, 0, 0, 0, 0x01}, rx: ring, tx: ring}
}

// InjectOne places a frame on the receive side directly. Test helper.
func (p *VirtualPort) InjectOne(m *mbuf.Mbuf) bool { return p.rx.EnqueueOne(m) }

// DrainOne removes one transmitted frame. Test helper for the pair's far
// end when no pipeline runs there.
func (p *VirtualPort) DrainOne() *mbuf.Mbuf { return p.tx.DequeueOne() }

func (p *VirtualPort) Name() string                { return p.name }
func (p *VirtualPort) MacAddress() packets.MacAddr { return p.mac }
func (p *VirtualPort) Rxqs() int                   { return 1 }
func (p *VirtualPort) Txqs() int                   { return 1 }

func (p *VirtualPort) Recv(ms []*mbuf.Mbuf) int { return p.rx.Dequeue(ms) }
func (p *VirtualPort) Send(ms []*mbuf.Mbuf) int { return p.tx.Enqueue(ms) }

func (p *VirtualPort) Queue(rxq, txq int) (*PortQueue, error) {
	return newPortQueue(p, p, p, rxq, txq, &p.stats), nil
}

func (p *VirtualPort) Stats(queue int) (rx, tx uint64) {
	return p.stats.RxPackets.Load(), p.stats.TxPackets.Load()
}
