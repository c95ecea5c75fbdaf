package port

import (
	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
)

// NullPort delivers nothing and accepts everything silently. Useful as a
// sink and in tests.
type NullPort struct {
	name  string
	stats QueueStats
}

// NewNullPort creates a null port with a single queue pair.
func NewNullPort(name string) *NullPort {
	if name == "" {
		name = "null"
	}
	return &NullPort{name: name}
}

func (p *NullPort) Name() string                { return p.name }
func (p *NullPort) MacAddress() packets.MacAddr { return packets.MacAddr{} }
func (p *NullPort) Rxqs() int                   { return 1 }
func (p *NullPort) Txqs() int                   { return 1 }

func (p *NullPort) Recv(ms []*mbuf.Mbuf) int { return 0 }
func (p *NullPort) Send(ms []*mbuf.Mbuf) int { return 0 }

func (p *NullPort) Queue(rxq, txq int) (*PortQueue, error) {
	return newPortQueue(p, p, p, rxq, txq, &p.stats), nil
}

func (p *NullPort) Stats(queue int) (rx, tx uint64) {
	return p.stats.RxPackets.Load(), p.stats.TxPackets.Load()
}
