// Package port abstracts the NIC boundary: burst receive and burst
// transmit over mbuf pointers, with per-queue counters. Backends are the
// AF_XDP socket (linux), a null port, and a virtual port made of SPSC
// rings; the pipeline only ever sees the PacketRx/PacketTx contracts.
package port

import (
	"sync/atomic"

	"github.com/netsys-io/netbricks/packets"

	"github.com/netsys-io/netbricks/mbuf"
)

// PacketRx receives a burst of frames. Up to len(ms) mbufs are written;
// the return value is the count actually delivered.
type PacketRx interface {
	Recv(ms []*mbuf.Mbuf) int
}

// PacketTx transmits a burst of frames. The port takes ownership of the
// first n mbufs, where n is the return value; the caller must retry or
// release the remainder.
type PacketTx interface {
	Send(ms []*mbuf.Mbuf) int
}

// Port is a device with one or more RX/TX queue pairs.
type Port interface {
	Name() string
	MacAddress() packets.MacAddr
	Rxqs() int
	Txqs() int
	// Queue returns the queue-pair view used by one core's pipeline.
	Queue(rxq, txq int) (*PortQueue, error)
	// Stats reports cumulative packet counts for a queue.
	Stats(queue int) (rx, tx uint64)
}

// QueueStats counts frames through one queue pair.
type QueueStats struct {
	RxPackets atomic.Uint64
	TxPackets atomic.Uint64
}

// PortQueue binds one RX queue and one TX queue of a port, counting
// traffic. It is what pipelines receive from and send to.
type PortQueue struct {
	port  Port
	rx    PacketRx
	tx    PacketTx
	rxq   int
	txq   int
	stats *QueueStats
}

func newPortQueue(p Port, rx PacketRx, tx PacketTx, rxq, txq int, stats *QueueStats) *PortQueue {
	return &PortQueue{port: p, rx: rx, tx: tx, rxq: rxq, txq: txq, stats: stats}
}

func (q *PortQueue) Recv(ms []*mbuf.Mbuf) int {
	n := q.rx.Recv(ms)
	q.stats.RxPackets.Add(uint64(n))
	return n
}

func (q *PortQueue) Send(ms []*mbuf.Mbuf) int {
	n := q.tx.Send(ms)
	q.stats.TxPackets.Add(uint64(n))
	return n
}

func (q *PortQueue) PortName() string { return q.port.Name() }
func (q *PortQueue) Rxq() int         { return q.rxq }
