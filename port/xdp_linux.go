//go:build linux

package port

import (
	"fmt"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/xdp"

	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/packets"
)

const (
	xdpNFrames      = 4096
	xdpNDescriptors = 2048
)

// XdpPort drives a NIC queue through an AF_XDP socket. An eBPF program
// attached to the interface redirects the queue's traffic into the
// socket's UMEM; Recv copies arriving frames into pool mbufs and Send
// copies pipeline mbufs into free UMEM frames.
type XdpPort struct {
	name    string
	queueID uint32
	cb      *xdp.ControlBlock
	coll    *ebpf.Collection
	link    link.Link
	mac     packets.MacAddr
	pool    *mbuf.Pool
	stats   QueueStats
	log     *logrus.Entry
}

// XdpConfig selects the interface, queue and the eBPF redirect object.
type XdpConfig struct {
	Interface string
	QueueID   uint32
	// ObjPath is the compiled XDP redirect program. The program must
	// expose an "xdp_redirect_port" program and an "xsks_map" XSKMAP.
	ObjPath string
}

// NewXdpPort opens the AF_XDP socket, loads and attaches the redirect
// program, and wires the socket into the XSKMAP.
func NewXdpPort(cfg XdpConfig, pool *mbuf.Pool) (*XdpPort, error) {
	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
	}

	spec, err := ebpf.LoadCollectionSpec(cfg.ObjPath)
	if err != nil {
		return nil, fmt.Errorf("load XDP object: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("create eBPF collection: %w", err)
	}
	prog := coll.Programs["xdp_redirect_port"]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("xdp_redirect_port program not found in %s", cfg.ObjPath)
	}
	xsksMap := coll.Maps["xsks_map"]
	if xsksMap == nil {
		coll.Close()
		return nil, fmt.Errorf("xsks_map not found in %s", cfg.ObjPath)
	}

	opts := xdp.DefaultOpts()
	opts.NFrames = xdpNFrames
	opts.FrameSize = mbuf.DefaultFrameSize
	opts.NDescriptors = xdpNDescriptors
	opts.Bind = true
	opts.UseNeedWakeup = true

	cb, err := xdp.New(uint32(ifi.Index), cfg.QueueID, opts)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("create AF_XDP socket: %w", err)
	}

	if err := xsksMap.Update(cfg.QueueID, uint32(cb.UMEM.SockFD()), ebpf.UpdateAny); err != nil {
		coll.Close()
		return nil, fmt.Errorf("insert socket into xsks_map: %w", err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifi.Index,
		Flags:     link.XDPDriverMode,
	})
	if err != nil {
		// driver mode is not supported everywhere
		l, err = link.AttachXDP(link.XDPOptions{
			Program:   prog,
			Interface: ifi.Index,
			Flags:     link.XDPGenericMode,
		})
		if err != nil {
			coll.Close()
			return nil, fmt.Errorf("attach XDP: %w", err)
		}
	}

	var mac packets.MacAddr
	if len(ifi.HardwareAddr) == 6 {
		copy(mac[:], ifi.HardwareAddr)
	}

	p := &XdpPort{
		name:    "xdp:" + cfg.Interface,
		queueID: cfg.QueueID,
		cb:      cb,
		coll:    coll,
		link:    l,
		mac:     mac,
		pool:    pool,
		log:     logrus.WithField("port", "xdp:"+cfg.Interface),
	}

	cb.UMEM.Lock()
	cb.Fill.FillAll(&cb.UMEM)
	cb.UMEM.Unlock()

	p.log.WithFields(logrus.Fields{
		"queue":  cfg.QueueID,
		"frames": xdpNFrames,
	}).Info("AF_XDP port ready")
	return p, nil
}

// Close detaches the XDP program and releases the eBPF collection.
func (p *XdpPort) Close() error {
	if p.link != nil {
		p.link.Close()
	}
	if p.coll != nil {
		p.coll.Close()
	}
	return nil
}

func (p *XdpPort) Name() string                { return p.name }
func (p *XdpPort) MacAddress() packets.MacAddr { return p.mac }
func (p *XdpPort) Rxqs() int                   { return 1 }
func (p *XdpPort) Txqs() int                   { return 1 }

// Recv drains completed transmissions, then copies up to len(ms) received
// frames out of the UMEM into pool mbufs and refills the fill queue.
func (p *XdpPort) Recv(ms []*mbuf.Mbuf) int {
	p.cb.UMEM.Lock()
	defer func() {
		p.cb.Fill.FillAll(&p.cb.UMEM)
		p.cb.UMEM.Unlock()
	}()

	p.completeTxLocked()

	nReceived, index := p.cb.RX.Peek()
	if nReceived == 0 {
		return 0
	}
	n := min(int(nReceived), len(ms))

	burst := ms[:n]
	if err := p.pool.AllocBulk(burst, 0); err != nil {
		// leave the descriptors for the next poll rather than drop
		p.log.WithError(err).Warn("mbuf pool exhausted on RX")
		return 0
	}

	for i := 0; i < n; i++ {
		desc := p.cb.RX.Get(index + uint32(i))
		frame := p.cb.UMEM.Get(desc)
		if len(frame) > burst[i].Tailroom() {
			// frame exceeds the mbuf data region; release it and leave
			// this mbuf empty
			p.cb.UMEM.FreeFrame(uint64(desc.Addr))
			continue
		}
		burst[i].AddDataEnd(len(frame))
		copy(burst[i].Data(), frame)
		p.cb.UMEM.FreeFrame(uint64(desc.Addr))
	}
	p.cb.RX.Release(uint32(n))
	return n
}

// Send copies frames into free UMEM slots and posts them on the TX ring.
// Frames the ring cannot take stay with the caller.
func (p *XdpPort) Send(ms []*mbuf.Mbuf) int {
	p.cb.UMEM.Lock()
	defer p.cb.UMEM.Unlock()

	p.completeTxLocked()

	sent := 0
	for _, m := range ms {
		nReserved, index := p.cb.TX.Reserve(&p.cb.UMEM, 1)
		if nReserved == 0 {
			break
		}
		frameAddr := p.cb.UMEM.AllocFrame()
		if frameAddr == 0 {
			break
		}
		data := m.Data()
		desc := unix.XDPDesc{Addr: frameAddr, Len: uint32(len(data))}
		frame := p.cb.UMEM.Get(desc)
		if len(frame) < len(data) {
			p.cb.UMEM.FreeFrame(frameAddr)
			break
		}
		copy(frame, data)
		p.cb.TX.Set(index, desc)
		sent++
	}
	if sent > 0 {
		p.cb.TX.Notify()
		mbuf.FreeBulk(ms[:sent])
	}
	return sent
}

// completeTxLocked returns transmitted frames to the UMEM free list.
// Caller holds the UMEM lock.
func (p *XdpPort) completeTxLocked() {
	nCompleted, index := p.cb.Completion.Peek()
	if nCompleted == 0 {
		return
	}
	for i := uint32(0); i < nCompleted; i++ {
		p.cb.UMEM.FreeFrame(p.cb.Completion.Get(index + i))
	}
	p.cb.Completion.Release(nCompleted)
}

func (p *XdpPort) Queue(rxq, txq int) (*PortQueue, error) {
	if rxq != 0 || txq != 0 {
		return nil, fmt.Errorf("xdp port exposes a single queue pair")
	}
	return newPortQueue(p, p, p, rxq, txq, &p.stats), nil
}

func (p *XdpPort) Stats(queue int) (rx, tx uint64) {
	return p.stats.RxPackets.Load(), p.stats.TxPackets.Load()
}
