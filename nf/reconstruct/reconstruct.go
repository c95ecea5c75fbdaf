// Package reconstruct is the TCP flow reconstruction network function:
// it steers TCP traffic through a per-flow reordered buffer and dumps
// each flow's reassembled byte stream when the flow finishes. It is the
// canonical stateful pipeline: group-by, typed metadata, and per-flow
// state working together.
package reconstruct

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/netsys-io/netbricks/batch"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/state"
)

const (
	// bufferSize is the per-flow reassembly window.
	bufferSize = 2048
	// readSize is the chunk size for draining available bytes.
	readSize = 256
)

var (
	resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netbricks_reassembly_resets_total",
		Help: "Reassembly buffers reset after data arrived too far ahead of the window.",
	})
	flowsDumped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netbricks_reassembly_flows_dumped_total",
		Help: "Flows whose reassembled payload was dumped on FIN.",
	})
)

// DumpFn receives a finished flow's reassembled payload.
type DumpFn func(flow packets.Flow, payload []byte)

// reassembler is the per-core flow table. A flow is pinned to one core
// by RSS, so there is nothing to synchronize.
type reassembler struct {
	rbMap        map[packets.Flow]*state.ReorderedBuffer
	payloadCache map[packets.Flow][]byte
	counts       *state.MergeableStoreDP[uint64]
	dump         DumpFn
	readBuf      [readSize]byte
	log          *logrus.Entry
}

// Reconstruction builds the NF over a raw-packet source: parse Ethernet,
// swap MACs, parse IPv4, split TCP from the rest, and reassemble TCP
// per flow. counts aggregates reassembled byte totals per flow for the
// control plane; dump observes finished flows.
func Reconstruction(
	parent batch.Batch[*packets.Raw],
	counts *state.MergeableStoreDP[uint64],
	dump DumpFn,
) batch.Batch[packets.Packet] {
	r := &reassembler{
		rbMap:        make(map[packets.Flow]*state.ReorderedBuffer),
		payloadCache: make(map[packets.Flow][]byte),
		counts:       counts,
		dump:         dump,
		log:          logrus.WithField("nf", "reconstruction"),
	}

	ip4 := batch.Parse(
		batch.Transform(
			batch.Parse(parent, packets.ParseEthernet),
			func(e *packets.Ethernet) { e.SwapAddresses() },
		),
		packets.ParseIpv4,
	)

	return batch.GroupBy(ip4, 2,
		func(p *packets.Ipv4) int {
			if p.Protocol() == packets.ProtoTCP {
				return 0
			}
			return 1
		},
		func(groups map[int]*batch.QueueBatch[*packets.Ipv4]) []batch.Batch[packets.Packet] {
			tcpSide := batch.Transform(
				batch.Parse(
					batch.Metadata(groups[0], func(p *packets.Ipv4) packets.Flow {
						f, _ := p.Flow()
						return f
					}),
					func(p *packets.Ipv4) (*packets.Tcp, error) { return packets.ParseTcp(p) },
				),
				r.handleSegment,
			)
			return []batch.Batch[packets.Packet]{
				batch.Compose[*packets.Tcp](tcpSide),
				batch.Compose[*packets.Ipv4](groups[1]),
			}
		},
	)
}

func (r *reassembler) handleSegment(p *packets.Tcp) {
	flow, err := packets.ReadMetadata[packets.Flow](p)
	if err != nil {
		r.log.WithError(err).Warn("segment without flow metadata")
		return
	}
	seq := p.SeqNo()
	payload := p.Payload()

	rb, tracked := r.rbMap[flow]
	if !tracked {
		r.trackFlow(flow, p, seq, payload)
		return
	}

	res := rb.AddData(seq, payload)
	switch {
	case !res.OutOfMemory:
		r.readPayload(rb, flow)
	case res.Written == 0:
		r.log.WithField("flow", flow.String()).
			Warn("resetting: data too far ahead of the window")
		resets.Inc()
		rb.Reset()
		rb.Seq(seq, payload)
		r.readPayload(rb, flow)
	}

	switch {
	case p.Rst():
		r.dropFlow(flow)
	case p.Fin():
		r.finishFlow(flow)
	}
}

// trackFlow seeds a reassembler for a flow seen for the first time.
func (r *reassembler) trackFlow(flow packets.Flow, p *packets.Tcp, seq uint32, payload []byte) {
	rb, err := state.NewReorderedBuffer(bufferSize)
	if err != nil {
		r.log.WithError(err).Error("could not allocate reassembly buffer")
		return
	}
	if p.Syn() {
		// data starts one past the SYN's sequence number
		seq++
	} else {
		r.log.WithField("flow", flow.String()).
			Warn("untracked flow without SYN, using packet seq")
	}
	res := rb.Seq(seq, payload)
	if res.OutOfMemory {
		r.log.WithField("flow", flow.String()).Warn("initial segment larger than window")
		rb.Close()
		return
	}
	r.rbMap[flow] = rb
	r.readPayload(rb, flow)

	if p.Rst() {
		r.dropFlow(flow)
	} else if p.Fin() {
		r.finishFlow(flow)
	}
}

// readPayload drains everything in-order into the flow's payload cache.
func (r *reassembler) readPayload(rb *state.ReorderedBuffer, flow packets.Flow) {
	total := 0
	for rb.Available() > 0 {
		n := rb.ReadData(r.readBuf[:])
		if n == 0 {
			break
		}
		r.payloadCache[flow] = append(r.payloadCache[flow], r.readBuf[:n]...)
		total += n
	}
	if total > 0 {
		r.counts.Update(flow, uint64(total))
	}
}

// dropFlow forgets a flow without output (RST).
func (r *reassembler) dropFlow(flow packets.Flow) {
	if rb, ok := r.rbMap[flow]; ok {
		rb.Close()
		delete(r.rbMap, flow)
	}
	delete(r.payloadCache, flow)
}

// finishFlow dumps the reassembled payload (FIN) and forgets the flow.
func (r *reassembler) finishFlow(flow packets.Flow) {
	payload, ok := r.payloadCache[flow]
	if ok {
		r.dump(flow, payload)
		flowsDumped.Inc()
	} else {
		r.log.WithField("flow", flow.String()).Info("dumped an empty payload")
		r.dump(flow, nil)
	}
	r.dropFlow(flow)
}
