package mbuf

import (
	"errors"
	"sync"
)

// ErrPoolExhausted reports a bulk allocation that could not be satisfied.
// Bulk allocation is all-or-nothing: a partial burst is never handed out.
var ErrPoolExhausted = errors.New("mbuf pool exhausted")

// Pool owns a fixed set of mbufs and hands them out in bulk. The pipeline
// never allocates a single mbuf: receive paths and push operators take
// bursts via AllocBulk, terminators return them via FreeBulk.
type Pool struct {
	mu        sync.Mutex
	free      []*Mbuf
	capacity  int
	frameSize int
}

// NewPool preallocates size mbufs of frameSize bytes each.
func NewPool(size, frameSize int) *Pool {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	p := &Pool{
		free:      make([]*Mbuf, size),
		capacity:  size,
		frameSize: frameSize,
	}
	for i := range p.free {
		m := newWithSize(frameSize)
		m.pool = p
		p.free[i] = m
	}
	return p
}

// AllocBulk fills out with mbufs whose data regions are perLen bytes long.
// Either every slot is filled or none is.
func (p *Pool) AllocBulk(out []*Mbuf, perLen uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < len(out) {
		return ErrPoolExhausted
	}
	n := len(p.free)
	for i := range out {
		m := p.free[n-1-i]
		m.reset(int(perLen))
		out[i] = m
	}
	p.free = p.free[:n-len(out)]
	return nil
}

// FreeBulk returns mbufs to their pools. Pool-less mbufs (tests, virtual
// ports) are simply dropped for the GC. nil entries are skipped so callers
// can free sparse arrays.
func FreeBulk(in []*Mbuf) {
	for _, m := range in {
		if m == nil || m.pool == nil {
			continue
		}
		m.pool.put(m)
	}
}

func (p *Pool) put(m *Mbuf) {
	p.mu.Lock()
	p.free = append(p.free, m)
	p.mu.Unlock()
}

// Available reports how many mbufs are currently free.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Outstanding reports how many mbufs are held by the pipeline. Tests use
// this to check the no-leak ownership discipline.
func (p *Pool) Outstanding() int {
	return p.capacity - p.Available()
}
