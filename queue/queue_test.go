package queue

import (
	"sync"
	"testing"

	"github.com/netsys-io/netbricks/mbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundUpPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, RoundUpPowerOfTwo(0))
	assert.Equal(t, 1, RoundUpPowerOfTwo(1))
	assert.Equal(t, 2, RoundUpPowerOfTwo(2))
	assert.Equal(t, 4, RoundUpPowerOfTwo(3))
	assert.Equal(t, 4, RoundUpPowerOfTwo(4))
	assert.Equal(t, 8, RoundUpPowerOfTwo(5))
	assert.Equal(t, 1024, RoundUpPowerOfTwo(1000))
}

func TestSpscFifo(t *testing.T) {
	q := NewSpsc(8)
	ms := make([]*mbuf.Mbuf, 5)
	for i := range ms {
		ms[i] = mbuf.FromBytes([]byte{byte(i)})
	}
	assert.Equal(t, 5, q.Enqueue(ms))
	assert.Equal(t, 5, q.Available())

	out := make([]*mbuf.Mbuf, 8)
	n := q.Dequeue(out)
	require.Equal(t, 5, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), out[i].Data()[0])
	}
}

func TestSpscFull(t *testing.T) {
	// a ring of size 4 holds mask = 3 entries
	q := NewSpsc(4)
	m := mbuf.New()
	assert.True(t, q.EnqueueOne(m))
	assert.True(t, q.EnqueueOne(m))
	assert.True(t, q.EnqueueOne(m))
	assert.False(t, q.EnqueueOne(m))

	require.NotNil(t, q.DequeueOne())
	assert.True(t, q.EnqueueOne(m))
}

func TestSpscWrapAround(t *testing.T) {
	q := NewSpsc(4)
	for round := 0; round < 100; round++ {
		m := mbuf.FromBytes([]byte{byte(round)})
		require.True(t, q.EnqueueOne(m))
		got := q.DequeueOne()
		require.NotNil(t, got)
		require.Equal(t, byte(round), got.Data()[0])
	}
	assert.Nil(t, q.DequeueOne())
}

func TestSpscCrossGoroutine(t *testing.T) {
	q := NewSpsc(64)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sent := 0
		for sent < total {
			m := mbuf.FromBytes([]byte{byte(sent), byte(sent >> 8)})
			for !q.EnqueueOne(m) {
			}
			sent++
		}
	}()

	received := 0
	for received < total {
		m := q.DequeueOne()
		if m == nil {
			continue
		}
		want := uint16(received)
		got := uint16(m.Data()[0]) | uint16(m.Data()[1])<<8
		require.Equal(t, want, got)
		received++
	}
	wg.Wait()
}

func TestMpscPerProducerFifo(t *testing.T) {
	q := NewMpsc(1024)
	const producers = 4
	const perProducer = 2000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m := mbuf.FromBytes([]byte{byte(id), byte(i), byte(i >> 8)})
				for !q.EnqueueOne(m) {
				}
			}
		}(p)
	}

	lastSeen := make([]int, producers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}
	received := 0
	buf := make([]*mbuf.Mbuf, 32)
	for received < producers*perProducer {
		n := q.Dequeue(buf)
		for i := 0; i < n; i++ {
			id := int(buf[i].Data()[0])
			seq := int(buf[i].Data()[1]) | int(buf[i].Data()[2])<<8
			require.Greater(t, seq, lastSeen[id], "producer %d reordered", id)
			lastSeen[id] = seq
			received++
		}
	}
	wg.Wait()
}

func TestMpscSingleProducerFastPath(t *testing.T) {
	q := NewMpsc(8)
	ms := make([]*mbuf.Mbuf, 5)
	for i := range ms {
		ms[i] = mbuf.FromBytes([]byte{byte(i)})
	}
	assert.Equal(t, 5, q.EnqueueSP(ms))

	out := make([]*mbuf.Mbuf, 8)
	n := q.Dequeue(out)
	require.Equal(t, 5, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), out[i].Data()[0])
	}
}

func TestMpscEnqueueClampsToFree(t *testing.T) {
	q := NewMpsc(4)
	ms := make([]*mbuf.Mbuf, 10)
	for i := range ms {
		ms[i] = mbuf.New()
	}
	assert.Equal(t, 3, q.Enqueue(ms))
	assert.Equal(t, 0, q.Enqueue(ms))
}

func TestSingleThreadedQueue(t *testing.T) {
	q := NewSingleThreaded[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.False(t, q.Enqueue(99))
	assert.Equal(t, 4, q.Len())

	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}
