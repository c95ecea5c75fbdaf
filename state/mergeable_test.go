package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsys-io/netbricks/packets"
)

func testFlow(port uint16) packets.Flow {
	return packets.Flow{
		Src:     netip.MustParseAddr("10.0.0.1"),
		Dst:     netip.MustParseAddr("10.0.0.2"),
		SrcPort: port,
		DstPort: 80,
		Proto:   packets.ProtoTCP,
	}
}

func sum(a, b uint64) uint64 { return a + b }

func TestMergeableUpdateAndSync(t *testing.T) {
	cp := NewMergeableStoreCP(sum)
	dp := cp.DPStoreWithCacheAndSize(4, 16)

	f := testFlow(1000)
	for i := 0; i < 10; i++ {
		dp.Update(f, 1)
	}
	cp.Sync()
	// at least the two full cache drains are visible
	assert.GreaterOrEqual(t, cp.Get(f), uint64(8))

	dp.Update(f, 0) // stays cached (3 of 4); Remove drains the cache
	got := dp.Remove(f)
	assert.Equal(t, uint64(10), got)

	cp.Sync()
	assert.Equal(t, uint64(0), cp.Get(f))
}

func TestMergeableMultipleFlows(t *testing.T) {
	cp := NewMergeableStoreCP(sum)
	dp := cp.DPStoreWithCacheAndSize(1, 16)

	for port := uint16(0); port < 8; port++ {
		dp.Update(testFlow(port), uint64(port))
	}
	cp.Sync()
	assert.Equal(t, 8, cp.Len())
	assert.Equal(t, uint64(5), cp.Get(testFlow(5)))
}

func TestMergeableRemoveDrainsCache(t *testing.T) {
	cp := NewMergeableStoreCP(sum)
	dp := cp.DPStoreWithCacheAndSize(1024, 16)

	f := testFlow(42)
	dp.Update(f, 7)
	// cache not yet merged; remove must still see the update
	assert.Equal(t, uint64(7), dp.Remove(f))
}

func TestMergeableCacheGrowsUnderContention(t *testing.T) {
	cp := NewMergeableStoreCP(sum)
	dp := cp.DPStoreWithCacheAndSize(2, 16)

	// hold the write lock so the data plane cannot merge
	dp.flowCounters.mu.Lock()
	for i := 0; i < 10; i++ {
		dp.Update(testFlow(uint16(i)), 1)
	}
	assert.Greater(t, dp.cacheSize, 2)
	dp.flowCounters.mu.Unlock()

	// with the lock released the next threshold crossing drains
	for i := 0; i < dp.cacheSize; i++ {
		dp.Update(testFlow(uint16(i)), 1)
	}
	cp.Sync()
	assert.NotZero(t, cp.Len())
}

func TestAtomSwap(t *testing.T) {
	type conf struct{ Limit int }
	a := NewAtom(conf{Limit: 1})
	assert.Equal(t, 1, a.Get().Limit)
	a.Set(conf{Limit: 2})
	assert.Equal(t, 2, a.Get().Limit)
}

func TestMergeableSyncMerges(t *testing.T) {
	cp := NewMergeableStoreCP(sum)
	dpA := cp.DPStoreWithCacheAndSize(1, 16)
	dpB := cp.DPStoreWithCacheAndSize(1, 16)

	f := testFlow(7)
	dpA.Update(f, 3)
	dpB.Update(f, 4)
	cp.Sync()
	require.Equal(t, uint64(7), cp.Get(f))
}
