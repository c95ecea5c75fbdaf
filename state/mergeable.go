package state

import (
	"sync"

	"github.com/netsys-io/netbricks/packets"
)

// Per-flow mergeable counters: one control-plane map plus a cache per
// data-plane handle. Updates land in the cache; when it fills, the data
// plane tries the shared map without blocking — on contention the cache
// simply grows. The merge must be commutative, there is no ordering
// guarantee across caches.

const (
	mergeableMapSize  = 1 << 10
	mergeableCache    = 1 << 10
	mergeableCacheCap = 1 << 20
)

type flowEntry[T any] struct {
	flow packets.Flow
	val  T
}

// MergeableStoreCP is the control-plane view: a snapshot map rebuilt from
// the data-plane handles by Sync.
type MergeableStoreCP[T any] struct {
	merge        func(T, T) T
	flowCounters map[packets.Flow]T
	maps         []*sharedFlowMap[T]
}

type sharedFlowMap[T any] struct {
	mu sync.RWMutex
	m  map[packets.Flow]T
}

// NewMergeableStoreCP creates a store whose values combine with merge;
// merge must be associative and commutative.
func NewMergeableStoreCP[T any](merge func(T, T) T) *MergeableStoreCP[T] {
	return &MergeableStoreCP[T]{
		merge:        merge,
		flowCounters: make(map[packets.Flow]T, mergeableMapSize),
	}
}

// DPStore creates a data-plane handle with default cache sizing.
func (cp *MergeableStoreCP[T]) DPStore() *MergeableStoreDP[T] {
	return cp.DPStoreWithCacheAndSize(mergeableCache, mergeableMapSize)
}

// DPStoreWithCacheAndSize creates a data-plane handle. The cache size
// should reflect the update rate the flow table sees.
func (cp *MergeableStoreCP[T]) DPStoreWithCacheAndSize(cache, size int) *MergeableStoreDP[T] {
	shared := &sharedFlowMap[T]{m: make(map[packets.Flow]T, size)}
	cp.maps = append(cp.maps, shared)
	return &MergeableStoreDP[T]{
		merge:         cp.merge,
		flowCounters:  shared,
		cache:         make([]flowEntry[T], 0, cache),
		cacheSize:     cache,
		baseCacheSize: cache,
	}
}

// Sync rebuilds the control-plane map from every data-plane map it can
// read without blocking the data path.
func (cp *MergeableStoreCP[T]) Sync() {
	copies := make([][]flowEntry[T], 0, len(cp.maps))
	for _, shared := range cp.maps {
		if shared.mu.TryRLock() {
			snapshot := make([]flowEntry[T], 0, len(shared.m))
			for f, v := range shared.m {
				snapshot = append(snapshot, flowEntry[T]{flow: f, val: v})
			}
			shared.mu.RUnlock()
			copies = append(copies, snapshot)
		}
	}
	clear(cp.flowCounters)
	for _, snapshot := range copies {
		for _, e := range snapshot {
			if old, ok := cp.flowCounters[e.flow]; ok {
				cp.flowCounters[e.flow] = cp.merge(old, e.val)
			} else {
				cp.flowCounters[e.flow] = e.val
			}
		}
	}
}

// Get returns the synced value for a flow, or the zero value.
func (cp *MergeableStoreCP[T]) Get(flow packets.Flow) T {
	return cp.flowCounters[flow]
}

// Len reports the synced flow count.
func (cp *MergeableStoreCP[T]) Len() int { return len(cp.flowCounters) }

// Iter visits the synced entries.
func (cp *MergeableStoreCP[T]) Iter(f func(packets.Flow, T)) {
	for flow, v := range cp.flowCounters {
		f(flow, v)
	}
}

// MergeableStoreDP is a data-plane handle. Not safe for concurrent use;
// each core gets its own.
type MergeableStoreDP[T any] struct {
	merge         func(T, T) T
	flowCounters  *sharedFlowMap[T]
	cache         []flowEntry[T]
	baseCacheSize int
	cacheSize     int
	approxLen     int
}

func (dp *MergeableStoreDP[T]) mergeCache() {
	if !dp.flowCounters.mu.TryLock() {
		// never block the data plane; buffer more instead
		dp.cacheSize = min(dp.cacheSize*2, mergeableCacheCap)
		return
	}
	dp.drainLocked()
	dp.flowCounters.mu.Unlock()
}

// drainLocked folds the cache into the shared map. Caller holds the
// write lock.
func (dp *MergeableStoreDP[T]) drainLocked() {
	m := dp.flowCounters.m
	for _, e := range dp.cache {
		if old, ok := m[e.flow]; ok {
			m[e.flow] = dp.merge(old, e.val)
		} else {
			m[e.flow] = e.val
		}
	}
	dp.cache = dp.cache[:0]
	dp.cacheSize = dp.baseCacheSize
	dp.approxLen = len(m)
}

// Update merges inc into the flow's value.
func (dp *MergeableStoreDP[T]) Update(flow packets.Flow, inc T) {
	dp.cache = append(dp.cache, flowEntry[T]{flow: flow, val: inc})
	if len(dp.cache) >= dp.cacheSize {
		dp.mergeCache()
	}
}

// Remove drains the cache under the write lock and deletes the flow,
// returning its final value. This is a control-flow operation (connection
// teardown), so it may block.
func (dp *MergeableStoreDP[T]) Remove(flow packets.Flow) T {
	dp.flowCounters.mu.Lock()
	defer dp.flowCounters.mu.Unlock()
	dp.drainLocked()
	old := dp.flowCounters.m[flow]
	delete(dp.flowCounters.m, flow)
	dp.approxLen = len(dp.flowCounters.m)
	return old
}

// Len is the approximate table size as of the last merge.
func (dp *MergeableStoreDP[T]) Len() int { return dp.approxLen }
