package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants asserts segments are sorted, disjoint, and never
// touching (touching ranges must have merged).
func checkInvariants(t *testing.T, l *SegmentList) {
	t.Helper()
	segs := l.Segments()
	for i := 1; i < len(segs); i++ {
		prevEnd := segs[i-1].Seq + uint32(segs[i-1].Length)
		assert.Less(t, int32(prevEnd-segs[i].Seq), int32(0),
			"segments [%d] and [%d] touch or overlap", i-1, i)
	}
}

func TestInsertMergesAdjacent(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(110, 10)
	segs := l.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, uint32(100), segs[0].Seq)
	assert.Equal(t, uint16(20), segs[0].Length)
	checkInvariants(t, l)
}

func TestInsertKeepsGaps(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(200, 10)
	l.InsertSegment(150, 10)
	segs := l.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, uint32(100), segs[0].Seq)
	assert.Equal(t, uint32(150), segs[1].Seq)
	assert.Equal(t, uint32(200), segs[2].Seq)
	checkInvariants(t, l)
}

func TestInsertBridgesGap(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(120, 10)
	// exactly fills [110,120)
	l.InsertSegment(110, 10)
	segs := l.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, uint32(100), segs[0].Seq)
	assert.Equal(t, uint16(30), segs[0].Length)
	checkInvariants(t, l)
}

func TestInsertOverlapExtends(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(105, 20)
	segs := l.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, uint32(100), segs[0].Seq)
	assert.Equal(t, uint16(25), segs[0].Length)
	checkInvariants(t, l)
}

func TestInsertBeforeHead(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(50, 10)
	segs := l.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, uint32(50), segs[0].Seq)
	assert.True(t, l.IsHead(l.head))
	checkInvariants(t, l)
}

func TestLengthCapSpills(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(0, 65535)
	l.InsertSegment(65535, 100)
	segs := l.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, uint16(65535), segs[0].Length)
	assert.Equal(t, uint32(65535), segs[1].Seq)
	assert.Equal(t, uint16(100), segs[1].Length)
}

func TestConsumeHeadData(t *testing.T) {
	l := NewSegmentList(8)
	l.InsertSegment(100, 10)
	l.InsertSegment(150, 10)

	assert.True(t, l.ConsumeHeadData(100, 4))
	head := l.Head()
	require.NotNil(t, head)
	assert.Equal(t, uint32(104), head.Seq)
	assert.Equal(t, uint16(6), head.Length)

	// wrong head seq is an integrity failure
	assert.False(t, l.ConsumeHeadData(999, 1))

	// consuming the rest drops the segment
	assert.True(t, l.ConsumeHeadData(104, 6))
	head = l.Head()
	require.NotNil(t, head)
	assert.Equal(t, uint32(150), head.Seq)
}

func TestClearAndReuse(t *testing.T) {
	l := NewSegmentList(2)
	for i := 0; i < 10; i++ {
		l.InsertSegment(uint32(i*100), 10)
	}
	l.Clear()
	assert.Nil(t, l.Head())
	assert.True(t, l.OneSegment())

	// free-listed nodes are reused
	l.InsertSegment(42, 1)
	require.NotNil(t, l.Head())
	assert.Equal(t, uint32(42), l.Head().Seq)
}

func TestShuffledInsertInvariants(t *testing.T) {
	l := NewSegmentList(4)
	// 37 is coprime with 64: a full permutation of 64 chunks
	for i := 0; i < 64; i++ {
		idx := (i * 37) % 64
		l.InsertSegment(uint32(idx*50), 50)
		checkInvariants(t, l)
	}
	segs := l.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, uint32(0), segs[0].Seq)
	assert.Equal(t, uint16(3200), segs[0].Length)
}
