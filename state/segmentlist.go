package state

import "math"

// Segment records one contiguous byte range by TCP sequence number.
type Segment struct {
	Seq    uint32
	Length uint16
	prev   int
	next   int
	idx    int
}

// End is the sequence number one past the segment's last byte.
func (s *Segment) End() uint32 { return s.Seq + uint32(s.Length) }

const nilIdx = -1

// SegmentList is a doubly-linked list of disjoint segments in sequence
// order. Nodes live in a vector with a free list, so steady state makes
// no allocations. Adjacent segments whose ranges touch are merged on
// insert; a segment never exceeds 64 KiB - 1 bytes, overflow spills into
// a following segment.
type SegmentList struct {
	storage   []Segment
	available []int
	head      int
	tail      int
}

// NewSegmentList creates a list sized for roughly length concurrent
// out-of-order segments; it grows if that is exceeded.
func NewSegmentList(length int) *SegmentList {
	if length < 1 {
		length = 1
	}
	l := &SegmentList{
		storage:   make([]Segment, length),
		available: make([]int, length),
		head:      nilIdx,
		tail:      nilIdx,
	}
	for i := range l.storage {
		l.storage[i].idx = i
		l.available[i] = i
	}
	return l
}

func (l *SegmentList) removeNode(node int) {
	l.storage[node].Length = 0
	l.available = append(l.available, node)
}

func (l *SegmentList) findAvailableNode() int {
	if n := len(l.available); n > 0 {
		idx := l.available[n-1]
		l.available = l.available[:n-1]
		return idx
	}
	idx := len(l.storage)
	l.storage = append(l.storage, Segment{idx: idx})
	return idx
}

func (l *SegmentList) insertBeforeNode(next int, seq uint32, length uint16) int {
	idx := l.findAvailableNode()
	l.storage[idx].Seq = seq
	l.storage[idx].Length = length
	l.storage[idx].next = next
	if next != nilIdx {
		prev := l.storage[next].prev
		l.storage[idx].prev = prev
		l.storage[next].prev = idx
		if prev != nilIdx {
			l.storage[prev].next = idx
		} else {
			l.head = idx
		}
	} else {
		l.storage[idx].prev = nilIdx
	}
	return idx
}

func (l *SegmentList) insertAfterNode(prev int, seq uint32, length uint16) int {
	idx := l.findAvailableNode()
	l.storage[idx].Seq = seq
	l.storage[idx].Length = length
	l.storage[idx].prev = prev
	l.storage[idx].next = l.storage[prev].next
	l.storage[prev].next = idx
	if l.storage[idx].next == nilIdx {
		l.tail = idx
	} else {
		l.storage[l.storage[idx].next].prev = idx
	}
	return idx
}

func (l *SegmentList) insertAtTail(seq uint32, length uint16) int {
	idx := l.findAvailableNode()
	l.storage[idx].Seq = seq
	l.storage[idx].Length = length
	l.storage[idx].next = nilIdx
	l.storage[idx].prev = l.tail
	l.storage[l.tail].next = idx
	l.tail = idx
	return idx
}

// mergeAtIdx folds subsequent segments whose ranges touch into idx.
// Earlier segments were already checked on their own insert.
func (l *SegmentList) mergeAtIdx(idx int) {
	next := l.storage[idx].next
	for next != nilIdx {
		end := l.storage[idx].End()
		segSeq := l.storage[next].Seq
		if int32(end-segSeq) < 0 {
			break
		}
		overlap := end - segSeq
		mergeLen := int(l.storage[next].Length) - int(overlap)
		if mergeLen < 0 {
			mergeLen = 0
		}
		newLen := int(l.storage[idx].Length) + mergeLen
		if newLen <= math.MaxUint16 {
			l.storage[idx].Length = uint16(newLen)
			toFree := next
			next = l.storage[toFree].next
			l.storage[idx].next = next
			if next != nilIdx {
				l.storage[next].prev = idx
			} else {
				l.tail = idx
			}
			l.removeNode(toFree)
		} else {
			// fill idx up to the cap, push the rest into next
			maxLen := uint16(math.MaxUint16 - int(l.storage[idx].Length))
			l.storage[idx].Length += maxLen
			l.storage[next].Length -= maxLen
			l.storage[next].Seq += uint32(maxLen)
			break
		}
	}
}

// InsertSegment records [seq, seq+length), merging with neighbors.
// Returns the index of the segment covering the start of the range.
func (l *SegmentList) InsertSegment(seq uint32, length uint16) int {
	idx := l.head
	if idx == nilIdx {
		idx = l.insertBeforeNode(nilIdx, seq, length)
		l.head = idx
		l.tail = idx
		return idx
	}

	end := seq + uint32(length)
	for idx != nilIdx {
		seg := &l.storage[idx]
		segEnd := seg.End()
		if segEnd == seq {
			// extend the current segment, spilling past the 64K cap
			newLen := int(seg.Length) + int(length)
			if newLen <= math.MaxUint16 {
				seg.Length = uint16(newLen)
			} else {
				maxLen := uint16(math.MaxUint16 - int(seg.Length))
				seg.Length += maxLen
				l.insertAfterNode(idx, seq+uint32(maxLen), length-maxLen)
			}
			break
		} else if int32(seg.Seq-end) >= 0 {
			// past the insertion point
			idx = l.insertBeforeNode(idx, seq, length)
			break
		} else if int32(seg.Seq-seq) <= 0 && int32(segEnd-seq) >= 0 {
			// overlapping segment, extend in place
			newEnd := segEnd
			if int32(end-newEnd) > 0 {
				newEnd = end
			}
			seg.Length = uint16(newEnd - seg.Seq)
			break
		}
		idx = l.storage[idx].next
	}

	if idx == nilIdx {
		idx = l.insertAtTail(seq, length)
		return idx
	}
	l.mergeAtIdx(idx)
	return idx
}

// IsHead reports whether seg is the first segment.
func (l *SegmentList) IsHead(seg int) bool { return l.head == seg }

func (l *SegmentList) removeHead() {
	head := l.head
	l.head = l.storage[head].next
	if l.head != nilIdx {
		l.storage[l.head].prev = nilIdx
	} else {
		l.tail = nilIdx
	}
	l.removeNode(head)
}

// ConsumeHeadData removes up to consumed bytes from the head segment,
// which must start at seq. Returns whether the full amount was consumed.
func (l *SegmentList) ConsumeHeadData(seq uint32, consumed uint16) bool {
	if l.head == nilIdx {
		return consumed == 0
	}
	idx := l.head
	if l.storage[idx].Seq != seq {
		return false
	}
	consume := min(consumed, l.storage[idx].Length)
	l.storage[idx].Seq += uint32(consume)
	l.storage[idx].Length -= consume
	if l.storage[idx].Length == 0 {
		l.removeHead()
	} else {
		l.mergeAtIdx(idx)
	}
	return consume == consumed
}

// Clear removes every segment.
func (l *SegmentList) Clear() {
	idx := l.head
	for idx != nilIdx {
		next := l.storage[idx].next
		l.removeNode(idx)
		idx = next
	}
	l.head = nilIdx
	l.tail = nilIdx
}

// Get returns a segment by index.
func (l *SegmentList) Get(idx int) *Segment { return &l.storage[idx] }

// Head returns the first segment, or nil when empty.
func (l *SegmentList) Head() *Segment {
	if l.head == nilIdx {
		return nil
	}
	return &l.storage[l.head]
}

// OneSegment reports whether the list has at most one segment.
func (l *SegmentList) OneSegment() bool {
	return l.head == nilIdx || l.storage[l.head].next == nilIdx
}

// Segments returns the current segments in sequence order. Test helper.
func (l *SegmentList) Segments() []Segment {
	var out []Segment
	for idx := l.head; idx != nilIdx; idx = l.storage[idx].next {
		out = append(out, l.storage[idx])
	}
	return out
}
