package state

import "math"

// InsertionResult reports the outcome of adding data to a
// ReorderedBuffer.
type InsertionResult struct {
	// Written is the number of bytes of buffer-state advancement this
	// insert produced. When an out-of-order write closes a gap, bytes
	// already present count toward the advancement, not the copy.
	Written int
	// Available is the in-order byte count ready to read.
	Available int
	// OutOfMemory is set when the ring could not take all of the data.
	OutOfMemory bool
}

type connState int

const (
	stateClosed connState = iota
	stateConnected
	stateConnectedOutOfOrder
)

// ReorderedBuffer accepts TCP segment payloads in any order and serves
// the byte stream back in order. In-order data takes a fast path straight
// into the ring; out-of-order data lands at its offset from the tail and
// is tracked in a segment list until the gaps close.
type ReorderedBuffer struct {
	data        *RingBuffer
	segmentList *SegmentList
	bufferSize  int
	state       connState
	headSeq     uint32
	tailSeq     uint32
}

// NewReorderedBuffer creates a buffer holding bufferSize bytes, rounded
// up to a power of two.
func NewReorderedBuffer(bufferSize int) (*ReorderedBuffer, error) {
	return NewReorderedBufferWithSegments(bufferSize, bufferSize/64)
}

// NewReorderedBufferWithSegments additionally sizes the segment list for
// the expected number of simultaneous out-of-order segments.
func NewReorderedBufferWithSegments(bufferSize, segments int) (*ReorderedBuffer, error) {
	rounded := RoundToPowerOf2(bufferSize)
	ring, err := NewRingBuffer(rounded)
	if err != nil {
		return nil, err
	}
	return &ReorderedBuffer{
		data:        ring,
		segmentList: NewSegmentList(segments),
		bufferSize:  rounded,
	}, nil
}

// BufferSize is the maximum amount of data the buffer can hold.
func (r *ReorderedBuffer) BufferSize() int { return r.bufferSize }

// Available reports in-order bytes ready to read.
func (r *ReorderedBuffer) Available() int { return r.data.Available() }

// IsEstablished reports whether Seq has been called since the last Reset.
func (r *ReorderedBuffer) IsEstablished() bool { return r.state != stateClosed }

// Reset returns the buffer to the Closed state, forgetting all data.
func (r *ReorderedBuffer) Reset() {
	r.state = stateClosed
	r.segmentList.Clear()
	r.data.Clear()
}

// Close releases the ring's mapping.
func (r *ReorderedBuffer) Close() { r.data.Close() }

// Seq establishes the stream at an initial sequence number and inserts
// the first payload. An established buffer is reset first.
func (r *ReorderedBuffer) Seq(seq uint32, data []byte) InsertionResult {
	if r.state != stateClosed {
		r.Reset()
	}
	r.state = stateConnected
	r.headSeq = seq
	r.tailSeq = seq
	return r.fastPathInsert(data)
}

// AddData inserts a payload at its sequence number. The buffer must be
// established.
func (r *ReorderedBuffer) AddData(seq uint32, data []byte) InsertionResult {
	switch r.state {
	case stateConnected:
		if seq == r.tailSeq {
			return r.fastPathInsert(data)
		}
		return r.slowPathInsert(seq, data)
	case stateConnectedOutOfOrder:
		return r.outOfOrderInsert(seq, data)
	default:
		// data on a closed buffer is ignored
		return InsertionResult{Available: r.Available()}
	}
}

// ReadData drains in-order bytes into data, advancing the stream head.
func (r *ReorderedBuffer) ReadData(data []byte) int {
	switch r.state {
	case stateConnected:
		return r.readDataCommon(data)
	case stateConnectedOutOfOrder:
		seq := r.headSeq
		read := r.readDataCommon(data)
		remaining := read
		for remaining > 0 {
			chunk := min(remaining, math.MaxUint16)
			r.segmentList.ConsumeHeadData(seq, uint16(chunk))
			seq += uint32(chunk)
			remaining -= chunk
		}
		if r.segmentList.OneSegment() {
			r.segmentList.Clear()
			r.state = stateConnected
		}
		return read
	default:
		return 0
	}
}

func (r *ReorderedBuffer) readDataCommon(data []byte) int {
	read := r.data.ReadFromHead(data)
	r.headSeq += uint32(read)
	return read
}

func (r *ReorderedBuffer) fastPathInsert(data []byte) InsertionResult {
	written := r.data.WriteAtTail(data)
	r.tailSeq += uint32(written)
	return InsertionResult{
		Written:     written,
		Available:   r.Available(),
		OutOfMemory: written != len(data),
	}
}

// addHeadToSegList seeds the segment list with the in-order run when the
// stream first goes out of order.
func (r *ReorderedBuffer) addHeadToSegList() {
	toInsert := r.data.Available()
	seq := r.headSeq
	for toInsert > 0 {
		insert := min(toInsert, math.MaxUint16)
		r.segmentList.InsertSegment(seq, uint16(insert))
		seq += uint32(insert)
		toInsert -= insert
	}
}

// insertRange records an arbitrary byte range in the segment list,
// chunked to the per-segment length cap.
func (r *ReorderedBuffer) insertRange(seq uint32, length int) int {
	first := nilIdx
	for length > 0 {
		chunk := min(length, math.MaxUint16)
		idx := r.segmentList.InsertSegment(seq, uint16(chunk))
		if first == nilIdx {
			first = idx
		}
		seq += uint32(chunk)
		length -= chunk
	}
	return first
}

func (r *ReorderedBuffer) slowPathInsert(seq uint32, data []byte) InsertionResult {
	end := seq + uint32(len(data))
	switch {
	case int32(r.tailSeq-seq) > 0 && int32(end-r.tailSeq) > 0:
		// overlaps the tail: keep only the new suffix
		begin := r.tailSeq - seq
		return r.fastPathInsert(data[begin:])
	case int32(end-r.tailSeq) < 0:
		// entirely old data
		return InsertionResult{Available: r.Available()}
	default:
		// ahead of the tail: go out of order
		r.state = stateConnectedOutOfOrder
		r.addHeadToSegList()
		return r.outOfOrderInsert(seq, data)
	}
}

func (r *ReorderedBuffer) outOfOrderInsert(seq uint32, data []byte) InsertionResult {
	switch {
	case seq == r.tailSeq:
		written := r.data.WriteAtTail(data)
		r.tailSeq += uint32(written)

		idx := r.insertRange(seq, written)
		if idx != nilIdx {
			// writing at the tail must extend the head segment; if it
			// closed a gap, advance the tail over the previously parked
			// bytes as well
			seg := r.segmentList.Get(idx)
			segEnd := seg.End()
			incr := int(segEnd - r.tailSeq)
			written += incr
			r.tailSeq = segEnd
			r.data.SeekTail(incr)
		}

		if r.segmentList.OneSegment() {
			r.segmentList.Clear()
			r.state = stateConnected
		}
		return InsertionResult{Written: written, Available: r.Available()}

	case int32(r.tailSeq-seq) >= 0:
		// starts before the tail: retry with the unseen suffix
		offset := int(r.tailSeq - seq)
		if len(data)-offset > 0 {
			return r.outOfOrderInsert(r.tailSeq, data[offset:])
		}
		return InsertionResult{Available: r.Available()}

	default:
		// a gap: write at the offset from the tail
		offset := int(seq - r.tailSeq)
		written := r.data.WriteAtOffsetFromTail(offset, data)
		if written > 0 {
			r.insertRange(seq, written)
		}
		return InsertionResult{
			Written:     written,
			Available:   r.Available(),
			OutOfMemory: written != len(data),
		}
	}
}
