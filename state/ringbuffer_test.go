package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundingHelpers(t *testing.T) {
	assert.Equal(t, 4096, RoundToPages(1))
	assert.Equal(t, 0, RoundToPages(0))
	assert.Equal(t, 4096, RoundToPages(8))
	assert.Equal(t, 4096, RoundToPages(512))
	assert.Equal(t, 4096, RoundToPages(4096))
	assert.Equal(t, 8192, RoundToPages(4097))

	assert.Equal(t, 0, RoundToPowerOf2(0))
	assert.Equal(t, 1, RoundToPowerOf2(1))
	assert.Equal(t, 2, RoundToPowerOf2(2))
	assert.Equal(t, 4, RoundToPowerOf2(3))
	assert.Equal(t, 4, RoundToPowerOf2(4))
	assert.Equal(t, 8, RoundToPowerOf2(5))
}

func TestNewRingBufferRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewRingBuffer(3000)
	assert.Error(t, err)
	_, err = NewRingBuffer(0)
	assert.Error(t, err)
}

func ringSizes() []int { return []int{2048, 4096, 65536} }

func TestRingWriteReadRoundTrip(t *testing.T) {
	for _, size := range ringSizes() {
		r, err := NewRingBuffer(size)
		require.NoError(t, err)
		defer r.Close()

		payload := []byte("food: hamburger")
		assert.Equal(t, len(payload), r.WriteAtTail(payload))
		assert.Equal(t, len(payload), r.Available())

		out := make([]byte, 64)
		n := r.ReadFromHead(out)
		assert.Equal(t, len(payload), n)
		assert.Equal(t, payload, out[:n])
		assert.Equal(t, 0, r.Available())
	}
}

func TestRingClampsToFreeSpace(t *testing.T) {
	r, err := NewRingBuffer(2048)
	require.NoError(t, err)
	defer r.Close()

	big := make([]byte, 4096)
	written := r.WriteAtTail(big)
	// the ring keeps one empty slot
	assert.Equal(t, 2047, written)
	assert.Equal(t, 0, r.WriteAtTail(big))
}

func TestRingWrapAround(t *testing.T) {
	for _, size := range ringSizes() {
		r, err := NewRingBuffer(size)
		require.NoError(t, err)
		defer r.Close()

		chunk := make([]byte, size/4+13)
		out := make([]byte, len(chunk))
		for round := 0; round < 20; round++ {
			for i := range chunk {
				chunk[i] = byte(round + i)
			}
			require.Equal(t, len(chunk), r.WriteAtTail(chunk))
			require.Equal(t, len(chunk), r.ReadFromHead(out))
			require.Equal(t, chunk, out)
		}
	}
}

func TestRingWriteAtOffsetFromTail(t *testing.T) {
	r, err := NewRingBuffer(4096)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 4, r.WriteAtTail([]byte("food")))

	// park data 11 bytes past the tail, then fill the gap and seek
	assert.Equal(t, 9, r.WriteAtOffsetFromTail(11, []byte(" american")))
	assert.Equal(t, 11, r.WriteAtTail([]byte(": hamburger")))
	r.SeekTail(9)

	out := make([]byte, 64)
	n := r.ReadFromHead(out)
	assert.Equal(t, "food: hamburger american", string(out[:n]))
}

func TestRingWriteAtOffsetBeyondFreeSpace(t *testing.T) {
	r, err := NewRingBuffer(2048)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 0, r.WriteAtOffsetFromTail(5000, []byte("x")))
}

func TestRingReadWithIncrement(t *testing.T) {
	r, err := NewRingBuffer(2048)
	require.NoError(t, err)
	defer r.Close()

	r.WriteAtTail([]byte("abcdef"))
	out := make([]byte, 4)
	// peek: read 4 bytes but only advance 2
	assert.Equal(t, 4, r.ReadFromHeadWithIncrement(out, 2))
	assert.Equal(t, "abcd", string(out))
	assert.Equal(t, 4, r.Available())

	n := r.ReadFromHead(out)
	assert.Equal(t, "cdef", string(out[:n]))
}

func TestRingSeekHeadAndClear(t *testing.T) {
	r, err := NewRingBuffer(2048)
	require.NoError(t, err)
	defer r.Close()

	r.WriteAtTail([]byte("abcdef"))
	r.SeekHead(2)
	assert.Equal(t, 4, r.Available())

	r.Clear()
	assert.Equal(t, 0, r.Available())
	out := make([]byte, 4)
	assert.Equal(t, 0, r.ReadFromHead(out))
}
