// Package queue provides the inter-stage queues of the framework: a
// single-producer and a multi-producer lock-free mbuf ring for moving
// frames between cores, and a bounded single-threaded queue used by the
// group-by operator within a core.
package queue

import "math/bits"

// RoundUpPowerOfTwo returns the smallest power of two >= n.
func RoundUpPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n-1))
}

// cacheLinePad separates producer and consumer positions so they do not
// false-share.
type cacheLinePad struct {
	_ [64]byte
}
