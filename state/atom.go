// Package state holds the stateful-NF building blocks: a mirrored ring
// buffer, a segment list, the TCP reordered buffer built on both, a
// mergeable per-flow store, and a lock-free swap cell for configuration.
package state

import "sync/atomic"

// Atom is a lock-free cell holding one configuration value. Readers get
// a consistent snapshot; a signal handler swaps in a whole new value.
type Atom[T any] struct {
	p atomic.Pointer[T]
}

// NewAtom creates a cell holding v.
func NewAtom[T any](v T) *Atom[T] {
	a := &Atom[T]{}
	a.p.Store(&v)
	return a
}

// Get returns the current value.
func (a *Atom[T]) Get() T { return *a.p.Load() }

// Set atomically replaces the value.
func (a *Atom[T]) Set(v T) { a.p.Store(&v) }
