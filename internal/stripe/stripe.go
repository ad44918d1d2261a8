// Package stripe provides a fixed set of mutexes indexed by item id.
//
// Symmetric pair insertion writes to two items' neighbor lists; workers
// partitioned by item range can still collide on the far side of a pair.
// Striping serializes writes per item without a global lock: stripe =
// id & (len-1), and pair locks are always taken in ascending stripe order
// so two workers locking the same two stripes cannot deadlock.
package stripe

import "sync"

// DefaultStripes is the stripe count used when none is given.
const DefaultStripes = 256

// Locker is a power-of-two sized set of mutexes.
type Locker struct {
	mus  []sync.Mutex
	mask uint32
}

// New creates a Locker with at least n stripes, rounded up to a power of two.
// n <= 0 selects DefaultStripes.
func New(n int) *Locker {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Locker{
		mus:  make([]sync.Mutex, size),
		mask: uint32(size - 1),
	}
}

// Stripes returns the number of stripes.
func (l *Locker) Stripes() int {
	return len(l.mus)
}

// Lock locks the stripe owning id.
func (l *Locker) Lock(id uint32) {
	l.mus[id&l.mask].Lock()
}

// Unlock unlocks the stripe owning id.
func (l *Locker) Unlock(id uint32) {
	l.mus[id&l.mask].Unlock()
}

// LockPair locks the stripes owning a and b in ascending stripe order.
// If both ids map to the same stripe, it is locked once.
func (l *Locker) LockPair(a, b uint32) {
	sa, sb := a&l.mask, b&l.mask
	switch {
	case sa == sb:
		l.mus[sa].Lock()
	case sa < sb:
		l.mus[sa].Lock()
		l.mus[sb].Lock()
	default:
		l.mus[sb].Lock()
		l.mus[sa].Lock()
	}
}

// UnlockPair releases the stripes taken by LockPair.
func (l *Locker) UnlockPair(a, b uint32) {
	sa, sb := a&l.mask, b&l.mask
	if sa == sb {
		l.mus[sa].Unlock()
		return
	}
	l.mus[sa].Unlock()
	l.mus[sb].Unlock()
}
