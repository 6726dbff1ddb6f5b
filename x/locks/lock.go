// Package locks provides the multi-core mutual exclusion primitives used to
// guard shared arbitration state. Every caller identifies itself by core
// index; goroutines stand in for physical cores.
package locks

import (
	"runtime"
	"sync/atomic"
)

// CoreLock is the generic lock_acquire/lock_release contract.
// Acquire busy-polls and never gives up; never hold a CoreLock across an
// unbounded wait.
type CoreLock interface {
	Acquire(core int)
	Release(core int)
}

// Bounded is implemented by locks sized for cores 0..Cores()-1. Locks
// that do not implement it accept any non-negative core index.
type Bounded interface {
	Cores() int
}

// Spin is a test-and-set lock. It is not fair; use Bakery where bounded
// waiting matters.
type Spin struct {
	_    [0]func() // no copying
	held atomic.Bool
}

var _ CoreLock = (*Spin)(nil)

// Acquire spins until the lock is free. The core index is not used.
func (s *Spin) Acquire(int) {
	for !s.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// Release frees the lock whoever holds it.
func (s *Spin) Release(int) { s.held.Store(false) }
