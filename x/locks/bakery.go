package locks

import (
	"runtime"
	"sync/atomic"

	"hwarb-go/x/mathx"
)

// Bakery is Lamport's bakery lock for a fixed number of cores.
//
// Each core takes a ticket one larger than every ticket it can see and
// waits for all cores holding a smaller (ticket, core) pair. Only plain
// atomic loads and stores are used: every publish point in Acquire and
// Release is an ordered store and every read of another core's state is
// an ordered load. There is no read-modify-write anywhere.
//
// Known limitation: tickets are uint32 and are never reset while any core
// holds a non-zero ticket, so a lock that is never fully idle for 2^32
// consecutive grants wraps and loses mutual exclusion.
type Bakery struct {
	_        [0]func() // no copying
	ticket   []atomic.Uint32
	choosing []atomic.Bool

	// pause, if set, runs between the numbered Acquire steps. Tests use
	// it to force interleavings.
	pause func(core int, step int)
}

var (
	_ CoreLock = (*Bakery)(nil)
	_ Bounded  = (*Bakery)(nil)
)

// NewBakery returns a lock for cores 0..n-1. n must be positive.
func NewBakery(n int) *Bakery {
	if n <= 0 {
		panic("locks: bakery needs at least one core")
	}
	return &Bakery{
		ticket:   make([]atomic.Uint32, n),
		choosing: make([]atomic.Bool, n),
	}
}

// Cores returns the number of cores the lock was sized for.
func (b *Bakery) Cores() int { return len(b.ticket) }

func (b *Bakery) step(core, n int) {
	if b.pause != nil {
		b.pause(core, n)
	}
}

// Acquire blocks until core holds the lock.
func (b *Bakery) Acquire(core int) {
	b.checkCore(core)

	// 1. announce that we are choosing
	b.choosing[core].Store(true)
	b.step(core, 1)

	// 2. take a ticket above every visible ticket
	var top uint32
	for i := range b.ticket {
		top = mathx.Max(top, b.ticket[i].Load())
	}
	b.step(core, 2)
	b.ticket[core].Store(top + 1)

	// 3. publish the ticket, then stop choosing
	b.step(core, 3)
	b.choosing[core].Store(false)

	// 4. wait for every core ahead of us
	mine := b.ticket[core].Load()
	for j := range b.ticket {
		if j == core {
			continue
		}
		b.step(core, 4)
		for b.choosing[j].Load() {
			runtime.Gosched()
		}
		for {
			t := b.ticket[j].Load()
			if t == 0 || !ahead(t, j, mine, core) {
				break
			}
			runtime.Gosched()
		}
	}
}

// Release gives the lock up. Only the holding core may call it.
func (b *Bakery) Release(core int) {
	b.checkCore(core)
	b.ticket[core].Store(0)
}

// ahead reports (t1, c1) <lex (t2, c2).
func ahead(t1 uint32, c1 int, t2 uint32, c2 int) bool {
	return t1 < t2 || (t1 == t2 && c1 < c2)
}

func (b *Bakery) checkCore(core int) {
	if core < 0 || core >= len(b.ticket) {
		panic("locks: core index out of range")
	}
}
