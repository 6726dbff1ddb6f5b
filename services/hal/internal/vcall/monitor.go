package vcall

import (
	"context"
	"sync/atomic"

	"hwarb-go/errcode"
)

// Frame is the register file carried across a trap. On entry Regs holds
// {opcode, a0, a1, a2}. On return P takes the place of the a0 pointer,
// Regs[1] holds the size and Regs[2] the status.
type Frame struct {
	Regs [4]uint
	P    any

	state atomic.Uint32
	done  chan struct{}
}

const (
	framePending uint32 = iota
	frameDone
)

// Monitor is the trapped bridge: the directory is only read on the
// monitor's own goroutine, and callers reach it by handing over a Frame
// and blocking until it comes back.
//
// There is exactly one dispatcher, so a request is never dispatched while
// another is being handled. A call made while the monitor is not running
// blocks until Run is (re)started; there is no timeout.
type Monitor struct {
	src   Source
	traps chan *Frame

	running  atomic.Bool
	handling atomic.Bool
	served   atomic.Uint64
}

var _ Caller = (*Monitor)(nil)

func NewMonitor(src Source) *Monitor {
	return &Monitor{src: src, traps: make(chan *Frame)}
}

// Run serves traps until ctx is done. Only one Run may be active; a
// second concurrent Run fails with errcode.Busy.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errcode.Wrap(errcode.Busy, "vcall.Monitor", "already running")
	}
	defer m.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-m.traps:
			m.handle(f)
		}
	}
}

// Served returns how many traps have been answered.
func (m *Monitor) Served() uint64 { return m.served.Load() }

func (m *Monitor) handle(f *Frame) {
	if !m.handling.CompareAndSwap(false, true) {
		panic("vcall: reentrant trap dispatch")
	}
	r := dispatch(m.src, Opcode(f.Regs[0]), f.Regs[1], f.Regs[2], f.Regs[3])

	// Directory reads are complete; write the outgoing registers, then
	// publish them with a release store before waking the caller.
	f.P = r.P
	f.Regs[0] = 0
	f.Regs[1] = uint(r.Size)
	f.Regs[2] = uint(r.Status)
	f.Regs[3] = 0
	m.handling.Store(false)
	m.served.Add(1)
	f.state.Store(frameDone)
	close(f.done)
}

// Call traps into the monitor and blocks until the result registers are
// published.
func (m *Monitor) Call(op Opcode, a0, a1, a2 uint, res *Result) {
	if res == nil {
		return
	}
	f := &Frame{
		Regs: [4]uint{uint(op), a0, a1, a2},
		done: make(chan struct{}),
	}
	m.traps <- f
	<-f.done
	if f.state.Load() != frameDone {
		panic("vcall: frame returned before it was published")
	}
	*res = Result{
		P:      f.P,
		Size:   uintptr(f.Regs[1]),
		Status: errcode.Status(f.Regs[2]),
	}
}
