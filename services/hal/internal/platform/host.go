package platform

import (
	"sync"

	"tinygo.org/x/drivers"

	"hwarb-go/errcode"
	"hwarb-go/types"
)

// ----------------------------- Clocks (host) ---------------------------------

// HostClocks records which module clocks are running.
type HostClocks struct {
	mu sync.Mutex
	on map[uint]bool
}

func (c *HostClocks) Enable(id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.on == nil {
		c.on = make(map[uint]bool)
	}
	c.on[id] = true
	return nil
}

func (c *HostClocks) Disable(id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.on, id)
	return nil
}

// Enabled reports whether clock id is running.
func (c *HostClocks) Enabled(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on[id]
}

// ----------------------------- Interrupts (host) -----------------------------

type irqLine struct {
	module types.IntModule
	id     uint
}

type irqLink struct {
	core    int
	handler func()
}

// HostIRQ is an interrupt controller whose lines are raised by Fire.
type HostIRQ struct {
	mu    sync.Mutex
	links map[irqLine]irqLink
}

func (h *HostIRQ) Link(irq types.Interrupt, core int, handler func()) error {
	if handler == nil {
		return errcode.Wrap(errcode.InvalidArgument, "irq.Link", "nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.links == nil {
		h.links = make(map[irqLine]irqLink)
	}
	line := irqLine{irq.Module, irq.ID}
	if _, taken := h.links[line]; taken {
		return errcode.Busy
	}
	h.links[line] = irqLink{core: core, handler: handler}
	return nil
}

func (h *HostIRQ) Unlink(irq types.Interrupt, core int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	line := irqLine{irq.Module, irq.ID}
	l, ok := h.links[line]
	if !ok {
		return nil
	}
	if l.core != core {
		return errcode.Wrap(errcode.InvalidArgument, "irq.Unlink", "linked on another core")
	}
	delete(h.links, line)
	return nil
}

// Linked reports whether a handler is attached to irq.
func (h *HostIRQ) Linked(irq types.Interrupt) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.links[irqLine{irq.Module, irq.ID}]
	return ok
}

// Fire runs the handler linked to irq, if any, and reports whether one ran.
func (h *HostIRQ) Fire(irq types.Interrupt) bool {
	h.mu.Lock()
	l, ok := h.links[irqLine{irq.Module, irq.ID}]
	h.mu.Unlock()
	if ok {
		l.handler()
	}
	return ok
}

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C for host-side tests. Reads are
// served from Reply.
type HostI2C struct {
	mu     sync.Mutex
	Reply  []byte
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

var _ drivers.I2C = (*HostI2C)(nil)

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	copy(r, h.Reply)
	return nil
}

// HostI2CFactory hands out one HostI2C per instance.
type HostI2CFactory struct {
	buses map[uint8]*HostI2C
}

// NewHostI2CFactory creates inert buses for the given instances.
func NewHostI2CFactory(instances ...uint8) *HostI2CFactory {
	f := &HostI2CFactory{buses: make(map[uint8]*HostI2C, len(instances))}
	for _, i := range instances {
		f.buses[i] = &HostI2C{}
	}
	return f
}

func (f *HostI2CFactory) ByInstance(instance uint8) (drivers.I2C, bool) {
	b, ok := f.buses[instance]
	if !ok {
		return nil, false
	}
	return b, true
}

// Bus exposes the concrete bus for tests.
func (f *HostI2CFactory) Bus(instance uint8) *HostI2C { return f.buses[instance] }

// I2CFactoryFor creates host buses for every I²C module on the board.
func I2CFactoryFor(b *Board) *HostI2CFactory {
	var inst []uint8
	for _, m := range b.Modules {
		if m.Class == types.ClassI2C {
			inst = append(inst, m.Record.ID)
		}
	}
	return NewHostI2CFactory(inst...)
}
