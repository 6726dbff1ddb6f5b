// Package gpio claims GPIO pins and whole ports and drives their
// direction, pull-up and level registers.
package gpio

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
	"hwarb-go/x/mathx"
	"hwarb-go/x/mmio"
)

// Register indices within a port block.
const (
	regPIN  = 0 // input levels
	regDDR  = 1 // direction, 1 = output
	regPORT = 2 // output levels / pull-ups
)

type Mode uint8

const (
	Input Mode = iota
	Output
	PullUp // input with pull-up
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "in"
	case Output:
		return "out"
	case PullUp:
		return "pull_up"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// PinsPerPort is the width of the 8-bit port registers.
const PinsPerPort = 8

var errReleased = errcode.Wrap(errcode.InvalidArgument, "gpio", "handle released")

// block is the resolved register window of one port.
type block struct {
	bus          mmio.Bus
	base, stride uintptr
}

func (b block) reg(i int) uintptr { return mmio.Reg(b.base, b.stride, i) }

// -----------------------------------------------------------------------------
// Pins
// -----------------------------------------------------------------------------

// Pin is one claimed pin. It belongs to the core that allocated it.
type Pin struct {
	block
	claims *core.Claims
	port   uint8
	pin    int
	mask   uint8
	freed  bool
}

// PinAlloc claims pin on port for core cpu. The claim is rolled back if
// the port cannot be resolved.
func PinAlloc(res *core.Resources, cpu int, port uint8, pin int) (*Pin, error) {
	if pin < 0 || pin >= PinsPerPort {
		return nil, errcode.Wrap(errcode.InvalidArgument, "gpio", "pin "+strconv.Itoa(pin)+" out of range")
	}
	c := res.Claims(cpu)
	m, err := c.Take(types.Key(types.ClassGPIO, port, pin))
	if err != nil {
		glog.V(4).Infof("gpio: pin %d on port %d: %v", pin, port, err)
		return nil, err
	}
	glog.V(4).Infof("gpio: engine @ %#x, using pin %d on port %d", m.Base, pin, port)
	return &Pin{
		block:  block{bus: res.MMIO, base: m.Base, stride: m.Stride},
		claims: c,
		port:   port,
		pin:    pin,
		mask:   1 << pin,
	}, nil
}

func (p *Pin) Key() types.ResourceKey { return types.Key(types.ClassGPIO, p.port, p.pin) }

func (p *Pin) Mode(m Mode) error {
	if p.freed {
		return errReleased
	}
	switch m {
	case Output:
		mmio.Set8(p.bus, p.reg(regDDR), p.mask)
	case PullUp:
		mmio.Set8(p.bus, p.reg(regPORT), p.mask)
		mmio.Clear8(p.bus, p.reg(regDDR), p.mask)
	case Input:
		mmio.Clear8(p.bus, p.reg(regDDR), p.mask)
	default:
		return errcode.Wrap(errcode.InvalidArgument, "gpio.Mode", m.String())
	}
	return nil
}

func (p *Pin) Set() error    { return p.write(func(v uint8) uint8 { return v | p.mask }) }
func (p *Pin) Clear() error  { return p.write(func(v uint8) uint8 { return v &^ p.mask }) }
func (p *Pin) Toggle() error { return p.write(func(v uint8) uint8 { return v ^ p.mask }) }

func (p *Pin) write(f func(uint8) uint8) error {
	if p.freed {
		return errReleased
	}
	a := p.reg(regPORT)
	p.bus.Write8(a, f(p.bus.Read8(a)))
	return nil
}

// Read returns the input level. A released pin reads low.
func (p *Pin) Read() bool {
	if p.freed {
		return false
	}
	return p.bus.Read8(p.reg(regPIN))&p.mask != 0
}

// Free releases the pin. Further calls on p fail.
func (p *Pin) Free() error {
	if p.freed {
		return nil
	}
	glog.V(4).Infof("gpio: releasing pin %d on port %d", p.pin, p.port)
	if err := p.claims.Release(p.Key()); err != nil {
		return err
	}
	p.freed = true
	return nil
}

// -----------------------------------------------------------------------------
// Ports
// -----------------------------------------------------------------------------

// Port is a whole claimed port.
type Port struct {
	block
	claims *core.Claims
	lc     *core.Lifecycle
	port   uint8
	mask   uint8
	freed  bool
}

// PortAlloc claims every pin of port for core cpu. It fails with
// errcode.Busy if any pin is already held.
func PortAlloc(res *core.Resources, cpu int, port uint8) (*Port, error) {
	l, err := res.Ledgers.For(types.ClassGPIO)
	if err != nil {
		return nil, err
	}
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassGPIO, port))
	if err != nil {
		glog.V(4).Infof("gpio: port %d: %v", port, err)
		return nil, err
	}
	p := &Port{
		block:  block{bus: res.MMIO, base: m.Base, stride: m.Stride},
		claims: c,
		lc:     core.NewLifecycle(res, types.HWDev(types.ClassGPIO, port)),
		port:   port,
		mask:   mathx.LowMask[uint8](mathx.Min(l.Width(), PinsPerPort)),
	}
	_ = p.lc.To(cpu, core.Claimed)
	_ = p.lc.To(cpu, core.Active)
	glog.V(4).Infof("gpio: engine @ %#x, using port %d", m.Base, port)
	return p, nil
}

func (p *Port) Mode(m Mode) error {
	if p.freed {
		return errReleased
	}
	switch m {
	case Output:
		p.bus.Write8(p.reg(regDDR), p.mask)
	case PullUp:
		p.bus.Write8(p.reg(regPORT), p.mask)
		mmio.Clear8(p.bus, p.reg(regDDR), p.mask)
	case Input:
		mmio.Clear8(p.bus, p.reg(regDDR), p.mask)
	default:
		return errcode.Wrap(errcode.InvalidArgument, "gpio.Mode", m.String())
	}
	return nil
}

// Write drives all output pins of the port at once.
func (p *Port) Write(v uint8) error {
	if p.freed {
		return errReleased
	}
	p.bus.Write8(p.reg(regPORT), v&p.mask)
	return nil
}

func (p *Port) Read() (uint8, error) {
	if p.freed {
		return 0, errReleased
	}
	return p.bus.Read8(p.reg(regPIN)) & p.mask, nil
}

// State reports where the port is in its lifecycle.
func (p *Port) State() core.State { return p.lc.State() }

// Free releases the whole port. If the ledger refuses, the port stays
// shutting down and Free may be called again.
func (p *Port) Free() error {
	if p.freed {
		return nil
	}
	cpu := p.claims.Core()
	glog.V(4).Infof("gpio: releasing port %d", p.port)
	if p.lc.State() == core.Active {
		_ = p.lc.To(cpu, core.ShuttingDown)
	}
	if err := p.claims.Release(types.WholeKey(types.ClassGPIO, p.port)); err != nil {
		return err
	}
	p.freed = true
	return p.lc.To(cpu, core.Unclaimed)
}
