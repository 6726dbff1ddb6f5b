// Package spi claims SPI controllers together with the GPIO pins they
// drive and moves single bytes in master or slave role.
package spi

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/devices/gpio"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
	"hwarb-go/x/mmio"
)

// Register indices.
const (
	regSPCR = 0
	regSPSR = 1
	regSPDR = 2
)

// SPCR / SPSR bits.
const (
	bitSPIE = 7
	bitSPE  = 6
	bitDORD = 5
	bitMSTR = 4
	bitCPOL = 3
	bitCPHA = 2
	bitSPR0 = 0

	bitSPIF = 7
	bitWCOL = 6
)

const spinLimit = 1 << 16

// Role selects which end of the bus drives the clock.
type Role uint8

const (
	Master Role = iota
	Slave
)

func (r Role) String() string {
	if r == Slave {
		return "slave"
	}
	return "master"
}

// Pin positions within Pins.
const (
	MOSI = iota
	MISO
	SCK
	SS
)

// DefaultPins are the mega-AVR PORTB positions of MOSI, MISO, SCK and SS.
var DefaultPins = [4]int{3, 4, 5, 2}

// Config selects how Setup programs the controller.
type Config struct {
	Role     Role
	LSBFirst bool
	CPOL     bool
	CPHA     bool

	// Pins on the bus's GPIO port; the zero value means DefaultPins.
	Pins [4]int
}

// Port is a claimed SPI controller.
type Port struct {
	res    *core.Resources
	claims *core.Claims
	lc     *core.Lifecycle
	dev    types.HWDevID

	base, stride uintptr
	clockID      uint
	fdiv         uint64
	gpioPort     uint8
	irq          *types.Interrupt

	pins   []*gpio.Pin
	linked bool
	closed bool
}

// Open claims SPI instance inst. Its pins are taken from GPIO port 0
// unless the port was opened through a software device.
func Open(res *core.Resources, cpu int, inst uint8) (*Port, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassSPI, inst))
	if err != nil {
		glog.V(3).Infof("spi: device %d: %v", inst, err)
		return nil, err
	}
	p := &Port{
		res:     res,
		claims:  c,
		dev:     types.HWDev(types.ClassSPI, inst),
		base:    m.Base,
		stride:  m.Stride,
		clockID: m.ClockID,
		fdiv:    m.Clock,
	}
	if irq, ok := m.IRQ(0); ok {
		p.irq = &irq
	}
	p.lc = core.NewLifecycle(res, p.dev)
	_ = p.lc.To(cpu, core.Claimed)
	return p, nil
}

// OpenSwdev opens the controller bound to id; the record's pin-mux
// selector names the GPIO port carrying the bus.
func OpenSwdev(res *core.Resources, cpu int, id types.SWDevID) (*Port, error) {
	sw, err := res.Swdev(id)
	if err != nil {
		glog.V(3).Infof("spi: %v - software device could not be found: %v", id, err)
		return nil, err
	}
	if sw.Device.Class() != types.ClassSPI {
		return nil, errcode.Wrap(errcode.InvalidArgument, "spi", id.String()+" is bound to "+sw.Device.String())
	}
	p, err := Open(res, cpu, sw.Device.Instance())
	if err != nil {
		return nil, err
	}
	p.gpioPort = uint8(sw.PinMux)
	return p, nil
}

func (p *Port) Dev() types.HWDevID { return p.dev }
func (p *Port) GPIOPort() uint8    { return p.gpioPort }
func (p *Port) State() core.State  { return p.lc.State() }

func (p *Port) reg(i int) uintptr { return mmio.Reg(p.base, p.stride, i) }
func (p *Port) cpu() int          { return p.claims.Core() }
func (p *Port) bus() mmio.Bus     { return p.res.MMIO }

func (p *Port) checkState(op string, want core.State) error {
	if p.closed {
		return errcode.Wrap(errcode.InvalidArgument, "spi."+op, "port closed")
	}
	if s := p.lc.State(); s != want {
		return errcode.Wrap(errcode.InvalidArgument, "spi."+op, p.dev.String()+" is "+s.String())
	}
	return nil
}

// ClockSelect maps a clock divider to the SPR bits.
func ClockSelect(fdiv uint64) (uint8, error) {
	switch fdiv {
	case 4:
		return 0, nil
	case 16:
		return 1, nil
	case 64:
		return 2, nil
	case 128:
		return 3, nil
	}
	return 0, errcode.Wrap(errcode.InvalidArgument, "spi", "clock divider "+strconv.FormatUint(fdiv, 10))
}

// Setup enables the controller clock, claims the four bus pins and sets
// their directions for the role, then programs SPCR. Nothing stays
// claimed or enabled beyond the controller itself if it fails.
func (p *Port) Setup(cfg Config) (err error) {
	if err := p.checkState("Setup", core.Claimed); err != nil {
		return err
	}
	spr, err := ClockSelect(p.fdiv)
	if err != nil {
		return err
	}
	pins := cfg.Pins
	if pins == ([4]int{}) {
		pins = DefaultPins
	}
	if err := p.res.Clocks.Enable(p.clockID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = p.quiesce()
		}
	}()

	for _, n := range pins {
		pin, err := gpio.PinAlloc(p.res, p.cpu(), p.gpioPort, n)
		if err != nil {
			glog.V(3).Infof("spi: %v pin %d on port %d: %v", p.dev, n, p.gpioPort, err)
			return err
		}
		p.pins = append(p.pins, pin)
	}
	out, in := gpio.Output, gpio.Input
	if cfg.Role == Slave {
		out, in = in, out
	}
	modes := [4]gpio.Mode{MOSI: out, MISO: in, SCK: out, SS: out}
	if cfg.Role == Slave {
		modes[SS] = gpio.Input
	}
	for i, pin := range p.pins {
		if err := pin.Mode(modes[i]); err != nil {
			return err
		}
	}

	spcr := uint8(1<<bitSPE) | spr<<bitSPR0
	if cfg.Role == Master {
		spcr |= 1 << bitMSTR
	}
	if cfg.LSBFirst {
		spcr |= 1 << bitDORD
	}
	if cfg.CPOL {
		spcr |= 1 << bitCPOL
	}
	if cfg.CPHA {
		spcr |= 1 << bitCPHA
	}
	p.bus().Write8(p.reg(regSPCR), spcr)
	glog.V(4).Infof("spi: %v %v, SPCR=%#02x", p.dev, cfg.Role, spcr)
	return p.lc.To(p.cpu(), core.Active)
}

// quiesce disables the controller, unlinks its interrupt, frees its pins
// in reverse order and gates the clock.
func (p *Port) quiesce() error {
	var first error
	keep := func(err error) {
		if first == nil && err != nil {
			first = err
		}
	}
	p.bus().Write8(p.reg(regSPCR), 0)
	if p.linked {
		keep(p.res.IRQ.Unlink(*p.irq, p.cpu()))
		p.linked = false
	}
	for i := len(p.pins) - 1; i >= 0; i-- {
		keep(p.pins[i].Free())
	}
	p.pins = nil
	keep(p.res.Clocks.Disable(p.clockID))
	return first
}

// EnableInterrupt links h to the transfer-complete interrupt.
func (p *Port) EnableInterrupt(h func()) error {
	if err := p.checkState("EnableInterrupt", core.Active); err != nil {
		return err
	}
	if p.irq == nil {
		return errcode.Wrap(errcode.Unsupported, "spi.EnableInterrupt", p.dev.String()+" has no interrupt")
	}
	if p.linked {
		return errcode.Wrap(errcode.Busy, "spi.EnableInterrupt", "already linked")
	}
	if err := p.res.IRQ.Link(*p.irq, p.cpu(), h); err != nil {
		return err
	}
	p.linked = true
	mmio.Set8(p.bus(), p.reg(regSPCR), 1<<bitSPIE)
	return nil
}

func (p *Port) DisableInterrupt() error {
	if err := p.checkState("DisableInterrupt", core.Active); err != nil {
		return err
	}
	mmio.Clear8(p.bus(), p.reg(regSPCR), 1<<bitSPIE)
	if !p.linked {
		return nil
	}
	p.linked = false
	return p.res.IRQ.Unlink(*p.irq, p.cpu())
}

// Done reports whether the last transfer completed.
func (p *Port) Done() bool {
	return p.lc.State() == core.Active && p.bus().Read8(p.reg(regSPSR))&(1<<bitSPIF) != 0
}

// Collision reports a write to the data register during a transfer.
func (p *Port) Collision() bool {
	return p.lc.State() == core.Active && p.bus().Read8(p.reg(regSPSR))&(1<<bitWCOL) != 0
}

func (p *Port) Tx(b byte) error {
	if err := p.checkState("Tx", core.Active); err != nil {
		return err
	}
	p.bus().Write8(p.reg(regSPDR), b)
	return nil
}

func (p *Port) Rx() (byte, error) {
	if err := p.checkState("Rx", core.Active); err != nil {
		return 0, err
	}
	return p.bus().Read8(p.reg(regSPDR)), nil
}

// Transfer shifts b out and returns the byte shifted in.
func (p *Port) Transfer(b byte) (byte, error) {
	if err := p.Tx(b); err != nil {
		return 0, err
	}
	for i := 0; !p.Done(); i++ {
		if i == spinLimit {
			return 0, errcode.Wrap(errcode.Busy, "spi.Transfer", "transfer never completed")
		}
	}
	return p.Rx()
}

// Shutdown disables the controller and releases its pins. The controller
// itself stays claimed.
func (p *Port) Shutdown() error {
	if err := p.checkState("Shutdown", core.Active); err != nil {
		return err
	}
	_ = p.lc.To(p.cpu(), core.ShuttingDown)
	err := p.quiesce()
	_ = p.lc.To(p.cpu(), core.Claimed)
	return err
}

// Close shuts the controller down if needed and releases its claim.
func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	var err error
	if p.lc.State() == core.Active {
		err = p.Shutdown()
	}
	if uerr := p.claims.Unwind(); uerr != nil {
		if err == nil {
			err = uerr
		}
		return err
	}
	p.closed = true
	if p.lc.State() == core.Claimed {
		_ = p.lc.To(p.cpu(), core.Unclaimed)
	}
	return err
}
