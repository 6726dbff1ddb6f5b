// Package uart claims serial ports, configures them and moves bytes.
//
// Two register models are supported, selected by the module's Compat
// string: "avr,usart" (the default) and "ibex,uart", a transmit-only
// data register.
package uart

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
	"hwarb-go/x/mathx"
	"hwarb-go/x/mmio"
)

// USART register indices.
const (
	regUCSRA = 0
	regUCSRB = 1
	regUCSRC = 2
	regUBRRL = 4
	regUBRRH = 5
	regUDR   = 6
)

// USART bits.
const (
	bitRXC   = 7 // UCSRA
	bitTXC   = 6
	bitUDRE  = 5
	bitFE    = 4
	bitRXCIE = 7 // UCSRB
	bitTXCIE = 6
	bitRXEN  = 4
	bitTXEN  = 3
	bitUPM0  = 4 // UCSRC
	bitUCSZ0 = 1
)

const (
	ubrrMax = 0x0fff
	// spinLimit bounds register polling so a dead peripheral surfaces as
	// errcode.Busy rather than a hang.
	spinLimit = 1 << 16
)

type model uint8

const (
	modelUSART model = iota
	modelTxData
)

func modelOf(compat string) (model, error) {
	switch compat {
	case "", "avr,usart":
		return modelUSART, nil
	case "ibex,uart":
		return modelTxData, nil
	}
	return 0, errcode.Wrap(errcode.Unsupported, "uart", "register model "+strconv.Quote(compat))
}

// Config selects how Setup programs the port.
type Config struct {
	Dir    types.Direction
	Parity types.Parity
	Baud   uint64 // 0 uses the module's default rate

	// Interrupt handlers; a nil handler leaves that half polled.
	OnTx, OnRx func()
}

// Port is a claimed serial port.
type Port struct {
	res    *core.Resources
	claims *core.Claims
	lc     *core.Lifecycle
	dev    types.HWDevID
	model  model
	pinmux uint

	base, stride uintptr
	clockID      uint
	baud         uint64
	txIRQ, rxIRQ *types.Interrupt

	linked []types.Interrupt
	intEn  uint8
	closed bool
}

// Open claims UART instance inst for core cpu and resolves its module.
func Open(res *core.Resources, cpu int, inst uint8) (*Port, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassUART, inst))
	if err != nil {
		glog.V(3).Infof("uart: device %d: %v", inst, err)
		return nil, err
	}
	mdl, err := modelOf(m.Compat)
	if err != nil {
		_ = c.Unwind()
		return nil, err
	}
	p := &Port{
		res:     res,
		claims:  c,
		dev:     types.HWDev(types.ClassUART, inst),
		model:   mdl,
		base:    m.Base,
		stride:  m.Stride,
		clockID: m.ClockID,
		baud:    m.Clock,
	}
	if irq, ok := m.IRQ(0); ok {
		p.txIRQ = &irq
	}
	if irq, ok := m.IRQ(1); ok {
		p.rxIRQ = &irq
	}
	p.lc = core.NewLifecycle(res, p.dev)
	_ = p.lc.To(cpu, core.Claimed)
	return p, nil
}

// OpenSwdev resolves a software device (such as the console) to its UART
// and opens it.
func OpenSwdev(res *core.Resources, cpu int, id types.SWDevID) (*Port, error) {
	sw, err := res.Swdev(id)
	if err != nil {
		glog.V(3).Infof("uart: %v - software device could not be found: %v", id, err)
		return nil, err
	}
	if sw.Device.Class() != types.ClassUART {
		return nil, errcode.Wrap(errcode.InvalidArgument, "uart", id.String()+" is bound to "+sw.Device.String())
	}
	p, err := Open(res, cpu, sw.Device.Instance())
	if err != nil {
		return nil, err
	}
	p.pinmux = sw.PinMux
	return p, nil
}

func (p *Port) Dev() types.HWDevID { return p.dev }
func (p *Port) Base() uintptr      { return p.base }
func (p *Port) PinMux() uint       { return p.pinmux }
func (p *Port) State() core.State  { return p.lc.State() }

func (p *Port) reg(i int) uintptr { return mmio.Reg(p.base, p.stride, i) }
func (p *Port) cpu() int          { return p.claims.Core() }
func (p *Port) bus() mmio.Bus     { return p.res.MMIO }
func (p *Port) usart() bool       { return p.model == modelUSART }

func (p *Port) setBits(reg int, mask uint8, on bool) {
	if on {
		mmio.Set8(p.bus(), p.reg(reg), mask)
	} else {
		mmio.Clear8(p.bus(), p.reg(reg), mask)
	}
}

func (p *Port) checkState(op string, want core.State) error {
	if p.closed {
		return errcode.Wrap(errcode.InvalidArgument, "uart."+op, "port closed")
	}
	if p.lc.State() != want {
		return errcode.Wrap(errcode.InvalidArgument, "uart."+op, p.dev.String()+" is "+p.lc.State().String())
	}
	return nil
}

// Setup enables the port's clock, links the interrupts the direction
// needs, programs the baud prescaler from the platform clock and sets an
// 8-bit frame. On failure everything Setup did is undone and the port
// stays claimed.
func (p *Port) Setup(cfg Config) (err error) {
	if err := p.checkState("Setup", core.Claimed); err != nil {
		return err
	}
	if cfg.Parity == types.ParityReserved || cfg.Parity > types.ParityOdd {
		return errcode.Wrap(errcode.InvalidArgument, "uart.Setup", "parity "+strconv.Itoa(int(cfg.Parity)))
	}
	var tx, rx bool
	switch cfg.Dir {
	case types.DirTRx:
		tx, rx = true, true
	case types.DirTx:
		tx = true
	case types.DirRx:
		rx = true
	default:
		return errcode.Wrap(errcode.InvalidArgument, "uart.Setup", "direction "+strconv.Itoa(int(cfg.Dir)))
	}

	if p.usart() {
		p.bus().Write8(p.reg(regUCSRA), 0)
	}
	if err := p.res.Clocks.Enable(p.clockID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.quiesce()
		}
	}()

	plat, err := p.res.Platform()
	if err != nil {
		return err
	}

	if tx && cfg.OnTx != nil && p.txIRQ != nil {
		if err := p.link(*p.txIRQ, "Tx", cfg.OnTx); err != nil {
			return err
		}
		p.intEn |= 1 << bitTXCIE
	}
	if rx && cfg.OnRx != nil && p.rxIRQ != nil {
		if err := p.link(*p.rxIRQ, "Rx", cfg.OnRx); err != nil {
			return err
		}
		p.intEn |= 1 << bitRXCIE
	}

	if p.usart() {
		baud := cfg.Baud
		if baud == 0 {
			baud = p.baud
		}
		ubrr, err := Prescaler(plat.Clock, baud)
		if err != nil {
			return err
		}
		glog.V(5).Infof("uart: %v baud prescaler = %d", p.dev, ubrr)

		var en uint8
		if tx {
			en |= 1 << bitTXEN
		}
		if rx {
			en |= 1 << bitRXEN
		}
		p.setBits(regUCSRB, en|p.intEn, true)
		p.bus().Write8(p.reg(regUBRRH), uint8(ubrr>>8))
		p.bus().Write8(p.reg(regUBRRL), uint8(ubrr))
		// Async, 1 stop bit, 8-bit frame.
		p.bus().Write8(p.reg(regUCSRC), uint8(cfg.Parity)<<bitUPM0|3<<bitUCSZ0)
	} else if rx {
		return errcode.Wrap(errcode.Unsupported, "uart.Setup", p.dev.String()+" cannot receive")
	}

	return p.lc.To(p.cpu(), core.Active)
}

func (p *Port) link(irq types.Interrupt, half string, h func()) error {
	glog.V(5).Infof("uart: linking module#%v %s IRQ#%d", irq.Module, half, irq.ID)
	if err := p.res.IRQ.Link(irq, p.cpu(), h); err != nil {
		return err
	}
	p.linked = append(p.linked, irq)
	return nil
}

// quiesce disables interrupts, unlinks them and gates the clock. It is
// safe to call on a partly configured port.
func (p *Port) quiesce() error {
	var first error
	keep := func(err error) {
		if first == nil && err != nil {
			first = err
		}
	}
	if p.usart() && p.intEn != 0 {
		p.setBits(regUCSRB, p.intEn, false)
	}
	p.intEn = 0
	for i := len(p.linked) - 1; i >= 0; i-- {
		keep(p.res.IRQ.Unlink(p.linked[i], p.cpu()))
	}
	p.linked = nil
	keep(p.res.Clocks.Disable(p.clockID))
	return first
}

// Prescaler returns the UBRR value for baud at the given core clock:
// round(clock / 16·baud) - 1.
func Prescaler(clock, baud uint64) (uint16, error) {
	if baud == 0 || baud > clock/16 {
		return 0, errcode.Wrap(errcode.InvalidArgument, "uart", "baud "+strconv.FormatUint(baud, 10)+" unreachable")
	}
	v := mathx.RoundDiv(clock, 16*baud) - 1
	if v > ubrrMax {
		return 0, errcode.Wrap(errcode.InvalidArgument, "uart", "baud "+strconv.FormatUint(baud, 10)+" too low")
	}
	return uint16(v), nil
}

func (p *Port) wait(reg, bit int) bool {
	for i := 0; i < spinLimit; i++ {
		if p.bus().Read8(p.reg(reg))&(1<<bit) != 0 {
			return true
		}
	}
	return false
}

// Tx writes one byte once the data register is free.
func (p *Port) Tx(b byte) error {
	if err := p.checkState("Tx", core.Active); err != nil {
		return err
	}
	if !p.usart() {
		p.bus().Write32(p.reg(0), uint32(b))
		return nil
	}
	if !p.wait(regUCSRA, bitUDRE) {
		return errcode.Wrap(errcode.Busy, "uart.Tx", "data register never emptied")
	}
	p.bus().Write8(p.reg(regUDR), b)
	return nil
}

// Flush waits for the last byte to leave the shifter and clears the
// transmit-complete flag.
func (p *Port) Flush() error {
	if err := p.checkState("Flush", core.Active); err != nil {
		return err
	}
	if !p.usart() {
		return nil
	}
	if !p.wait(regUCSRA, bitTXC) {
		return errcode.Wrap(errcode.Busy, "uart.Flush", "transmission never completed")
	}
	mmio.Set8(p.bus(), p.reg(regUCSRA), 1<<bitTXC)
	return nil
}

// RxReady reports whether a received byte is waiting.
func (p *Port) RxReady() bool {
	if p.closed || p.lc.State() != core.Active || !p.usart() {
		return false
	}
	return p.bus().Read8(p.reg(regUCSRA))&(1<<bitRXC) != 0
}

// Rx returns the received byte. A frame error is reported only when
// parity is enabled.
func (p *Port) Rx() (byte, error) {
	if err := p.checkState("Rx", core.Active); err != nil {
		return 0, err
	}
	if !p.usart() {
		return 0, errcode.Wrap(errcode.Unsupported, "uart.Rx", p.dev.String()+" cannot receive")
	}
	if p.bus().Read8(p.reg(regUCSRC))&(3<<bitUPM0) != 0 &&
		p.bus().Read8(p.reg(regUCSRA))&(1<<bitFE) != 0 {
		return 0, errcode.Wrap(errcode.Internal, "uart.Rx", "frame error")
	}
	return p.bus().Read8(p.reg(regUDR)), nil
}

// Shutdown disables interrupts, unlinks them and gates the clock. The
// port stays claimed and may be Setup again.
func (p *Port) Shutdown() error {
	if err := p.checkState("Shutdown", core.Active); err != nil {
		return err
	}
	_ = p.lc.To(p.cpu(), core.ShuttingDown)
	err := p.quiesce()
	if p.usart() {
		p.setBits(regUCSRB, 1<<bitTXEN|1<<bitRXEN, false)
	}
	_ = p.lc.To(p.cpu(), core.Claimed)
	return err
}

// Close shuts the port down if needed and releases its claim.
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
