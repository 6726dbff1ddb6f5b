// Package adc claims the analog-to-digital converter, selects its
// reference, trigger and channel and reads back conversions.
package adc

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
	"hwarb-go/x/mmio"
)

// Register offsets from the module base.
const (
	regADCL = iota
	regADCH
	regADCSRA
	regADCSRB
	regADMUX
)

const (
	bitADEN  = 7 // ADCSRA
	bitADSC  = 6
	bitADATE = 5
	bitADIE  = 3
	maskADPS = 0x07

	maskADTS = 0x07 // ADCSRB

	shiftREFS = 6 // ADMUX
	maskREFS  = 0x03 << shiftREFS
	bitADLAR  = 5
	maskMUX   = 0x0f
)

// MaxChannel is the highest multiplexer input. Channels 0..7 are pins;
// TempChannel reads the on-die temperature sensor.
const (
	MaxChannel  = 8
	TempChannel = 8
)

// Ref is the conversion reference voltage.
type Ref uint8

const (
	RefExternal Ref = 0 // AREF pin
	RefAVCC     Ref = 1
	RefInternal Ref = 3 // 1.1 V bandgap
)

func (r Ref) String() string {
	switch r {
	case RefExternal:
		return "aref"
	case RefAVCC:
		return "avcc"
	case RefInternal:
		return "1v1"
	}
	return "ref(" + strconv.Itoa(int(r)) + ")"
}

// Trigger starts conversions. Single converts once per ConfigPin; every
// other value turns on auto-triggering from that source.
type Trigger uint8

const (
	Single Trigger = iota
	FreeRun
	AnalogComparator
	ExtInt0
	Timer0CompareA
	Timer0Overflow
	Timer1CompareB
	Timer1Overflow
	Timer1Capture
)

// Config selects how Setup programs the converter.
type Config struct {
	// Divisor scales the core clock down to the converter clock. It is a
	// power of two from 2 to 128.
	Divisor uint8
	// OnDone runs on the conversion-complete interrupt when set.
	OnDone func()
}

// Port is the claimed converter.
type Port struct {
	res    *core.Resources
	claims *core.Claims
	lc     *core.Lifecycle
	dev    types.HWDevID

	base, stride uintptr
	clockID      uint
	irq          *types.Interrupt
	linked       bool
	closed       bool
}

// Open claims converter instance inst for core cpu.
func Open(res *core.Resources, cpu int, inst uint8) (*Port, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassADC, inst))
	if err != nil {
		glog.V(3).Infof("adc: device %d: %v", inst, err)
		return nil, err
	}
	if m.Compat != "" && m.Compat != "avr,adc" {
		_ = c.Unwind()
		return nil, errcode.Wrap(errcode.Unsupported, "adc", "register model "+strconv.Quote(m.Compat))
	}
	p := &Port{
		res:     res,
		claims:  c,
		dev:     types.HWDev(types.ClassADC, inst),
		base:    m.Base,
		stride:  m.Stride,
		clockID: m.ClockID,
	}
	if irq, ok := m.IRQ(0); ok {
		p.irq = &irq
	}
	p.lc = core.NewLifecycle(res, p.dev)
	_ = p.lc.To(cpu, core.Claimed)
	return p, nil
}

func (p *Port) Dev() types.HWDevID { return p.dev }
func (p *Port) State() core.State  { return p.lc.State() }

func (p *Port) reg(i int) uintptr { return mmio.Reg(p.base, p.stride, i) }
func (p *Port) cpu() int          { return p.claims.Core() }
func (p *Port) bus() mmio.Bus     { return p.res.MMIO }

func (p *Port) checkState(op string, want core.State) error {
	if p.closed {
		return errcode.Wrap(errcode.InvalidArgument, "adc."+op, "port closed")
	}
	if s := p.lc.State(); s != want {
		return errcode.Wrap(errcode.InvalidArgument, "adc."+op, p.dev.String()+" is "+s.String())
	}
	return nil
}

// prescaler maps a clock divisor to its ADPS field.
func prescaler(div uint8) (uint8, bool) {
	for ps := uint8(1); ps <= maskADPS; ps++ {
		if div == 1<<ps {
			return ps, true
		}
	}
	return 0, false
}

func (p *Port) update(i int, mask, v uint8) {
	r := p.reg(i)
	p.bus().Write8(r, p.bus().Read8(r)&^mask|v&mask)
}

// Setup enables the converter clock, links the conversion-complete
// interrupt when a handler is given and powers the converter up. A
// failed Setup leaves it claimed and off.
func (p *Port) Setup(cfg Config) (err error) {
	if err := p.checkState("Setup", core.Claimed); err != nil {
		return err
	}
	ps, ok := prescaler(cfg.Divisor)
	if !ok {
		return errcode.Wrap(errcode.InvalidArgument, "adc.Setup", "clock divisor "+strconv.Itoa(int(cfg.Divisor)))
	}
	if err := p.res.Clocks.Enable(p.clockID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = p.quiesce()
		}
	}()

	mmio.Set8(p.bus(), p.reg(regADCSRA), 1<<bitADEN)
	p.update(regADCSRA, maskADPS, ps)
	if cfg.OnDone != nil {
		if p.irq == nil {
			return errcode.Wrap(errcode.Unsupported, "adc.Setup", p.dev.String()+" has no interrupt")
		}
		glog.V(5).Infof("adc: linking module#%v IRQ#%d", p.irq.Module, p.irq.ID)
		if err := p.res.IRQ.Link(*p.irq, p.cpu(), cfg.OnDone); err != nil {
			return err
		}
		p.linked = true
		mmio.Set8(p.bus(), p.reg(regADCSRA), 1<<bitADIE)
	}
	glog.V(4).Infof("adc: %v clk/%d", p.dev, cfg.Divisor)
	return p.lc.To(p.cpu(), core.Active)
}

// quiesce masks and unlinks the interrupt, powers the converter down
// and gates its clock.
func (p *Port) quiesce() error {
	mmio.Clear8(p.bus(), p.reg(regADCSRA), 1<<bitADIE|1<<bitADATE|1<<bitADEN)
	var err error
	if p.linked {
		err = p.res.IRQ.Unlink(*p.irq, p.cpu())
		p.linked = false
	}
	if cerr := p.res.Clocks.Disable(p.clockID); err == nil {
		err = cerr
	}
	return err
}

// EnableInterrupt unmasks conversion-complete interrupts. Setup must
// have linked a handler.
func (p *Port) EnableInterrupt() error {
	if err := p.checkState("EnableInterrupt", core.Active); err != nil {
		return err
	}
	if !p.linked {
		return errcode.Wrap(errcode.InvalidArgument, "adc.EnableInterrupt", "no handler linked")
	}
	mmio.Set8(p.bus(), p.reg(regADCSRA), 1<<bitADIE)
	return nil
}

func (p *Port) DisableInterrupt() error {
	if err := p.checkState("DisableInterrupt", core.Active); err != nil {
		return err
	}
	mmio.Clear8(p.bus(), p.reg(regADCSRA), 1<<bitADIE)
	return nil
}

// ConfigPin selects the reference, result width and trigger for channel
// ch and starts a conversion. bits is 8 or 10; 8-bit results are left
// adjusted so only the high data register needs reading.
func (p *Port) ConfigPin(ch uint8, trig Trigger, bits int, ref Ref) error {
	if err := p.checkState("ConfigPin", core.Active); err != nil {
		return err
	}
	switch {
	case ch > MaxChannel:
		return errcode.Wrap(errcode.InvalidArgument, "adc.ConfigPin", "channel "+strconv.Itoa(int(ch)))
	case trig > Timer1Capture:
		return errcode.Wrap(errcode.InvalidArgument, "adc.ConfigPin", "trigger "+strconv.Itoa(int(trig)))
	case bits != 8 && bits != 10:
		return errcode.Wrap(errcode.InvalidArgument, "adc.ConfigPin", strconv.Itoa(bits)+"-bit resolution")
	case ref != RefExternal && ref != RefAVCC && ref != RefInternal:
		return errcode.Wrap(errcode.InvalidArgument, "adc.ConfigPin", ref.String())
	}
	if p.Busy() {
		return errcode.Wrap(errcode.Busy, "adc.ConfigPin", "conversion in progress")
	}

	mux := uint8(ref)<<shiftREFS | ch&maskMUX
	if bits == 8 {
		mux |= 1 << bitADLAR
	}
	p.bus().Write8(p.reg(regADMUX), mux)
	if trig == Single {
		mmio.Clear8(p.bus(), p.reg(regADCSRA), 1<<bitADATE)
	} else {
		p.update(regADCSRB, maskADTS, uint8(trig-1))
		mmio.Set8(p.bus(), p.reg(regADCSRA), 1<<bitADATE)
	}
	glog.V(5).Infof("adc: %v channel %d, %d-bit, ref %v", p.dev, ch, bits, ref)
	mmio.Set8(p.bus(), p.reg(regADCSRA), 1<<bitADSC)
	return nil
}

// Busy reports whether a conversion is in progress.
func (p *Port) Busy() bool {
	return p.bus().Read8(p.reg(regADCSRA))&(1<<bitADSC) != 0
}

// Read returns the last conversion. It fails with Busy while one is
// still running. The reference and adjustment are reset afterwards.
func (p *Port) Read() (uint16, error) {
	if err := p.checkState("Read", core.Active); err != nil {
		return 0, err
	}
	if p.Busy() {
		return 0, errcode.Wrap(errcode.Busy, "adc.Read", "conversion in progress")
	}
	var v uint16
	if p.bus().Read8(p.reg(regADMUX))&(1<<bitADLAR) != 0 {
		v = uint16(p.bus().Read8(p.reg(regADCH)))
	} else {
		lo := uint16(p.bus().Read8(p.reg(regADCL)))
		v = uint16(p.bus().Read8(p.reg(regADCH))&0x03)<<8 | lo
	}
	mmio.Clear8(p.bus(), p.reg(regADMUX), maskREFS|1<<bitADLAR)
	return v, nil
}

// Shutdown powers the converter down. It stays claimed and may be set
// up again.
func (p *Port) Shutdown() error {
	if err := p.checkState("Shutdown", core.Active); err != nil {
		return err
	}
	_ = p.lc.To(p.cpu(), core.ShuttingDown)
	err := p.quiesce()
	_ = p.lc.To(p.cpu(), core.Claimed)
	return err
}

// Close shuts the converter down if needed and releases its claim.
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
