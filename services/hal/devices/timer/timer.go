// Package timer claims hardware timers, programs their mode and
// prescaler and links their compare-match interrupt.
package timer

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
	"hwarb-go/x/mmio"
)

// Mode is the waveform generation mode.
type Mode uint8

const (
	Normal  Mode = iota // count up, overflow at top
	CTC                 // clear on compare match
	FastPWM             // 8-bit fast PWM
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case CTC:
		return "ctc"
	case FastPWM:
		return "fast_pwm"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// MaxPrescaler is the largest clock-select value; 0 stops the counter.
const MaxPrescaler = 7

// Control bits shared by both counter widths.
const (
	bitCOMA0 = 6 // TCCRA, output compare A mode
	bitOCIEA = 1 // IMSK, compare A interrupt enable
	maskCS   = 0x07
)

// regs is a counter's register layout. The 8-bit and 16-bit counters
// differ in where the counter and compare registers sit and in how the
// mode bits are split between the two control registers.
type regs struct {
	wide             bool
	tccra, tccrb     int
	tcnt, ocra, imsk int
	wgmA, wgmB       [3]uint8 // per Mode
}

var (
	timer8 = regs{
		tccra: 0,
		tccrb: 1,
		tcnt:  2,
		ocra:  3,
		imsk:  4,
		wgmA:  [3]uint8{0, 0x02, 0x03},
	}
	timer16 = regs{
		wide:  true,
		tccra: 0,
		tccrb: 1,
		tcnt:  4,
		ocra:  8,
		imsk:  14,
		wgmA:  [3]uint8{0, 0, 0x01},
		wgmB:  [3]uint8{0, 0x08, 0x08},
	}
)

func layoutOf(compat string) (*regs, error) {
	switch compat {
	case "", "avr,timer8":
		return &timer8, nil
	case "avr,timer16":
		return &timer16, nil
	}
	return nil, errcode.Wrap(errcode.Unsupported, "timer", "register model "+strconv.Quote(compat))
}

// Config selects how Setup programs the counter.
type Config struct {
	Mode      Mode
	Prescaler uint8 // clock select, 0..MaxPrescaler

	// Compare is loaded into compare register A when OnMatch is set.
	Compare uint16
	OnMatch func()
}

// Port is a claimed timer.
type Port struct {
	res    *core.Resources
	claims *core.Claims
	lc     *core.Lifecycle
	dev    types.HWDevID
	regs   *regs

	base, stride uintptr
	clockID      uint
	clock        uint64
	irq          *types.Interrupt
	linked       bool
	closed       bool
}

// Open claims timer instance inst for core cpu.
func Open(res *core.Resources, cpu int, inst uint8) (*Port, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassTimer, inst))
	if err != nil {
		glog.V(3).Infof("timer: device %d: %v", inst, err)
		return nil, err
	}
	r, err := layoutOf(m.Compat)
	if err != nil {
		_ = c.Unwind()
		return nil, err
	}
	p := &Port{
		res:     res,
		claims:  c,
		dev:     types.HWDev(types.ClassTimer, inst),
		regs:    r,
		base:    m.Base,
		stride:  m.Stride,
		clockID: m.ClockID,
		clock:   m.Clock,
	}
	if irq, ok := m.IRQ(0); ok {
		p.irq = &irq
	}
	p.lc = core.NewLifecycle(res, p.dev)
	_ = p.lc.To(cpu, core.Claimed)
	return p, nil
}

// OpenSwdev opens the timer bound to a software device such as the
// scheduler tick.
func OpenSwdev(res *core.Resources, cpu int, id types.SWDevID) (*Port, error) {
	sw, err := res.Swdev(id)
	if err != nil {
		glog.V(3).Infof("timer: %v - software device could not be found: %v", id, err)
		return nil, err
	}
	if sw.Device.Class() != types.ClassTimer {
		return nil, errcode.Wrap(errcode.InvalidArgument, "timer", id.String()+" is bound to "+sw.Device.String())
	}
	return Open(res, cpu, sw.Device.Instance())
}

func (p *Port) Dev() types.HWDevID { return p.dev }
func (p *Port) Clock() uint64      { return p.clock }
func (p *Port) Wide() bool         { return p.regs.wide }
func (p *Port) State() core.State  { return p.lc.State() }

func (p *Port) reg(i int) uintptr { return mmio.Reg(p.base, p.stride, i) }
func (p *Port) cpu() int          { return p.claims.Core() }
func (p *Port) bus() mmio.Bus     { return p.res.MMIO }

func (p *Port) checkState(op string, want core.State) error {
	if p.closed {
		return errcode.Wrap(errcode.InvalidArgument, "timer."+op, "port closed")
	}
	if s := p.lc.State(); s != want {
		return errcode.Wrap(errcode.InvalidArgument, "timer."+op, p.dev.String()+" is "+s.String())
	}
	return nil
}

// write16 stores v high byte first so the counter latches both halves.
func (p *Port) write16(i int, v uint16) {
	if !p.regs.wide {
		p.bus().Write8(p.reg(i), uint8(v))
		return
	}
	p.bus().Write8(p.reg(i+1), uint8(v>>8))
	p.bus().Write8(p.reg(i), uint8(v))
}

// read16 loads the low byte first; on hardware that latches the high one.
func (p *Port) read16(i int) uint16 {
	lo := uint16(p.bus().Read8(p.reg(i)))
	if !p.regs.wide {
		return lo
	}
	return uint16(p.bus().Read8(p.reg(i+1)))<<8 | lo
}

func (p *Port) setMode(m Mode) {
	r := p.regs
	a, b := p.reg(r.tccra), p.reg(r.tccrb)
	p.bus().Write8(a, p.bus().Read8(a)&^0x03|r.wgmA[m])
	p.bus().Write8(b, p.bus().Read8(b)&^0x18|r.wgmB[m])
}

func (p *Port) setPrescaler(cs uint8) {
	b := p.reg(p.regs.tccrb)
	p.bus().Write8(b, p.bus().Read8(b)&^maskCS|cs&maskCS)
}

// Setup enables the timer clock, links the compare interrupt when a
// handler is given, and programs mode and prescaler. A failed Setup
// leaves the timer claimed and quiet.
func (p *Port) Setup(cfg Config) (err error) {
	if err := p.checkState("Setup", core.Claimed); err != nil {
		return err
	}
	if cfg.Mode > FastPWM {
		return errcode.Wrap(errcode.InvalidArgument, "timer.Setup", cfg.Mode.String())
	}
	if cfg.Prescaler > MaxPrescaler {
		return errcode.Wrap(errcode.InvalidArgument, "timer.Setup", "prescaler "+strconv.Itoa(int(cfg.Prescaler)))
	}
	if !p.regs.wide && cfg.Compare > 0xff {
		return errcode.Wrap(errcode.InvalidArgument, "timer.Setup", "compare value exceeds 8 bits")
	}
	if err := p.res.Clocks.Enable(p.clockID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = p.quiesce()
		}
	}()

	if cfg.OnMatch != nil {
		if p.irq == nil {
			return errcode.Wrap(errcode.Unsupported, "timer.Setup", p.dev.String()+" has no interrupt")
		}
		p.write16(p.regs.ocra, cfg.Compare)
		glog.V(5).Infof("timer: linking module#%v IRQ#%d", p.irq.Module, p.irq.ID)
		if err := p.res.IRQ.Link(*p.irq, p.cpu(), cfg.OnMatch); err != nil {
			return err
		}
		p.linked = true
		mmio.Set8(p.bus(), p.reg(p.regs.imsk), 1<<bitOCIEA)
	}
	p.setMode(cfg.Mode)
	p.setPrescaler(cfg.Prescaler)
	glog.V(4).Infof("timer: %v %v, prescaler %d", p.dev, cfg.Mode, cfg.Prescaler)
	return p.lc.To(p.cpu(), core.Active)
}

// quiesce stops the counter, masks and unlinks its interrupt and gates
// the clock.
func (p *Port) quiesce() error {
	p.setMode(Normal)
	p.setPrescaler(0)
	mmio.Clear8(p.bus(), p.reg(p.regs.imsk), 1<<bitOCIEA)
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

// Read returns the current counter value.
func (p *Port) Read() (uint16, error) {
	if err := p.checkState("Read", core.Active); err != nil {
		return 0, err
	}
	return p.read16(p.regs.tcnt), nil
}

// SetPWM drives output compare A with duty v, inverted if asked.
func (p *Port) SetPWM(invert bool, v uint16) error {
	if err := p.checkState("SetPWM", core.Active); err != nil {
		return err
	}
	if !p.regs.wide && v > 0xff {
		return errcode.Wrap(errcode.InvalidArgument, "timer.SetPWM", "duty exceeds 8 bits")
	}
	com := uint8(2)
	if invert {
		com = 3
	}
	a := p.reg(p.regs.tccra)
	p.bus().Write8(a, p.bus().Read8(a)&^(3<<bitCOMA0)|com<<bitCOMA0)
	p.write16(p.regs.ocra, v)
	return nil
}

// Shutdown stops the timer. It stays claimed and may be set up again.
func (p *Port) Shutdown() error {
	if err := p.checkState("Shutdown", core.Active); err != nil {
		return err
	}
	_ = p.lc.To(p.cpu(), core.ShuttingDown)
	err := p.quiesce()
	_ = p.lc.To(p.cpu(), core.Claimed)
	return err
}

// Close shuts the timer down if needed and releases its claim.
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
