// Package i2c claims an I²C controller and hands out the bus behind it
// as a tinygo drivers.I2C.
package i2c

import (
	"github.com/golang/glog"
	"tinygo.org/x/drivers"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
)

// Bus is a claimed I²C controller. It satisfies drivers.I2C until Close.
type Bus struct {
	claims  *core.Claims
	lc      *core.Lifecycle
	res     *core.Resources
	dev     types.HWDevID
	clockID uint
	freq    uint64
	i2c     drivers.I2C
	closed  bool
}

var _ drivers.I2C = (*Bus)(nil)

// Open claims controller inst for core cpu, enables its clock and
// attaches the platform bus. A controller with no bus behind it is given
// back and reported as errcode.NotFound.
func Open(res *core.Resources, cpu int, inst uint8) (*Bus, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassI2C, inst))
	if err != nil {
		glog.V(3).Infof("i2c: device %d: %v", inst, err)
		return nil, err
	}
	var bus drivers.I2C
	ok := false
	if res.I2C != nil {
		bus, ok = res.I2C.ByInstance(inst)
	}
	if !ok {
		_ = c.Unwind()
		return nil, errcode.Wrap(errcode.NotFound, "i2c", "no bus behind "+types.HWDev(types.ClassI2C, inst).String())
	}
	if err := res.Clocks.Enable(m.ClockID); err != nil {
		_ = c.Unwind()
		return nil, err
	}
	b := &Bus{
		claims:  c,
		res:     res,
		dev:     types.HWDev(types.ClassI2C, inst),
		clockID: m.ClockID,
		freq:    m.Clock,
		i2c:     bus,
	}
	b.lc = core.NewLifecycle(res, b.dev)
	_ = b.lc.To(cpu, core.Claimed)
	_ = b.lc.To(cpu, core.Active)
	glog.V(4).Infof("i2c: %v up at %d Hz", b.dev, b.freq)
	return b, nil
}

// OpenSwdev opens the controller bound to a software device.
func OpenSwdev(res *core.Resources, cpu int, id types.SWDevID) (*Bus, error) {
	sw, err := res.Swdev(id)
	if err != nil {
		glog.V(3).Infof("i2c: %v - software device could not be found: %v", id, err)
		return nil, err
	}
	if sw.Device.Class() != types.ClassI2C {
		return nil, errcode.Wrap(errcode.InvalidArgument, "i2c", id.String()+" is bound to "+sw.Device.String())
	}
	return Open(res, cpu, sw.Device.Instance())
}

func (b *Bus) Dev() types.HWDevID { return b.dev }

// Frequency is the module's configured bus rate in Hz.
func (b *Bus) Frequency() uint64 { return b.freq }

// Tx performs a write followed by a repeated-start read.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if b.closed {
		return errcode.Wrap(errcode.InvalidArgument, "i2c.Tx", "bus closed")
	}
	return b.i2c.Tx(addr, w, r)
}

// ReadRegister reads len(buf) bytes starting at register reg.
func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes data starting at register reg.
func (b *Bus) WriteRegister(addr uint8, reg uint8, data []byte) error {
	w := make([]byte, 0, 1+len(data))
	w = append(w, reg)
	w = append(w, data...)
	return b.Tx(uint16(addr), w, nil)
}

// Close gates the controller clock and releases the claim.
func (b *Bus) Close() error {
	if b.closed {
		return nil
	}
	cpu := b.claims.Core()
	if b.lc.State() == core.Active {
		_ = b.lc.To(cpu, core.ShuttingDown)
	}
	err := b.res.Clocks.Disable(b.clockID)
	if uerr := b.claims.Unwind(); uerr != nil {
		if err == nil {
			err = uerr
		}
		return err
	}
	b.closed = true
	_ = b.lc.To(cpu, core.Unclaimed)
	return err
}
