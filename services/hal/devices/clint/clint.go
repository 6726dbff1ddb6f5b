// Package clint drives the core-local interruptor: the free-running
// machine timer and the per-core time-compare registers.
package clint

import (
	"strconv"

	"github.com/golang/glog"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
)

const (
	offMTIMECMP = 0x0 // first core's compare register; later cores follow at Stride
	offMTIME    = 0x8
)

// Port is the claimed CLINT.
type Port struct {
	res    *core.Resources
	claims *core.Claims
	lc     *core.Lifecycle
	plat   *types.Platform

	base, stride uintptr
	closed       bool
}

// Open claims CLINT instance 0 for core cpu and zeroes the machine
// timer.
func Open(res *core.Resources, cpu int) (*Port, error) {
	c := res.Claims(cpu)
	m, err := c.Take(types.WholeKey(types.ClassCLINT, 0))
	if err != nil {
		glog.V(3).Infof("clint: %v", err)
		return nil, err
	}
	plat, err := res.Platform()
	if err != nil {
		_ = c.Unwind()
		return nil, err
	}
	p := &Port{
		res:    res,
		claims: c,
		plat:   plat,
		base:   m.Base,
		stride: m.Stride,
		lc:     core.NewLifecycle(res, types.HWDev(types.ClassCLINT, 0)),
	}
	_ = p.lc.To(cpu, core.Claimed)
	res.MMIO.Write64(p.base+offMTIME, 0)
	_ = p.lc.To(cpu, core.Active)
	glog.V(4).Infof("clint: @ %#x, %d cores", p.base, len(plat.CPUs))
	return p, nil
}

func (p *Port) State() core.State { return p.lc.State() }

// ConfigTimeCompare arms the compare register of core hart with v.
func (p *Port) ConfigTimeCompare(hart int, v uint64) error {
	if p.lc.State() != core.Active {
		return errcode.Wrap(errcode.InvalidArgument, "clint.ConfigTimeCompare", "port "+p.lc.State().String())
	}
	if !p.plat.HasCore(hart) {
		return errcode.Wrap(errcode.InvalidArgument, "clint.ConfigTimeCompare", "no core "+strconv.Itoa(hart))
	}
	p.res.MMIO.Write64(p.base+offMTIMECMP+uintptr(hart)*p.stride, v)
	return nil
}

// ReadTime returns the machine timer.
func (p *Port) ReadTime() (uint64, error) {
	if p.lc.State() != core.Active {
		return 0, errcode.Wrap(errcode.InvalidArgument, "clint.ReadTime", "port "+p.lc.State().String())
	}
	return p.res.MMIO.Read64(p.base + offMTIME), nil
}

// Close releases the CLINT. If the release fails the port stays shutting
// down and Close may be called again.
func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	cpu := p.claims.Core()
	if p.lc.State() == core.Active {
		_ = p.lc.To(cpu, core.ShuttingDown)
	}
	if err := p.claims.Unwind(); err != nil {
		return err
	}
	p.closed = true
	return p.lc.To(cpu, core.Unclaimed)
}
