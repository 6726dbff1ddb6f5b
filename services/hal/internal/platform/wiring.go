package platform

import (
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/services/hal/internal/directory"
	"hwarb-go/services/hal/internal/ledger"
	"hwarb-go/services/hal/internal/vcall"
	"hwarb-go/types"
	"hwarb-go/x/locks"
	"hwarb-go/x/mmio"
)

// Ledgers returns one all-free ledger per class present in d, each
// guarded by its own Bakery lock sized for the board's cores.
func (b Board) Ledgers(d *directory.Directory) ledger.Set {
	set := ledger.Set{}
	for _, c := range types.Classes() {
		n := d.Instances(c)
		if n == 0 {
			continue
		}
		set[c] = ledger.New(c, n, b.Width(c), locks.NewBakery(b.Cores()))
	}
	return set
}

// Host is a board wired to host stand-ins: a sparse register file, clock
// and interrupt fakes and inert I²C buses.
type Host struct {
	Board  Board
	Dir    *directory.Directory
	Regs   *mmio.Sparse
	Clocks *HostClocks
	IRQ    *HostIRQ
	I2C    *HostI2CFactory
	Res    *core.Resources
}

// NewHost builds b's directory and wires resources whose bridge answers
// in the caller's context. Callers wanting the trapped bridge replace
// Res.Calls.
func NewHost(b Board) (*Host, error) {
	d, err := b.Directory()
	if err != nil {
		return nil, err
	}
	h := &Host{
		Board:  b,
		Dir:    d,
		Regs:   mmio.NewSparse(),
		Clocks: &HostClocks{},
		IRQ:    &HostIRQ{},
		I2C:    I2CFactoryFor(&b),
	}
	h.Res = &core.Resources{
		Calls:   vcall.Direct{Src: d},
		Ledgers: b.Ledgers(d),
		MMIO:    h.Regs,
		Clocks:  h.Clocks,
		IRQ:     h.IRQ,
		I2C:     h.I2C,
	}
	return h, nil
}
