package core

import (
	"tinygo.org/x/drivers"

	"hwarb-go/services/hal/internal/ledger"
	"hwarb-go/services/hal/internal/vcall"
	"hwarb-go/types"
	"hwarb-go/x/mmio"
)

// ---- Platform services adapters program through ----

// ClockGate switches module clocks by clock id.
type ClockGate interface {
	Enable(id uint) error
	Disable(id uint) error
}

// IRQController links interrupt lines to handlers. Linking a line that
// is already linked fails with errcode.Busy.
type IRQController interface {
	Link(irq types.Interrupt, core int, handler func()) error
	Unlink(irq types.Interrupt, core int) error
}

// I2CBusFactory maps an I²C instance to a transaction interface.
type I2CBusFactory interface {
	ByInstance(instance uint8) (drivers.I2C, bool)
}

// ---- Adapter → HAL state events ----

// Event reports a lifecycle transition of one claimed module.
type Event struct {
	Dev      types.HWDevID
	From, To State
	Core     int
}

type EventEmitter interface {
	// Emit must not block; false indicates a drop.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

// Resources is everything an adapter may touch. Calls is the only way
// to reach the directory; Ledgers is the only place ownership lives.
type Resources struct {
	Calls   vcall.Caller
	Ledgers ledger.Set
	MMIO    mmio.Bus
	Clocks  ClockGate
	IRQ     IRQController
	I2C     I2CBusFactory
	Pub     EventEmitter // optional
}

// Claims starts an empty claim set for an adapter running on core.
func (r *Resources) Claims(core int) *Claims {
	return &Claims{res: r, core: core}
}

// Swdev resolves a software device through the bridge.
func (r *Resources) Swdev(id types.SWDevID) (*types.SoftwareDeviceRecord, error) {
	return vcall.FetchSwdev(r.Calls, id)
}

// Platform resolves the board-wide properties through the bridge.
func (r *Resources) Platform() (*types.Platform, error) {
	return vcall.FetchPlatform(r.Calls)
}

func (r *Resources) emit(ev Event) {
	if r.Pub != nil {
		r.Pub.Emit(ev)
	}
}
