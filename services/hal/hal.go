// Package hal boots the resource arbitration layer for one board and
// hands adapters the directory, the ledgers and the locks.
//
// Boot order is fixed: board, directory, bridge, ledgers. Nothing
// touches the directory after Boot returns except through the bridge.
package hal

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"hwarb-go/bus"
	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/services/hal/internal/directory"
	"hwarb-go/services/hal/internal/platform"
	"hwarb-go/services/hal/internal/vcall"
	"hwarb-go/types"
	"hwarb-go/x/locks"
	"hwarb-go/x/mmio"
)

// Board describes a platform, its modules and the software devices bound
// to them.
type Board = platform.Board

// LookupBoard returns a built-in board by name.
func LookupBoard(name string) (Board, error) { return platform.Lookup(name) }

// BoardNames lists the built-in boards.
func BoardNames() []string { return platform.Names() }

// Options selects the board and how it is wired. Platform services left
// nil are served by host stand-ins.
type Options struct {
	Board Board

	// Trapped routes every directory call through a monitor goroutine
	// instead of answering it in the caller's context.
	Trapped bool

	// Conn, if set, receives retained lifecycle and hal/state messages.
	Conn *bus.Connection

	MMIO   mmio.Bus
	Clocks core.ClockGate
	IRQ    core.IRQController
	I2C    core.I2CBusFactory
}

// StateTopic carries the retained boot state.
func StateTopic() bus.Topic { return bus.T("hal", "state") }

// State is the payload on StateTopic.
type State struct {
	Level string // ready, stopped
	Board string
	Cores int
}

// HAL is a booted board.
type HAL struct {
	board platform.Board
	dir   *directory.Directory
	host  *platform.Host
	res   *core.Resources
	conn  *bus.Connection

	mon     *vcall.Monitor
	stopMon context.CancelFunc
	monDone chan error

	lock   locks.Spin
	bakery *locks.Bakery

	closeOnce sync.Once
	closeErr  error
}

// Boot builds the directory for opts.Board, starts the bridge and sizes
// one all-free ledger per class.
func Boot(ctx context.Context, opts Options) (*HAL, error) {
	host, err := platform.NewHost(opts.Board)
	if err != nil {
		return nil, err
	}
	h := &HAL{
		board:  opts.Board,
		dir:    host.Dir,
		host:   host,
		res:    host.Res,
		conn:   opts.Conn,
		bakery: locks.NewBakery(opts.Board.Cores()),
	}
	if opts.MMIO != nil {
		h.res.MMIO = opts.MMIO
	}
	if opts.Clocks != nil {
		h.res.Clocks = opts.Clocks
	}
	if opts.IRQ != nil {
		h.res.IRQ = opts.IRQ
	}
	if opts.I2C != nil {
		h.res.I2C = opts.I2C
	}
	if opts.Conn != nil {
		h.res.Pub = core.BusEmitter{Conn: opts.Conn}
	}

	if opts.Trapped {
		h.mon = vcall.NewMonitor(h.dir)
		mctx, cancel := context.WithCancel(ctx)
		h.stopMon = cancel
		h.monDone = make(chan error, 1)
		go func() { h.monDone <- h.mon.Run(mctx) }()
		h.res.Calls = h.mon
	}

	glog.V(1).Infof("hal: board %s, %d cores, %d modules, %d software devices, trapped=%v",
		opts.Board.Name, opts.Board.Cores(), len(h.dir.Modules()), len(h.dir.Swdevs()), opts.Trapped)
	h.publishState("ready")
	return h, nil
}

func (h *HAL) publishState(level string) {
	if h.conn == nil {
		return
	}
	h.conn.Publish(h.conn.NewMessage(StateTopic(), State{Level: level, Board: h.board.Name, Cores: h.board.Cores()}, true))
}

// Close stops the monitor, if any. Handles still open stay claimed.
func (h *HAL) Close() error {
	h.closeOnce.Do(func() {
		if h.stopMon != nil {
			h.stopMon()
			if err := <-h.monDone; err != nil && !errors.Is(err, context.Canceled) {
				h.closeErr = err
			}
		}
		h.publishState("stopped")
		glog.V(1).Infof("hal: board %s stopped", h.board.Name)
	})
	return h.closeErr
}

func (h *HAL) Board() Board { return h.board }

// Resources is what adapters are opened with.
func (h *HAL) Resources() *core.Resources { return h.res }

// Host exposes the host stand-ins; services replaced through Options
// are not reflected here.
func (h *HAL) Host() *platform.Host { return h.host }

// Trapped reports whether directory calls go through the monitor.
func (h *HAL) Trapped() bool { return h.mon != nil }

// FetchModule resolves a module through the bridge.
func (h *HAL) FetchModule(c types.Class, instance uint8) (*types.ModuleRecord, error) {
	return vcall.FetchModule(h.res.Calls, c, instance)
}

// FetchSwdev resolves a software device through the bridge.
func (h *HAL) FetchSwdev(id types.SWDevID) (*types.SoftwareDeviceRecord, error) {
	return vcall.FetchSwdev(h.res.Calls, id)
}

func (h *HAL) Platform() (*types.Platform, error) {
	return vcall.FetchPlatform(h.res.Calls)
}

// Claim records cpu as the owner of key.
func (h *HAL) Claim(cpu int, key types.ResourceKey) error {
	l, err := h.res.Ledgers.For(key.Class)
	if err != nil {
		return err
	}
	return l.ClaimKey(cpu, key)
}

// Release gives key back. Releasing a free key is a no-op.
func (h *HAL) Release(cpu int, key types.ResourceKey) error {
	l, err := h.res.Ledgers.For(key.Class)
	if err != nil {
		return err
	}
	return l.ReleaseKey(cpu, key)
}

// Lock and Unlock are the board-wide generic lock. It is not fair; use
// Bakery where waiting must be bounded.
func (h *HAL) Lock(cpu int)   { h.lock.Acquire(cpu) }
func (h *HAL) Unlock(cpu int) { h.lock.Release(cpu) }

// Bakery is a fair lock sized for the board's cores.
func (h *HAL) Bakery() *locks.Bakery { return h.bakery }

// RunCores runs fn once per core, each on its own goroutine, and waits
// for all of them. The first error cancels the others' context.
func (h *HAL) RunCores(ctx context.Context, fn func(ctx context.Context, cpu int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < h.board.Cores(); c++ {
		g.Go(func() error { return fn(gctx, c) })
	}
	return g.Wait()
}

// Ledger snapshots the ownership bitmap of class c as seen from cpu.
func (h *HAL) Ledger(cpu int, c types.Class) ([]uint64, error) {
	l, err := h.res.Ledgers.For(c)
	if err != nil {
		return nil, errcode.Wrap(errcode.Of(err), "hal.Ledger", c.String())
	}
	return l.Snapshot(cpu)
}
