// Package earlycon is a transmit-only console on the UART bound to the
// console software device, usable before anything else is brought up.
package earlycon

import (
	"io"
	"sync"

	"github.com/golang/glog"

	"hwarb-go/services/hal/devices/uart"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/types"
)

// Console writes bytes to the console UART, waiting for each to leave
// the shifter.
type Console struct {
	mu   sync.Mutex
	port *uart.Port
}

var _ io.Writer = (*Console)(nil)

// Open resolves the console software device, claims its UART and sets
// it up for transmit without parity at the module's default rate.
func Open(res *core.Resources, cpu int) (*Console, error) {
	p, err := uart.OpenSwdev(res, cpu, types.SWConsole)
	if err != nil {
		return nil, err
	}
	if err := p.Setup(uart.Config{Dir: types.DirTx, Parity: types.ParityNone}); err != nil {
		glog.V(3).Infof("earlycon: %v setup: %v", p.Dev(), err)
		_ = p.Close()
		return nil, err
	}
	glog.V(3).Infof("earlycon: %v @ %#x", p.Dev(), p.Base())
	return &Console{port: p}, nil
}

func (c *Console) Port() *uart.Port { return c.port }

func (c *Console) WriteByte(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(b)
}

func (c *Console) put(b byte) error {
	if err := c.port.Tx(b); err != nil {
		return err
	}
	return c.port.Flush()
}

// Write sends p byte by byte and stops at the first failure.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range p {
		if err := c.put(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Close shuts the UART down and releases it.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}
