package spi

import (
	"errors"
	"testing"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/devices/gpio"
	"hwarb-go/services/hal/internal/core"
	"hwarb-go/services/hal/internal/platform"
	"hwarb-go/types"
)

func newHost(t *testing.T, b platform.Board) *platform.Host {
	t.Helper()
	h, err := platform.NewHost(b)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func gpioWord(t *testing.T, h *platform.Host, port uint8) uint64 {
	t.Helper()
	l, err := h.Res.Ledgers.For(types.ClassGPIO)
	if err != nil {
		t.Fatal(err)
	}
	words, err := l.Snapshot(0)
	if err != nil {
		t.Fatal(err)
	}
	return words[port]
}

func TestMasterSetupClaimsBusPins(t *testing.T) {
	h := newHost(t, platform.ATmega328P())
	p, err := OpenSwdev(h.Res, 0, types.SWBusSPI)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Setup(Config{Role: Master, CPHA: true}); err != nil {
		t.Fatal(err)
	}
	if got := gpioWord(t, h, 0); got != 1<<2|1<<3|1<<4|1<<5 {
		t.Fatalf("PORTB claims = %#b", got)
	}
	// MOSI, SCK and SS drive; MISO listens.
	if ddr := h.Regs.Read8(0x24); ddr != 1<<3|1<<5|1<<2 {
		t.Fatalf("DDRB = %#b", ddr)
	}
	if spcr := h.Regs.Read8(0x4C); spcr != 1<<bitSPE|1<<bitMSTR|1<<bitCPHA {
		t.Fatalf("SPCR = %#b", spcr)
	}
	if !h.Clocks.Enabled(2) {
		t.Fatal("spi clock not enabled")
	}
	if _, err := gpio.PinAlloc(h.Res, 0, 0, 5); !errors.Is(err, errcode.Busy) {
		t.Fatalf("SCK allocatable while bus is up: %v", err)
	}

	// The register file echoes SPDR, so a completed transfer reads back
	// what was sent.
	h.Regs.Poke(0x4D, 1, 1<<bitSPIF)
	if got, err := p.Transfer(0xA5); err != nil || got != 0xA5 {
		t.Fatalf("Transfer = %#x, %v", got, err)
	}

	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if got := gpioWord(t, h, 0); got != 0 {
		t.Fatalf("pins still claimed after shutdown: %#b", got)
	}
	if h.Regs.Read8(0x4C) != 0 || h.Clocks.Enabled(2) {
		t.Fatal("controller left enabled")
	}
	if p.State() != core.Claimed {
		t.Fatalf("state = %v", p.State())
	}
	_ = p.Close()
}

func TestSlaveDirections(t *testing.T) {
	h := newHost(t, platform.HostQuad())
	p, err := OpenSwdev(h.Res, 2, types.SWBusSPI)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Setup(Config{Role: Slave, LSBFirst: true}); err != nil {
		t.Fatal(err)
	}
	// Only MISO drives in slave role.
	if ddr := h.Regs.Read8(0x1001); ddr != 1<<4 {
		t.Fatalf("DDR = %#b", ddr)
	}
	if spcr := h.Regs.Read8(0x4000); spcr != 1<<bitSPE|1<<bitDORD|1<<bitSPR0 {
		t.Fatalf("SPCR = %#b", spcr)
	}
	_ = p.Close()
	if got := gpioWord(t, h, 0); got != 0 {
		t.Fatalf("pins still claimed after close: %#b", got)
	}
}

// A pin held elsewhere fails the setup and the pins taken before it are
// given back.
func TestSetupUnwindsPins(t *testing.T) {
	h := newHost(t, platform.ATmega328P())
	sck, err := gpio.PinAlloc(h.Res, 0, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	p, err := Open(h.Res, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Setup(Config{}); !errors.Is(err, errcode.Busy) {
		t.Fatalf("Setup = %v, want busy", err)
	}
	if got := gpioWord(t, h, 0); got != 1<<5 {
		t.Fatalf("PORTB claims after failed setup = %#b", got)
	}
	if h.Clocks.Enabled(2) || p.State() != core.Claimed {
		t.Fatal("failed setup left the controller running")
	}

	_ = sck.Free()
	if err := p.Setup(Config{}); err != nil {
		t.Fatalf("setup after pin freed: %v", err)
	}
	_ = p.Close()
}

func TestInterruptLink(t *testing.T) {
	h := newHost(t, platform.ATmega328P())
	p, err := Open(h.Res, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.EnableInterrupt(func() {}); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("interrupt before setup = %v", err)
	}
	if err := p.Setup(Config{}); err != nil {
		t.Fatal(err)
	}
	fired := false
	if err := p.EnableInterrupt(func() { fired = true }); err != nil {
		t.Fatal(err)
	}
	if h.Regs.Read8(0x4C)&(1<<bitSPIE) == 0 {
		t.Fatal("SPIE not set")
	}
	h.IRQ.Fire(types.Interrupt{Module: types.IntLocal, ID: 17})
	if !fired {
		t.Fatal("handler not linked")
	}
	if err := p.DisableInterrupt(); err != nil {
		t.Fatal(err)
	}
	if h.IRQ.Linked(types.Interrupt{Module: types.IntLocal, ID: 17}) {
		t.Fatal("still linked")
	}
	_ = p.Close()
}

func TestClockSelect(t *testing.T) {
	for fdiv, want := range map[uint64]uint8{4: 0, 16: 1, 64: 2, 128: 3} {
		if got, err := ClockSelect(fdiv); err != nil || got != want {
			t.Errorf("ClockSelect(%d) = %d, %v", fdiv, got, err)
		}
	}
	if _, err := ClockSelect(8); errcode.Of(err) != errcode.InvalidArgument {
		t.Errorf("ClockSelect(8) = %v", err)
	}
}
