package i2c

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"tinygo.org/x/drivers"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/platform"
	"hwarb-go/types"
)

func TestOpenHandsOutTheBus(t *testing.T) {
	h, err := platform.NewHost(platform.HostQuad())
	if err != nil {
		t.Fatal(err)
	}
	b, err := OpenSwdev(h.Res, 1, types.SWBusI2C)
	if err != nil {
		t.Fatal(err)
	}
	if b.Frequency() != 400_000 || !h.Clocks.Enabled(5) {
		t.Fatalf("freq=%d clock=%v", b.Frequency(), h.Clocks.Enabled(5))
	}
	var d drivers.I2C = b

	host := h.I2C.Bus(0)
	host.Reply = []byte{0x12, 0x34}
	buf := make([]byte, 2)
	if err := b.ReadRegister(0x68, 0x3B, buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x12, 0x34}, buf); diff != "" {
		t.Fatalf("read (-want +got):\n%s", diff)
	}
	if err := d.Tx(0x38, []byte{0xAC, 0x33, 0x00}, nil); err != nil {
		t.Fatal(err)
	}
	if host.LastTx.Addr != 0x38 || host.LastTx.Rn != 0 {
		t.Fatalf("last tx = %+v", host.LastTx)
	}
	_ = b.WriteRegister(0x50, 0x01, []byte{0xFF})
	if diff := cmp.Diff([]byte{0x01, 0xFF}, host.LastTx.W); diff != "" {
		t.Fatalf("write (-want +got):\n%s", diff)
	}

	if _, err := Open(h.Res, 2, 0); !errors.Is(err, errcode.Busy) {
		t.Fatalf("second open = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Tx(0x38, nil, nil); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("Tx after close = %v", err)
	}
	if h.Clocks.Enabled(5) {
		t.Fatal("clock left running")
	}
	b2, err := Open(h.Res, 2, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = b2.Close()
}

// A controller in the directory without a bus wired to it is released
// again.
func TestOpenWithoutBus(t *testing.T) {
	h, err := platform.NewHost(platform.HostQuad())
	if err != nil {
		t.Fatal(err)
	}
	h.Res.I2C = platform.NewHostI2CFactory(0)
	if _, err := Open(h.Res, 0, 1); !errors.Is(err, errcode.NotFound) {
		t.Fatalf("Open = %v, want not_found", err)
	}
	l, _ := h.Res.Ledgers.For(types.ClassI2C)
	if l.Held(0, 1, types.Whole) {
		t.Fatal("claim kept after failed open")
	}
	if _, err := OpenSwdev(h.Res, 0, types.SWStatusLED); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("gpio swdev as i2c = %v", err)
	}
}
