package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hwarb-go/bus"
	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/directory"
	"hwarb-go/services/hal/internal/ledger"
	"hwarb-go/services/hal/internal/vcall"
	"hwarb-go/types"
	"hwarb-go/x/locks"
)

type recorder struct{ evs []Event }

func (r *recorder) Emit(ev Event) bool { r.evs = append(r.evs, ev); return true }

func testResources(t *testing.T) (*Resources, *recorder) {
	t.Helper()
	d, err := directory.NewBuilder().
		AddModule(types.ClassGPIO, types.ModuleRecord{ID: 0, Base: 0x23, Stride: 1}).
		AddModule(types.ClassUART, types.ModuleRecord{ID: 0, Base: 0x20000, Stride: 1}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	lk := locks.NewBakery(2)
	rec := &recorder{}
	return &Resources{
		Calls: vcall.Direct{Src: d},
		Ledgers: ledger.Set{
			types.ClassGPIO: ledger.New(types.ClassGPIO, 2, 8, lk),
			types.ClassUART: ledger.New(types.ClassUART, 2, 1, lk),
		},
		Pub: rec,
	}, rec
}

func TestTakeRollsBackOnMissingModule(t *testing.T) {
	res, _ := testResources(t)
	c := res.Claims(0)

	// gpio1 has a ledger slot but no directory entry.
	if _, err := c.Take(types.Key(types.ClassGPIO, 1, 3)); !errors.Is(err, errcode.NotFound) {
		t.Fatalf("Take(gpio1.3) = %v, want not_found", err)
	}
	l, _ := res.Ledgers.For(types.ClassGPIO)
	if l.Held(0, 1, 3) {
		t.Fatal("failed Take left the pin claimed")
	}
	if len(c.Held()) != 0 {
		t.Fatalf("held = %v", c.Held())
	}
}

func TestTakeBusyLeavesOwnerIntact(t *testing.T) {
	res, _ := testResources(t)
	a, b := res.Claims(0), res.Claims(1)
	if _, err := a.Take(types.WholeKey(types.ClassUART, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Take(types.WholeKey(types.ClassUART, 0)); !errors.Is(err, errcode.Busy) {
		t.Fatalf("second Take = %v, want busy", err)
	}
	l, _ := res.Ledgers.For(types.ClassUART)
	if !l.Held(0, 0, types.Whole) {
		t.Fatal("busy Take released the owner's claim")
	}
}

func TestUnwindReleasesEverything(t *testing.T) {
	res, _ := testResources(t)
	c := res.Claims(0)
	keys := []types.ResourceKey{
		types.WholeKey(types.ClassUART, 0),
		types.Key(types.ClassGPIO, 0, 1),
		types.Key(types.ClassGPIO, 0, 2),
	}
	if _, err := c.Take(keys[0]); err != nil {
		t.Fatal(err)
	}
	for _, k := range keys[1:] {
		if err := c.Reserve(k); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff(keys, c.Held()); diff != "" {
		t.Fatalf("held (-want +got):\n%s", diff)
	}
	if err := c.Reserve(types.Key(types.ClassSPI, 0, 0)); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("Reserve on a class without ledger = %v", err)
	}
	if err := c.Unwind(); err != nil {
		t.Fatal(err)
	}
	gpio, _ := res.Ledgers.For(types.ClassGPIO)
	uart, _ := res.Ledgers.For(types.ClassUART)
	words, _ := gpio.Snapshot(0)
	if diff := cmp.Diff([]uint64{0, 0}, words); diff != "" {
		t.Fatalf("gpio after unwind:\n%s", diff)
	}
	if uart.Held(0, 0, types.Whole) {
		t.Fatal("uart still held after unwind")
	}
}

// A key the ledger refuses to release is reported and stays held so the
// caller can retry once the ledger is back.
func TestUnwindKeepsKeysItCannotRelease(t *testing.T) {
	res, _ := testResources(t)
	c := res.Claims(1)
	uartKey := types.WholeKey(types.ClassUART, 0)
	pinKey := types.Key(types.ClassGPIO, 0, 6)
	if _, err := c.Take(uartKey); err != nil {
		t.Fatal(err)
	}
	if err := c.Reserve(pinKey); err != nil {
		t.Fatal(err)
	}

	uart := res.Ledgers[types.ClassUART]
	delete(res.Ledgers, types.ClassUART)
	if err := c.Unwind(); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("Unwind without uart ledger = %v, want not_found", err)
	}
	if diff := cmp.Diff([]types.ResourceKey{uartKey}, c.Held()); diff != "" {
		t.Fatalf("held after failed unwind (-want +got):\n%s", diff)
	}
	gpio, _ := res.Ledgers.For(types.ClassGPIO)
	if gpio.Held(1, 0, 6) {
		t.Fatal("releasable pin still held")
	}
	if err := c.Release(uartKey); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("Release without uart ledger = %v", err)
	}
	if len(c.Held()) != 1 {
		t.Fatalf("failed Release dropped the key: %v", c.Held())
	}

	res.Ledgers[types.ClassUART] = uart
	if err := c.Unwind(); err != nil {
		t.Fatal(err)
	}
	if len(c.Held()) != 0 || uart.Held(1, 0, types.Whole) {
		t.Fatalf("uart not released on retry: held %v", c.Held())
	}
}

func TestReleaseOnlyHeldKeys(t *testing.T) {
	res, _ := testResources(t)
	c := res.Claims(0)
	k := types.Key(types.ClassGPIO, 0, 4)
	if err := c.Reserve(k); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(k); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(k); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("double Release = %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	res, rec := testResources(t)
	dev := types.HWDev(types.ClassUART, 0)
	lc := NewLifecycle(res, dev)

	for _, s := range []State{Claimed, Active, ShuttingDown, Unclaimed} {
		if err := lc.To(1, s); err != nil {
			t.Fatalf("-> %v: %v", s, err)
		}
	}
	if err := lc.To(1, Active); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("unclaimed -> active = %v", err)
	}
	if lc.State() != Unclaimed {
		t.Fatalf("state = %v after rejected transition", lc.State())
	}
	want := []Event{
		{Dev: dev, From: Unclaimed, To: Claimed, Core: 1},
		{Dev: dev, From: Claimed, To: Active, Core: 1},
		{Dev: dev, From: Active, To: ShuttingDown, Core: 1},
		{Dev: dev, From: ShuttingDown, To: Unclaimed, Core: 1},
	}
	if diff := cmp.Diff(want, rec.evs); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestBusEmitterRetainsState(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("hal")
	sub := conn.Subscribe(StateWildcard())
	res, _ := testResources(t)
	res.Pub = BusEmitter{Conn: conn}

	dev := types.HWDev(types.ClassGPIO, 0)
	lc := NewLifecycle(res, dev)
	if err := lc.To(0, Claimed); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-sub.Channel():
		if m.Topic.String() != "hal/res/gpio/0/state" {
			t.Fatalf("topic = %v", m.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("no state message")
	}
	m := b.Retained(StateTopic(dev))
	if m == nil {
		t.Fatal("state not retained")
	}
	if diff := cmp.Diff(StatePayload{State: "claimed", Core: 0}, m.Payload); diff != "" {
		t.Fatalf("payload (-want +got):\n%s", diff)
	}
}
