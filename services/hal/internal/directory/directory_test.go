package directory

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"hwarb-go/errcode"
	"hwarb-go/types"
)

func uart0() types.ModuleRecord {
	return types.ModuleRecord{ID: 0, Base: 0x20000, Stride: 0x1}
}

func TestFetchReturnsInsertedRecords(t *testing.T) {
	in := map[types.HWDevID]types.ModuleRecord{
		types.HWDev(types.ClassUART, 0):  uart0(),
		types.HWDev(types.ClassCLINT, 0): {ID: 0, Base: 0x30000, Stride: 16},
		types.HWDev(types.ClassTimer, 0): {ID: 0, Clock: 2_000_000, Interrupts: []types.Interrupt{
			{Module: types.IntLocal, ID: 7, Trigger: types.TriggerLevel},
		}},
		types.HWDev(types.ClassGPIO, 2): {ID: 2, Base: 0x29, Stride: 3},
	}
	b := NewBuilder()
	for id, rec := range in {
		b.AddModule(id.Class(), rec)
	}
	d, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	for id, want := range in {
		got, err := d.FetchModule(id.Class(), id.Instance())
		if err != nil {
			t.Fatalf("FetchModule(%v): %v", id, err)
		}
		if diff := cmp.Diff(want, *got); diff != "" {
			t.Fatalf("FetchModule(%v) (-want +got):\n%s", id, diff)
		}
	}
	for _, miss := range []types.HWDevID{
		types.HWDev(types.ClassUART, 1),
		types.HWDev(types.ClassGPIO, 0),
		types.HWDev(types.ClassSPI, 0),
	} {
		got, err := d.FetchModule(miss.Class(), miss.Instance())
		if got != nil || errcode.Of(err) != errcode.NotFound {
			t.Fatalf("FetchModule(%v) = %v, %v; want nil, not_found", miss, got, err)
		}
	}
	if n := d.Instances(types.ClassGPIO); n != 3 {
		t.Fatalf("Instances(gpio) = %d, want 3", n)
	}
}

func TestSwdevLookup(t *testing.T) {
	d, err := NewBuilder().
		AddModule(types.ClassUART, uart0()).
		AddSwdev(types.SoftwareDeviceRecord{ID: types.SWConsole, Device: types.HWDev(types.ClassUART, 0)}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	sw, err := d.FetchSwdev(types.SWConsole)
	if err != nil {
		t.Fatal(err)
	}
	if sw.Device.Class() != types.ClassUART || sw.Device.Instance() != 0 {
		t.Fatalf("console bound to %v", sw.Device)
	}
	if _, err := d.FetchSwdev(types.SWSchedTimer); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("missing swdev = %v", err)
	}
}

func TestBuildRejects(t *testing.T) {
	cases := map[string]*Builder{
		"duplicate": NewBuilder().AddModule(types.ClassUART, uart0()).AddModule(types.ClassUART, uart0()),
		"dangling swdev": NewBuilder().AddSwdev(types.SoftwareDeviceRecord{
			ID: types.SWConsole, Device: types.HWDev(types.ClassUART, 0)}),
		"too many irqs": NewBuilder().AddModule(types.ClassTimer, types.ModuleRecord{
			Interrupts: make([]types.Interrupt, types.MaxInterrupts+1)}),
		"bad class": NewBuilder().AddModule(types.Class(0), uart0()),
	}
	for name, b := range cases {
		if _, err := b.Build(); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("%s: Build() = %v, want invalid_argument", name, err)
		}
	}
}

func TestBuilderCopiesInput(t *testing.T) {
	rec := types.ModuleRecord{ID: 0, Interrupts: []types.Interrupt{{ID: 7}}}
	b := NewBuilder().AddModule(types.ClassTimer, rec)
	rec.Interrupts[0].ID = 99
	d, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	got, _ := d.FetchModule(types.ClassTimer, 0)
	if got.Interrupts[0].ID != 7 {
		t.Fatal("directory aliases caller-owned interrupt slice")
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should fail")
	}
}
