package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/platform"
	"hwarb-go/types"
)

const ibexYAML = `
name: ibex-simple-system
platform:
  clock: 50000000
  memory: {start: 0x100000, size: 0x100000}
  cpus:
    - {id: 0, name: riscv-ibex}
modules:
  - {class: uart, id: 0, base: 0x20000, stride: 1, compat: "ibex,uart"}
  - class: timer
    id: 0
    clock: 2000000
    interrupts:
      - {module: local, id: 7, trigger: level}
  - {class: clint, id: 0, base: 0x30000, stride: 16}
swdevs:
  - {id: console, device: uart0}
  - {id: sched_timer, device: timer0}
`

func TestLoadMatchesBuiltin(t *testing.T) {
	got, err := Load(strings.NewReader(ibexYAML))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(platform.IbexSimpleSystem(), got); diff != "" {
		t.Fatalf("board (-builtin +loaded):\n%s", diff)
	}
	d, err := got.Directory()
	if err != nil {
		t.Fatal(err)
	}
	sw, err := d.FetchSwdev(types.SWConsole)
	if err != nil {
		t.Fatal(err)
	}
	m, err := d.FetchModule(sw.Device.Class(), sw.Device.Instance())
	if err != nil || m.Base != 0x20000 {
		t.Fatalf("console module = %+v, %v", m, err)
	}
}

func TestLoadWidthsAndInterrupts(t *testing.T) {
	b, err := Load(strings.NewReader(`
name: two-port
platform: {clock: 8000000, cpus: [{id: 0}, {id: 1}]}
modules:
  - {class: gpio, id: 0, base: 0x1000, stride: 1}
  - {class: gpio, id: 1, base: 0x1010, stride: 1,
     interrupts: [{module: platform, id: 9, trigger: both}]}
swdevs:
  - {id: status_led, pinmux: 3, device: gpio1}
widths: {gpio: 6}
`))
	if err != nil {
		t.Fatal(err)
	}
	if w := b.Width(types.ClassGPIO); w != 6 {
		t.Fatalf("gpio width = %d", w)
	}
	if b.Cores() != 2 {
		t.Fatalf("cores = %d", b.Cores())
	}
	want := []types.Interrupt{{Module: types.IntPlatform, ID: 9, Trigger: types.TriggerBoth}}
	if diff := cmp.Diff(want, b.Modules[1].Record.Interrupts); diff != "" {
		t.Fatalf("interrupts (-want +got):\n%s", diff)
	}
	if got := b.Swdevs[0]; got.PinMux != 3 || got.Device != types.HWDev(types.ClassGPIO, 1) {
		t.Fatalf("swdev = %+v", got)
	}
}

func TestLoadRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":         ``,
		"unknown key":   "name: x\nflavour: mint\n",
		"no name":       "platform: {clock: 1}\n",
		"bad class":     "name: x\nmodules: [{class: dma, id: 0}]\n",
		"bad swdev":     "name: x\nswdevs: [{id: printer, device: uart0}]\n",
		"bad device":    "name: x\nswdevs: [{id: console, device: uart}]\n",
		"bad trigger":   "name: x\nmodules: [{class: uart, id: 0, interrupts: [{id: 1, trigger: edge}]}]\n",
		"bad width":     "name: x\nwidths: {gpio: 65}\n",
		"width class":   "name: x\nwidths: {dma: 2}\n",
		"bad irq block": "name: x\nmodules: [{class: uart, id: 0, interrupts: [{module: nvic, id: 1}]}]\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(doc)); errcode.Of(err) != errcode.InvalidArgument {
				t.Fatalf("Load = %v, want invalid_argument", err)
			}
		})
	}
}

// A file that decodes can still describe an inconsistent directory; that
// is caught when the directory is built.
func TestLoadedBoardIsValidatedByDirectory(t *testing.T) {
	b, err := Load(strings.NewReader(`
name: dangling
modules: [{class: uart, id: 0}, {class: uart, id: 0}]
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Directory(); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("duplicate ids = %v", err)
	}
}
