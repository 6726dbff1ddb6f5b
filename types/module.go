package types

// MaxInterrupts bounds the interrupt list of a single module.
const MaxInterrupts = 4

// IntModule says which controller an interrupt id belongs to.
type IntModule uint8

const (
	IntLocal    IntModule = iota // core-local (arch) interrupt
	IntPlatform                  // platform interrupt controller
)

func (m IntModule) String() string {
	if m == IntPlatform {
		return "platform"
	}
	return "local"
}

// Trigger is the electrical trigger kind of an interrupt line.
type Trigger uint8

const (
	TriggerLevel Trigger = iota
	TriggerRising
	TriggerFalling
	TriggerBoth
)

func (t Trigger) String() string {
	switch t {
	case TriggerRising:
		return "rising"
	case TriggerFalling:
		return "falling"
	case TriggerBoth:
		return "both"
	default:
		return "level"
	}
}

type Interrupt struct {
	Module  IntModule
	ID      uint
	Trigger Trigger
}

// ModuleRecord describes one hardware IP-block instance.
// Records handed out by the directory are shared and must be treated as
// read-only by every caller.
type ModuleRecord struct {
	ID         uint8
	Base       uintptr
	Stride     uintptr
	ClockID    uint
	Clock      uint64 // Hz, or a module-specific rate (e.g. default baud)
	Interrupts []Interrupt
	Compat     string // register model, e.g. "avr,usart"; empty means the family default
}

// Clone returns a deep copy.
func (m ModuleRecord) Clone() ModuleRecord {
	if m.Interrupts != nil {
		m.Interrupts = append([]Interrupt(nil), m.Interrupts...)
	}
	return m
}

// IRQ returns the i-th interrupt, if present.
func (m *ModuleRecord) IRQ(i int) (Interrupt, bool) {
	if m == nil || i < 0 || i >= len(m.Interrupts) {
		return Interrupt{}, false
	}
	return m.Interrupts[i], true
}
