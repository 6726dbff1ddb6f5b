package types

import "testing"

func TestHWDevEncoding(t *testing.T) {
	id := HWDev(ClassUART, 0)
	if id != HWDevID(uint16(ClassUART)<<8) {
		t.Fatalf("HWDev(uart,0) = %#x", uint16(id))
	}
	if id.Class() != ClassUART || id.Instance() != 0 {
		t.Fatalf("decode mismatch: %v/%d", id.Class(), id.Instance())
	}
	if got := HWDev(ClassGPIO, 3).String(); got != "gpio3" {
		t.Fatalf("String() = %q", got)
	}
}

func TestNamesRoundTrip(t *testing.T) {
	for _, c := range Classes() {
		back, ok := ParseClass(c.String())
		if !ok || back != c {
			t.Fatalf("class %v did not round trip", c)
		}
	}
	if _, ok := ParseClass("dma"); ok {
		t.Fatal("unknown class parsed")
	}
	id, ok := ParseSWDevID("console")
	if !ok || id != SWConsole {
		t.Fatalf("ParseSWDevID(console) = %v,%v", id, ok)
	}
}

func TestKeyString(t *testing.T) {
	if got := Key(ClassGPIO, 1, 5).String(); got != "gpio1.5" {
		t.Fatalf("got %q", got)
	}
	if got := WholeKey(ClassUART, 0).String(); got != "uart0" {
		t.Fatalf("got %q", got)
	}
}

func TestModuleCloneIsDeep(t *testing.T) {
	m := ModuleRecord{ID: 0, Interrupts: []Interrupt{{ID: 7}}}
	c := m.Clone()
	c.Interrupts[0].ID = 9
	if m.Interrupts[0].ID != 7 {
		t.Fatal("Clone shares interrupt storage")
	}
	if _, ok := (*ModuleRecord)(nil).IRQ(0); ok {
		t.Fatal("nil record reported an irq")
	}
}

func TestParseHWDev(t *testing.T) {
	for s, want := range map[string]HWDevID{
		"uart0":    HWDev(ClassUART, 0),
		"gpio12":   HWDev(ClassGPIO, 12),
		"clint0":   HWDev(ClassCLINT, 0),
		"i2c1":     HWDev(ClassI2C, 1),
		"timer255": HWDev(ClassTimer, 255),
	} {
		if got, ok := ParseHWDev(s); !ok || got != want {
			t.Errorf("ParseHWDev(%q) = %v, %v", s, got, ok)
		}
	}
	for _, s := range []string{"", "uart", "0", "dma0", "timer256"} {
		if _, ok := ParseHWDev(s); ok {
			t.Errorf("ParseHWDev(%q) accepted", s)
		}
	}
}
