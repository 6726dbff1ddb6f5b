package types

import "strconv"

// ---- Resource classes ----

// Class tags a family of hardware modules (all UARTs, all GPIO ports, ...).
type Class uint8

const (
	ClassGPIO Class = iota + 1
	ClassUART
	ClassTimer
	ClassSPI
	ClassI2C
	ClassADC
	ClassWDT
	ClassCLINT
)

var classNames = map[Class]string{
	ClassGPIO:  "gpio",
	ClassUART:  "uart",
	ClassTimer: "timer",
	ClassSPI:   "spi",
	ClassI2C:   "i2c",
	ClassADC:   "adc",
	ClassWDT:   "wdt",
	ClassCLINT: "clint",
}

// Classes lists every known class in tag order.
func Classes() []Class {
	return []Class{ClassGPIO, ClassUART, ClassTimer, ClassSPI, ClassI2C,
		ClassADC, ClassWDT, ClassCLINT}
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	_, ok := classNames[c]
	return ok
}

// ParseClass maps a lowercase class name back to its tag.
func ParseClass(s string) (Class, bool) {
	for c, n := range classNames {
		if n == s {
			return c, true
		}
	}
	return 0, false
}

// ---- Hardware device ids ----

// HWDevID names one module instance as class<<8 | instance.
type HWDevID uint16

func HWDev(c Class, instance uint8) HWDevID {
	return HWDevID(uint16(c)<<8 | uint16(instance))
}

func (id HWDevID) Class() Class     { return Class(id >> 8) }
func (id HWDevID) Instance() uint8  { return uint8(id & 0xff) }
func (id HWDevID) Key() ResourceKey { return WholeKey(id.Class(), id.Instance()) }
func (id HWDevID) String() string   { return id.Class().String() + strconv.Itoa(int(id.Instance())) }

// ParseHWDev parses the "uart0" form printed by HWDevID.String.
func ParseHWDev(s string) (HWDevID, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(s) {
		return 0, false
	}
	c, ok := ParseClass(s[:i])
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s[i:], 10, 8)
	if err != nil {
		return 0, false
	}
	return HWDev(c, uint8(n)), true
}
