package platform

import "hwarb-go/types"

func hw(c types.Class, inst uint8) types.HWDevID { return types.HWDev(c, inst) }

// IbexSimpleSystem is the single-core RISC-V Ibex simulation target.
func IbexSimpleSystem() Board {
	return Board{
		Name: "ibex-simple-system",
		Platform: types.Platform{
			Clock:  50_000_000,
			Memory: types.Memory{Start: 0x100000, Size: 0x100000},
			CPUs:   []types.CPU{{ID: 0, Name: "riscv-ibex"}},
		},
		Modules: []Module{
			{types.ClassUART, types.ModuleRecord{ID: 0, Base: 0x20000, Stride: 0x1, Compat: "ibex,uart"}},
			{types.ClassTimer, types.ModuleRecord{ID: 0, Clock: 2_000_000, Interrupts: []types.Interrupt{
				{Module: types.IntLocal, ID: 7, Trigger: types.TriggerLevel},
			}}},
			{types.ClassCLINT, types.ModuleRecord{ID: 0, Base: 0x30000, Stride: 16}},
		},
		Swdevs: []types.SoftwareDeviceRecord{
			{ID: types.SWConsole, Device: hw(types.ClassUART, 0)},
			{ID: types.SWSchedTimer, Device: hw(types.ClassTimer, 0)},
		},
	}
}

// ATmega328P is the 8-bit AVR part. Clock ids are power-reduction bits.
func ATmega328P() Board {
	vec := func(id uint) types.Interrupt {
		return types.Interrupt{Module: types.IntLocal, ID: id, Trigger: types.TriggerLevel}
	}
	return Board{
		Name: "atmega328p",
		Platform: types.Platform{
			Clock:  16_000_000,
			Memory: types.Memory{Start: 0x100, Size: 0x800},
			CPUs:   []types.CPU{{ID: 0, Name: "avr5"}},
		},
		Modules: []Module{
			{types.ClassGPIO, types.ModuleRecord{ID: 0, Base: 0x23, Stride: 1, Compat: "avr,port"}}, // PORTB
			{types.ClassGPIO, types.ModuleRecord{ID: 1, Base: 0x26, Stride: 1, Compat: "avr,port"}}, // PORTC
			{types.ClassGPIO, types.ModuleRecord{ID: 2, Base: 0x29, Stride: 1, Compat: "avr,port"}}, // PORTD
			{types.ClassUART, types.ModuleRecord{ID: 0, Base: 0xC0, Stride: 1, ClockID: 1, Clock: 19200,
				Compat: "avr,usart", Interrupts: []types.Interrupt{vec(20), vec(18)}}},
			{types.ClassTimer, types.ModuleRecord{ID: 0, Base: 0x44, Stride: 1, ClockID: 5, Clock: 16_000_000,
				Compat: "avr,timer8", Interrupts: []types.Interrupt{vec(14)}}},
			{types.ClassTimer, types.ModuleRecord{ID: 1, Base: 0x80, Stride: 1, ClockID: 3, Clock: 16_000_000,
				Compat: "avr,timer16", Interrupts: []types.Interrupt{vec(11)}}},
			{types.ClassTimer, types.ModuleRecord{ID: 2, Base: 0xB0, Stride: 1, ClockID: 6, Clock: 16_000_000,
				Compat: "avr,timer8", Interrupts: []types.Interrupt{vec(7)}}},
			{types.ClassSPI, types.ModuleRecord{ID: 0, Base: 0x4C, Stride: 1, ClockID: 2, Clock: 4,
				Interrupts: []types.Interrupt{vec(17)}}},
			{types.ClassI2C, types.ModuleRecord{ID: 0, Base: 0xB8, Stride: 1, ClockID: 7, Clock: 100_000}},
			{types.ClassADC, types.ModuleRecord{ID: 0, Base: 0x78, Stride: 1, ClockID: 0,
				Compat: "avr,adc", Interrupts: []types.Interrupt{vec(21)}}},
			{types.ClassWDT, types.ModuleRecord{ID: 0, Base: 0x60, Stride: 1}},
		},
		Swdevs: []types.SoftwareDeviceRecord{
			{ID: types.SWConsole, Device: hw(types.ClassUART, 0)},
			{ID: types.SWSchedTimer, Device: hw(types.ClassTimer, 0)},
			{ID: types.SWStatusLED, PinMux: 5, Device: hw(types.ClassGPIO, 0)},
			{ID: types.SWBusSPI, PinMux: 0, Device: hw(types.ClassSPI, 0)},
			{ID: types.SWBusI2C, Device: hw(types.ClassI2C, 0)},
			{ID: types.SWWatchdog, Device: hw(types.ClassWDT, 0)},
		},
		Widths: map[types.Class]int{types.ClassGPIO: 8},
	}
}

// HostQuad is a four-core host board used to exercise cross-core
// arbitration. Its register blocks live in a host register file.
func HostQuad() Board {
	irq := func(id uint) types.Interrupt {
		return types.Interrupt{Module: types.IntPlatform, ID: id, Trigger: types.TriggerRising}
	}
	cpus := make([]types.CPU, 4)
	for i := range cpus {
		cpus[i] = types.CPU{ID: uint(i), Name: "host"}
	}
	return Board{
		Name: "host-quad",
		Platform: types.Platform{
			Clock:  8_000_000,
			Memory: types.Memory{Start: 0x8000_0000, Size: 0x10_0000},
			CPUs:   cpus,
		},
		Modules: []Module{
			{types.ClassGPIO, types.ModuleRecord{ID: 0, Base: 0x1000, Stride: 1}},
			{types.ClassGPIO, types.ModuleRecord{ID: 1, Base: 0x1010, Stride: 1}},
			{types.ClassUART, types.ModuleRecord{ID: 0, Base: 0x2000, Stride: 1, ClockID: 1, Clock: 9600,
				Compat: "avr,usart", Interrupts: []types.Interrupt{irq(1), irq(2)}}},
			{types.ClassUART, types.ModuleRecord{ID: 1, Base: 0x2010, Stride: 1, ClockID: 2, Clock: 115200,
				Compat: "avr,usart", Interrupts: []types.Interrupt{irq(3), irq(4)}}},
			{types.ClassTimer, types.ModuleRecord{ID: 0, Base: 0x3000, Stride: 1, ClockID: 3, Clock: 1_000_000,
				Compat: "avr,timer16", Interrupts: []types.Interrupt{irq(5)}}},
			{types.ClassSPI, types.ModuleRecord{ID: 0, Base: 0x4000, Stride: 1, ClockID: 4, Clock: 16}},
			{types.ClassI2C, types.ModuleRecord{ID: 0, Base: 0x5000, Stride: 1, ClockID: 5, Clock: 400_000}},
			{types.ClassI2C, types.ModuleRecord{ID: 1, Base: 0x5010, Stride: 1, ClockID: 6, Clock: 100_000}},
			{types.ClassCLINT, types.ModuleRecord{ID: 0, Base: 0x6000, Stride: 16}},
		},
		Swdevs: []types.SoftwareDeviceRecord{
			{ID: types.SWConsole, Device: hw(types.ClassUART, 0)},
			{ID: types.SWSchedTimer, Device: hw(types.ClassTimer, 0)},
			{ID: types.SWStatusLED, PinMux: 7, Device: hw(types.ClassGPIO, 1)},
			{ID: types.SWBusSPI, PinMux: 0, Device: hw(types.ClassSPI, 0)},
			{ID: types.SWBusI2C, Device: hw(types.ClassI2C, 0)},
		},
		Widths: map[types.Class]int{types.ClassGPIO: 8},
	}
}
