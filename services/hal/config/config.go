// Package config loads board descriptions from YAML.
//
// A board file names the platform, its modules and the software devices
// bound to them:
//
//	name: my-board
//	platform:
//	  clock: 16000000
//	  memory: {start: 0x100, size: 0x800}
//	  cpus: [{id: 0, name: avr5}]
//	modules:
//	  - {class: uart, id: 0, base: 0xC0, stride: 1, clock_id: 1, clock: 19200,
//	     compat: "avr,usart", interrupts: [{id: 20}, {id: 18}]}
//	swdevs:
//	  - {id: console, device: uart0}
//	widths: {gpio: 8}
//
// Unknown keys are rejected.
package config

import (
	"errors"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/platform"
	"hwarb-go/types"
)

// Board is the on-disk form of a platform.Board.
type Board struct {
	Name     string         `yaml:"name"`
	Platform Platform       `yaml:"platform"`
	Modules  []Module       `yaml:"modules"`
	Swdevs   []Swdev        `yaml:"swdevs"`
	Widths   map[string]int `yaml:"widths,omitempty"`
}

type Platform struct {
	Clock  uint64 `yaml:"clock"`
	Memory struct {
		Start uint64 `yaml:"start"`
		Size  uint64 `yaml:"size"`
	} `yaml:"memory"`
	CPUs []CPU `yaml:"cpus"`
}

type CPU struct {
	ID   uint   `yaml:"id"`
	Name string `yaml:"name"`
}

type Module struct {
	Class      string      `yaml:"class"`
	ID         uint8       `yaml:"id"`
	Base       uint64      `yaml:"base"`
	Stride     uint64      `yaml:"stride"`
	ClockID    uint        `yaml:"clock_id"`
	Clock      uint64      `yaml:"clock"`
	Compat     string      `yaml:"compat,omitempty"`
	Interrupts []Interrupt `yaml:"interrupts,omitempty"`
}

type Interrupt struct {
	Module  string `yaml:"module,omitempty"`  // local (default) or platform
	ID      uint   `yaml:"id"`
	Trigger string `yaml:"trigger,omitempty"` // level (default), rising, falling, both
}

type Swdev struct {
	ID     string `yaml:"id"`
	PinMux uint   `yaml:"pinmux,omitempty"`
	Device string `yaml:"device"`
}

func invalid(msg string, err error) error {
	if err != nil {
		msg += ": " + err.Error()
	}
	return &errcode.E{C: errcode.InvalidArgument, Op: "config", Msg: msg, Err: err}
}

// Load decodes one board document from r.
func Load(r io.Reader) (platform.Board, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var b Board
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return platform.Board{}, invalid("empty board description", nil)
		}
		return platform.Board{}, invalid("decode", err)
	}
	return b.Board()
}

// LoadFile reads a board description from path.
func LoadFile(path string) (platform.Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return platform.Board{}, err
	}
	defer f.Close()
	return Load(f)
}

// Board converts the file form, resolving class, role and interrupt
// names.
func (b *Board) Board() (platform.Board, error) {
	if b.Name == "" {
		return platform.Board{}, invalid("board has no name", nil)
	}
	out := platform.Board{
		Name: b.Name,
		Platform: types.Platform{
			Clock:  b.Platform.Clock,
			Memory: types.Memory{Start: uintptr(b.Platform.Memory.Start), Size: uintptr(b.Platform.Memory.Size)},
		},
	}
	for _, c := range b.Platform.CPUs {
		out.Platform.CPUs = append(out.Platform.CPUs, types.CPU{ID: c.ID, Name: c.Name})
	}
	for i, m := range b.Modules {
		c, ok := types.ParseClass(m.Class)
		if !ok {
			return platform.Board{}, invalid("module "+strconv.Itoa(i)+": unknown class "+strconv.Quote(m.Class), nil)
		}
		rec := types.ModuleRecord{
			ID:      m.ID,
			Base:    uintptr(m.Base),
			Stride:  uintptr(m.Stride),
			ClockID: m.ClockID,
			Clock:   m.Clock,
			Compat:  m.Compat,
		}
		for _, irq := range m.Interrupts {
			v, err := irq.interrupt()
			if err != nil {
				return platform.Board{}, invalid(types.HWDev(c, m.ID).String(), err)
			}
			rec.Interrupts = append(rec.Interrupts, v)
		}
		out.Modules = append(out.Modules, platform.Module{Class: c, Record: rec})
	}
	for _, s := range b.Swdevs {
		id, ok := types.ParseSWDevID(s.ID)
		if !ok {
			return platform.Board{}, invalid("unknown software device "+strconv.Quote(s.ID), nil)
		}
		dev, ok := types.ParseHWDev(s.Device)
		if !ok {
			return platform.Board{}, invalid(s.ID+": bad device "+strconv.Quote(s.Device), nil)
		}
		out.Swdevs = append(out.Swdevs, types.SoftwareDeviceRecord{ID: id, PinMux: s.PinMux, Device: dev})
	}
	for name, w := range b.Widths {
		c, ok := types.ParseClass(name)
		if !ok {
			return platform.Board{}, invalid("widths: unknown class "+strconv.Quote(name), nil)
		}
		if w < 1 || w > 64 {
			return platform.Board{}, invalid("widths: "+name+" width "+strconv.Itoa(w)+" out of range", nil)
		}
		if out.Widths == nil {
			out.Widths = make(map[types.Class]int)
		}
		out.Widths[c] = w
	}
	return out, nil
}

func (i Interrupt) interrupt() (types.Interrupt, error) {
	v := types.Interrupt{ID: i.ID}
	switch i.Module {
	case "", "local":
		v.Module = types.IntLocal
	case "platform":
		v.Module = types.IntPlatform
	default:
		return v, errors.New("unknown interrupt module " + strconv.Quote(i.Module))
	}
	switch i.Trigger {
	case "", "level":
		v.Trigger = types.TriggerLevel
	case "rising":
		v.Trigger = types.TriggerRising
	case "falling":
		v.Trigger = types.TriggerFalling
	case "both":
		v.Trigger = types.TriggerBoth
	default:
		return v, errors.New("unknown trigger " + strconv.Quote(i.Trigger))
	}
	return v, nil
}
