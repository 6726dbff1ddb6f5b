// Package platform holds the board tables the directory is built from and
// the host-side stand-ins for clocks, interrupts and buses.
package platform

import (
	"sort"

	"hwarb-go/errcode"
	"hwarb-go/services/hal/internal/directory"
	"hwarb-go/types"
)

// Module is one directory entry of a board.
type Module struct {
	Class  types.Class
	Record types.ModuleRecord
}

// Board describes what the SoC has and how logical devices are wired to
// it. It carries no operating parameters beyond module clocks.
type Board struct {
	Name     string
	Platform types.Platform
	Modules  []Module
	Swdevs   []types.SoftwareDeviceRecord

	// Widths is the number of claimable sub-resources per instance of a
	// class (pins per port). Classes not listed are claimed whole.
	Widths map[types.Class]int
}

// Width returns the ledger width for class c.
func (b Board) Width(c types.Class) int {
	if w, ok := b.Widths[c]; ok && w > 0 {
		return w
	}
	return 1
}

// Directory assembles the board's read-only directory.
func (b Board) Directory() (*directory.Directory, error) {
	bld := directory.NewBuilder().SetPlatform(b.Platform)
	for _, m := range b.Modules {
		bld.AddModule(m.Class, m.Record)
	}
	for _, s := range b.Swdevs {
		bld.AddSwdev(s)
	}
	return bld.Build()
}

// Cores returns the number of cores the board declares, at least one.
func (b Board) Cores() int {
	if n := len(b.Platform.CPUs); n > 0 {
		return n
	}
	return 1
}

var builtin = map[string]func() Board{
	"ibex-simple-system": IbexSimpleSystem,
	"atmega328p":         ATmega328P,
	"host-quad":          HostQuad,
}

// Lookup returns a fresh copy of a built-in board.
func Lookup(name string) (Board, error) {
	if mk, ok := builtin[name]; ok {
		return mk(), nil
	}
	return Board{}, errcode.Wrap(errcode.NotFound, "platform", "no board "+name)
}

// Names lists the built-in boards.
func Names() []string {
	out := make([]string, 0, len(builtin))
	for n := range builtin {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
