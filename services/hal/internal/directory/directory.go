// Package directory holds the read-only tables of hardware modules and
// software devices a board is built from.
//
// A Directory is assembled once through a Builder before any adapter
// runs. After Build returns nothing mutates it, so lookups need no
// locking and may run on any core.
package directory

import (
	"sort"
	"strconv"

	"hwarb-go/errcode"
	"hwarb-go/types"
)

type Directory struct {
	platform types.Platform
	modules  map[types.HWDevID]*types.ModuleRecord
	swdevs   map[types.SWDevID]*types.SoftwareDeviceRecord
}

// FetchModule returns the record of (class, instance).
func (d *Directory) FetchModule(c types.Class, instance uint8) (*types.ModuleRecord, error) {
	if m, ok := d.modules[types.HWDev(c, instance)]; ok {
		return m, nil
	}
	return nil, errcode.NotFound
}

// FetchSwdev returns the software device bound to a logical id.
func (d *Directory) FetchSwdev(id types.SWDevID) (*types.SoftwareDeviceRecord, error) {
	if s, ok := d.swdevs[id]; ok {
		return s, nil
	}
	return nil, errcode.NotFound
}

// Platform returns the board-wide properties.
func (d *Directory) Platform() (*types.Platform, error) {
	return &d.platform, nil
}

// Instances returns the number of instances to size a class ledger for:
// one more than the highest instance index present, or 0.
func (d *Directory) Instances(c types.Class) int {
	n := 0
	for id := range d.modules {
		if id.Class() == c && int(id.Instance())+1 > n {
			n = int(id.Instance()) + 1
		}
	}
	return n
}

// Modules lists every module id in ascending order.
func (d *Directory) Modules() []types.HWDevID {
	ids := make([]types.HWDevID, 0, len(d.modules))
	for id := range d.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Swdevs lists every software device id in ascending order.
func (d *Directory) Swdevs() []types.SWDevID {
	ids := make([]types.SWDevID, 0, len(d.swdevs))
	for id := range d.swdevs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// Builder collects records and validates them into a Directory.
// The first error is sticky and reported by Build.
type Builder struct {
	d   *Directory
	err error
}

func NewBuilder() *Builder {
	return &Builder{d: &Directory{
		modules: map[types.HWDevID]*types.ModuleRecord{},
		swdevs:  map[types.SWDevID]*types.SoftwareDeviceRecord{},
	}}
}

func (b *Builder) fail(msg string) {
	if b.err == nil {
		b.err = errcode.Wrap(errcode.InvalidArgument, "directory", msg)
	}
}

// SetPlatform records the board-wide properties.
func (b *Builder) SetPlatform(p types.Platform) *Builder {
	if b.d != nil {
		b.d.platform = p.Clone()
	}
	return b
}

// AddModule inserts one module under its class; rec.ID is the instance.
func (b *Builder) AddModule(c types.Class, rec types.ModuleRecord) *Builder {
	if b.d == nil {
		b.fail("builder already used")
		return b
	}
	id := types.HWDev(c, rec.ID)
	switch {
	case !c.Valid():
		b.fail("unknown class " + c.String())
	case len(rec.Interrupts) > types.MaxInterrupts:
		b.fail(id.String() + ": more than " + strconv.Itoa(types.MaxInterrupts) + " interrupts")
	default:
		if _, dup := b.d.modules[id]; dup {
			b.fail("duplicate module " + id.String())
			return b
		}
		m := rec.Clone()
		b.d.modules[id] = &m
	}
	return b
}

// AddSwdev inserts one software device binding.
func (b *Builder) AddSwdev(rec types.SoftwareDeviceRecord) *Builder {
	if b.d == nil {
		b.fail("builder already used")
		return b
	}
	if _, dup := b.d.swdevs[rec.ID]; dup {
		b.fail("duplicate software device " + rec.ID.String())
		return b
	}
	s := rec
	b.d.swdevs[rec.ID] = &s
	return b
}

// Build validates cross references and hands out the finished Directory.
// The Builder cannot be reused afterwards.
func (b *Builder) Build() (*Directory, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.d == nil {
		return nil, errcode.Wrap(errcode.InvalidArgument, "directory", "builder already used")
	}
	for _, s := range b.d.swdevs {
		if _, ok := b.d.modules[s.Device]; !ok {
			return nil, errcode.Wrap(errcode.InvalidArgument, "directory",
				s.ID.String()+" bound to missing module "+s.Device.String())
		}
	}
	d := b.d
	b.d = nil
	return d, nil
}
