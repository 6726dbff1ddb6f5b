// Package mmio reaches memory-mapped device registers.
//
// Adapters never dereference addresses themselves; they go through a Bus
// so that the same code runs against real registers (Raw) and against a
// host-side register file (Sparse).
package mmio

import (
	"sync"
	"unsafe"
)

type Bus interface {
	Read8(addr uintptr) uint8
	Write8(addr uintptr, v uint8)
	Read32(addr uintptr) uint32
	Write32(addr uintptr, v uint32)
	Read64(addr uintptr) uint64
	Write64(addr uintptr, v uint64)
}

// Reg returns the address of register idx of a module laid out with the
// given stride.
func Reg(base, stride uintptr, idx int) uintptr {
	return base + stride*uintptr(idx)
}

// Set8 sets mask in the byte register at addr.
func Set8(b Bus, addr uintptr, mask uint8) { b.Write8(addr, b.Read8(addr)|mask) }

// Clear8 clears mask in the byte register at addr.
func Clear8(b Bus, addr uintptr, mask uint8) { b.Write8(addr, b.Read8(addr)&^mask) }

// -----------------------------------------------------------------------------
// Raw
// -----------------------------------------------------------------------------

// Raw dereferences addresses directly. Only valid where the address space
// really maps the device.
type Raw struct{}

var _ Bus = Raw{}

func (Raw) Read8(addr uintptr) uint8 {
	return *(*uint8)(unsafe.Pointer(addr))
}

func (Raw) Write8(addr uintptr, v uint8) {
	*(*uint8)(unsafe.Pointer(addr)) = v
}

func (Raw) Read32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

func (Raw) Write32(addr uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = v
}

func (Raw) Read64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

func (Raw) Write64(addr uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(addr)) = v
}

// -----------------------------------------------------------------------------
// Sparse (host)
// -----------------------------------------------------------------------------

// Write is one recorded store.
type Write struct {
	Addr  uintptr
	Width int // bytes
	Value uint64
}

// Sparse is a byte-addressed little-endian register file for host runs.
// Unwritten bytes read as zero. Every store is appended to a log.
type Sparse struct {
	mu    sync.Mutex
	mem   map[uintptr]byte
	log   []Write
	hooks map[uintptr]func(v uint64)
}

var _ Bus = (*Sparse)(nil)

func NewSparse() *Sparse {
	return &Sparse{mem: map[uintptr]byte{}, hooks: map[uintptr]func(uint64){}}
}

// OnWrite registers fn to run after every store that starts at addr.
// fn runs without the register file locked and may access it.
func (s *Sparse) OnWrite(addr uintptr, fn func(v uint64)) {
	s.mu.Lock()
	s.hooks[addr] = fn
	s.mu.Unlock()
}

// Writes returns a copy of the store log.
func (s *Sparse) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.log...)
}

// Poke stores v without logging it or running hooks; used to model
// hardware-side changes.
func (s *Sparse) Poke(addr uintptr, width int, v uint64) {
	s.mu.Lock()
	s.put(addr, width, v)
	s.mu.Unlock()
}

func (s *Sparse) load(addr uintptr, width int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(s.mem[addr+uintptr(i)])
	}
	return v
}

func (s *Sparse) put(addr uintptr, width int, v uint64) {
	for i := 0; i < width; i++ {
		s.mem[addr+uintptr(i)] = byte(v >> (8 * i))
	}
}

func (s *Sparse) store(addr uintptr, width int, v uint64) {
	s.mu.Lock()
	s.put(addr, width, v)
	s.log = append(s.log, Write{Addr: addr, Width: width, Value: v})
	fn := s.hooks[addr]
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (s *Sparse) Read8(addr uintptr) uint8       { return uint8(s.load(addr, 1)) }
func (s *Sparse) Write8(addr uintptr, v uint8)   { s.store(addr, 1, uint64(v)) }
func (s *Sparse) Read32(addr uintptr) uint32     { return uint32(s.load(addr, 4)) }
func (s *Sparse) Write32(addr uintptr, v uint32) { s.store(addr, 4, uint64(v)) }
func (s *Sparse) Read64(addr uintptr) uint64     { return s.load(addr, 8) }
func (s *Sparse) Write64(addr uintptr, v uint64) { s.store(addr, 8, v) }
