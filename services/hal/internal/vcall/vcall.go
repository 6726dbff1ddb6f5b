// Package vcall is the call bridge used to query the resource directory
// from another execution context.
//
// Callers see one interface, Caller. Direct dispatches in the caller's
// own context; Monitor owns the directory on a separate goroutine and is
// entered through a synchronous trap. Both return identical results.
package vcall

import (
	"strconv"
	"unsafe"

	"hwarb-go/errcode"
	"hwarb-go/types"
)

// Opcode selects the directory query.
type Opcode uint

const (
	OpFetchSwdev    Opcode = iota + 1 // a0 = SWDevID
	OpFetchModule                     // a0 = class, a1 = instance
	OpFetchPlatform                   // no arguments
)

func (op Opcode) String() string {
	switch op {
	case OpFetchSwdev:
		return "fetch_swdev"
	case OpFetchModule:
		return "fetch_module"
	case OpFetchPlatform:
		return "fetch_platform"
	}
	return "opcode(" + strconv.Itoa(int(op)) + ")"
}

// Result is the {pointer, size, status} triple of a call. It belongs to
// the caller and does not outlive the call site.
type Result struct {
	P      any // *types.ModuleRecord, *types.SoftwareDeviceRecord, *types.Platform or nil
	Size   uintptr
	Status errcode.Status
}

// Caller issues bridge calls. A nil res returns immediately.
type Caller interface {
	Call(op Opcode, a0, a1, a2 uint, res *Result)
}

// Source is the read-only directory a bridge answers from.
type Source interface {
	FetchModule(c types.Class, instance uint8) (*types.ModuleRecord, error)
	FetchSwdev(id types.SWDevID) (*types.SoftwareDeviceRecord, error)
	Platform() (*types.Platform, error)
}

// dispatch answers one request. It only reads src.
func dispatch(src Source, op Opcode, a0, a1, _ uint) Result {
	switch op {
	case OpFetchSwdev:
		if a0 > 0xff {
			return fail(errcode.StatusInvalidArgument)
		}
		s, err := src.FetchSwdev(types.SWDevID(a0))
		if err != nil {
			return fail(errcode.StatusOf(err))
		}
		if s == nil {
			return fail(errcode.StatusInternal)
		}
		return Result{P: s, Size: unsafe.Sizeof(*s), Status: errcode.StatusSuccess}

	case OpFetchModule:
		if a0 > 0xff || a1 > 0xff {
			return fail(errcode.StatusInvalidArgument)
		}
		m, err := src.FetchModule(types.Class(a0), uint8(a1))
		if err != nil {
			return fail(errcode.StatusOf(err))
		}
		if m == nil {
			return fail(errcode.StatusInternal)
		}
		return Result{P: m, Size: unsafe.Sizeof(*m), Status: errcode.StatusSuccess}

	case OpFetchPlatform:
		p, err := src.Platform()
		if err != nil {
			return fail(errcode.StatusOf(err))
		}
		if p == nil {
			return fail(errcode.StatusInternal)
		}
		return Result{P: p, Size: unsafe.Sizeof(*p), Status: errcode.StatusSuccess}
	}
	return fail(errcode.StatusInvalidArgument)
}

func fail(s errcode.Status) Result { return Result{Status: s} }

// -----------------------------------------------------------------------------
// Same-context path
// -----------------------------------------------------------------------------

// Direct calls into a directory that lives in the caller's context.
type Direct struct {
	Src Source
}

var _ Caller = Direct{}

func (d Direct) Call(op Opcode, a0, a1, a2 uint, res *Result) {
	if res == nil {
		return
	}
	*res = dispatch(d.Src, op, a0, a1, a2)
}
