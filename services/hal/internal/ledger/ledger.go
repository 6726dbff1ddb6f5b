// Package ledger tracks which sub-resources of a resource class are owned.
package ledger

import (
	"strconv"

	"hwarb-go/errcode"
	"hwarb-go/types"
	"hwarb-go/x/locks"
	"hwarb-go/x/mathx"
)

// MaxWidth is the largest number of sub-resources per instance.
const MaxWidth = 64

// Ledger is the ownership bitmap of one resource class: one word per
// instance, one bit per claimable sub-resource. All access goes through
// the class lock.
//
// Releasing a bit that is already free is a no-op. The same policy
// applies to every class.
type Ledger struct {
	class types.Class
	width int
	full  uint64
	cores int // 0 when the lock accepts any core
	lock  locks.CoreLock
	words []uint64 // guarded by lock
}

// New returns an all-free ledger for the given number of instances.
func New(class types.Class, instances, width int, lock locks.CoreLock) *Ledger {
	if width <= 0 || width > MaxWidth {
		panic("ledger: width out of range: " + strconv.Itoa(width))
	}
	if lock == nil {
		panic("ledger: nil lock")
	}
	l := &Ledger{
		class: class,
		width: width,
		full:  mathx.LowMask[uint64](width),
		lock:  lock,
		words: make([]uint64, instances),
	}
	if b, ok := lock.(locks.Bounded); ok {
		l.cores = b.Cores()
	}
	return l
}

// Class is the resource class the ledger tracks.
func (l *Ledger) Class() types.Class { return l.class }

// Width is the number of claimable sub-resources per instance.
func (l *Ledger) Width() int { return l.width }

// Instances is the number of instance words.
func (l *Ledger) Instances() int { return len(l.words) }

// Claim takes one sub-resource. It returns errcode.Busy when the bit is
// already owned.
func (l *Ledger) Claim(core int, inst uint8, sub int) error {
	if err := l.check(core, inst, sub); err != nil {
		return err
	}
	bit := uint64(1) << sub
	l.lock.Acquire(core)
	w := l.words[inst]
	busy := w&bit != 0
	if !busy {
		l.words[inst] = w | bit
	}
	l.lock.Release(core)
	if busy {
		return errcode.Busy
	}
	return nil
}

// ClaimAll takes every sub-resource of an instance in one step. It fails
// with errcode.Busy, changing nothing, when any bit is already owned.
func (l *Ledger) ClaimAll(core int, inst uint8) error {
	if err := l.check(core, inst, 0); err != nil {
		return err
	}
	l.lock.Acquire(core)
	busy := l.words[inst] != 0
	if !busy {
		l.words[inst] = l.full
	}
	l.lock.Release(core)
	if busy {
		return errcode.Busy
	}
	return nil
}

// Release frees one sub-resource.
func (l *Ledger) Release(core int, inst uint8, sub int) error {
	if err := l.check(core, inst, sub); err != nil {
		return err
	}
	l.lock.Acquire(core)
	l.words[inst] &^= uint64(1) << sub
	l.lock.Release(core)
	return nil
}

// ReleaseAll frees every sub-resource of an instance.
func (l *Ledger) ReleaseAll(core int, inst uint8) error {
	if err := l.check(core, inst, 0); err != nil {
		return err
	}
	l.lock.Acquire(core)
	l.words[inst] = 0
	l.lock.Release(core)
	return nil
}

// Held reports whether a sub-resource is owned; sub may be types.Whole to
// ask whether any bit of the instance is owned. Malformed arguments read
// as not held.
func (l *Ledger) Held(core int, inst uint8, sub int) bool {
	if sub == types.Whole {
		sub = 0
		if l.check(core, inst, sub) != nil {
			return false
		}
		l.lock.Acquire(core)
		w := l.words[inst]
		l.lock.Release(core)
		return w != 0
	}
	if l.check(core, inst, sub) != nil {
		return false
	}
	l.lock.Acquire(core)
	w := l.words[inst]
	l.lock.Release(core)
	return w&(uint64(1)<<sub) != 0
}

// Snapshot copies the bitmap.
func (l *Ledger) Snapshot(core int) ([]uint64, error) {
	if err := l.checkCore(core); err != nil {
		return nil, err
	}
	l.lock.Acquire(core)
	out := append([]uint64(nil), l.words...)
	l.lock.Release(core)
	return out, nil
}

// ClaimKey and ReleaseKey dispatch on whole vs. single sub-resource keys.
func (l *Ledger) ClaimKey(core int, k types.ResourceKey) error {
	if k.IsWhole() {
		return l.ClaimAll(core, k.Instance)
	}
	return l.Claim(core, k.Instance, k.Sub)
}

func (l *Ledger) ReleaseKey(core int, k types.ResourceKey) error {
	if k.IsWhole() {
		return l.ReleaseAll(core, k.Instance)
	}
	return l.Release(core, k.Instance, k.Sub)
}

func (l *Ledger) checkCore(core int) error {
	if core < 0 || (l.cores > 0 && core >= l.cores) {
		return errcode.Wrap(errcode.InvalidArgument, "ledger",
			"core "+strconv.Itoa(core)+" out of range")
	}
	return nil
}

func (l *Ledger) check(core int, inst uint8, sub int) error {
	if err := l.checkCore(core); err != nil {
		return err
	}
	if int(inst) >= len(l.words) {
		return errcode.Wrap(errcode.InvalidArgument, "ledger",
			l.class.String()+" instance "+strconv.Itoa(int(inst))+" out of range")
	}
	if sub < 0 || sub >= l.width {
		return errcode.Wrap(errcode.InvalidArgument, "ledger",
			l.class.String()+" sub-resource "+strconv.Itoa(sub)+" out of range")
	}
	return nil
}
