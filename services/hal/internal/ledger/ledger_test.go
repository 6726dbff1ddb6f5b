package ledger

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"hwarb-go/errcode"
	"hwarb-go/types"
	"hwarb-go/x/locks"
)

func newGPIO(cores int) *Ledger {
	return New(types.ClassGPIO, 3, 8, locks.NewBakery(cores))
}

func snapshot(t *testing.T, l *Ledger) []uint64 {
	t.Helper()
	words, err := l.Snapshot(0)
	if err != nil {
		t.Fatal(err)
	}
	return words
}

func TestClaimTwiceIsBusy(t *testing.T) {
	l := newGPIO(1)
	if err := l.Claim(0, 1, 3); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := l.Claim(0, 1, 3); !errors.Is(err, errcode.Busy) {
		t.Fatalf("second claim = %v, want busy", err)
	}
	if err := l.Claim(0, 1, 4); err != nil {
		t.Fatalf("neighbour pin: %v", err)
	}
	if err := l.Release(0, 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := l.Claim(0, 1, 3); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestReleaseOfFreeBitIsNoop(t *testing.T) {
	l := newGPIO(1)
	if err := l.Release(0, 0, 2); err != nil {
		t.Fatalf("release of free bit: %v", err)
	}
	if l.Held(0, 0, 2) {
		t.Fatal("bit set by release")
	}
	if diff := cmp.Diff([]uint64{0, 0, 0}, snapshot(t, l)); diff != "" {
		t.Fatalf("bitmap changed (-want +got):\n%s", diff)
	}
}

// The bit is set iff successful claims outnumber releases.
func TestRandomSequenceTracksOwnership(t *testing.T) {
	l := newGPIO(1)
	held := false
	for i := 0; i < 2000; i++ {
		if rand.IntN(2) == 0 {
			err := l.Claim(0, 2, 7)
			switch {
			case held && !errors.Is(err, errcode.Busy):
				t.Fatalf("step %d: claim on held bit = %v", i, err)
			case !held && err != nil:
				t.Fatalf("step %d: claim on free bit = %v", i, err)
			}
			held = true
		} else {
			if err := l.Release(0, 2, 7); err != nil {
				t.Fatal(err)
			}
			held = false
		}
		if got := l.Held(0, 2, 7); got != held {
			t.Fatalf("step %d: Held = %v, want %v", i, got, held)
		}
	}
}

func TestWholeClaim(t *testing.T) {
	l := newGPIO(1)
	if err := l.Claim(0, 0, 5); err != nil {
		t.Fatal(err)
	}
	if err := l.ClaimAll(0, 0); !errors.Is(err, errcode.Busy) {
		t.Fatalf("ClaimAll over a held pin = %v, want busy", err)
	}
	if diff := cmp.Diff([]uint64{1 << 5, 0, 0}, snapshot(t, l)); diff != "" {
		t.Fatalf("failed ClaimAll changed state (-want +got):\n%s", diff)
	}
	if err := l.ClaimAll(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Claim(0, 1, 0); !errors.Is(err, errcode.Busy) {
		t.Fatalf("pin claim inside whole claim = %v, want busy", err)
	}
	if !l.Held(0, 1, types.Whole) {
		t.Fatal("Held(whole) = false")
	}
	if err := l.ReleaseAll(0, 1); err != nil {
		t.Fatal(err)
	}
	if l.Held(0, 1, types.Whole) {
		t.Fatal("instance still held after ReleaseAll")
	}
}

func TestOutOfRange(t *testing.T) {
	l := newGPIO(1)
	for _, tc := range []struct {
		inst uint8
		sub  int
	}{{3, 0}, {0, 8}, {0, -2}} {
		if err := l.Claim(0, tc.inst, tc.sub); errcode.Of(err) != errcode.InvalidArgument {
			t.Fatalf("Claim(%d,%d) = %v, want invalid_argument", tc.inst, tc.sub, err)
		}
	}
	if err := l.ClaimAll(0, 9); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("ClaimAll(9) = %v", err)
	}
}

// A whole-instance claim racing single-pin claims must never leave both
// sides believing they succeeded.
func TestWholeVersusSubNoPartialOverlap(t *testing.T) {
	const cores = 4
	for round := 0; round < 200; round++ {
		l := newGPIO(cores)
		var wholeOK, pinOK atomic.Int32
		var g errgroup.Group
		g.Go(func() error {
			if l.ClaimAll(0, 0) == nil {
				wholeOK.Add(1)
			}
			return nil
		})
		for c := 1; c < cores; c++ {
			g.Go(func() error {
				if l.Claim(c, 0, c) == nil {
					pinOK.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
		if wholeOK.Load() == 1 && pinOK.Load() != 0 {
			t.Fatalf("round %d: whole and %d pin claims both succeeded", round, pinOK.Load())
		}
		want := uint64(0)
		if wholeOK.Load() == 1 {
			want = 0xff
		}
		got := snapshot(t, l)[0]
		if wholeOK.Load() == 1 && got != want {
			t.Fatalf("round %d: bitmap %#x, want %#x", round, got, want)
		}
		if wholeOK.Load() == 0 && got == 0 {
			t.Fatalf("round %d: nobody won", round)
		}
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	const cores = 8
	l := New(types.ClassUART, 1, 1, locks.NewBakery(cores))
	var winners atomic.Int32
	var g errgroup.Group
	for c := 0; c < cores; c++ {
		g.Go(func() error {
			if l.ClaimKey(c, types.WholeKey(types.ClassUART, 0)) == nil {
				winners.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if winners.Load() != 1 {
		t.Fatalf("%d winners, want 1", winners.Load())
	}
}

// A core the lock was not sized for is a malformed argument, not a panic.
func TestCoreOutOfRange(t *testing.T) {
	l := newGPIO(2)
	for _, core := range []int{-1, 2, 99} {
		if err := l.Claim(core, 0, 0); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("Claim(core %d) = %v, want invalid_argument", core, err)
		}
		if err := l.ClaimAll(core, 0); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("ClaimAll(core %d) = %v", core, err)
		}
		if err := l.Release(core, 0, 0); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("Release(core %d) = %v", core, err)
		}
		if err := l.ReleaseKey(core, types.WholeKey(types.ClassGPIO, 0)); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("ReleaseAll(core %d) = %v", core, err)
		}
		if _, err := l.Snapshot(core); errcode.Of(err) != errcode.InvalidArgument {
			t.Errorf("Snapshot(core %d) = %v", core, err)
		}
		if l.Held(core, 0, 0) {
			t.Errorf("Held(core %d) = true", core)
		}
	}
	if diff := cmp.Diff([]uint64{0, 0, 0}, snapshot(t, l)); diff != "" {
		t.Fatalf("bitmap changed (-want +got):\n%s", diff)
	}

	// A spin lock has no core count; any non-negative index is accepted.
	s := New(types.ClassUART, 1, 1, &locks.Spin{})
	if err := s.Claim(7, 0, 0); err != nil {
		t.Fatalf("spin-guarded claim by core 7: %v", err)
	}
	if err := s.Claim(-1, 0, 0); errcode.Of(err) != errcode.InvalidArgument {
		t.Fatalf("spin-guarded claim by core -1 = %v", err)
	}
}

func TestSetFor(t *testing.T) {
	s := Set{types.ClassGPIO: newGPIO(1)}
	if _, err := s.For(types.ClassGPIO); err != nil {
		t.Fatal(err)
	}
	if _, err := s.For(types.ClassSPI); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("For(spi) = %v, want not_found", err)
	}
}
