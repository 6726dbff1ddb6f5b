package mathx

import "testing"

func TestLowMask(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want uint64
	}{
		{-1, 0}, {0, 0}, {1, 1}, {8, 0xff}, {63, 1<<63 - 1}, {64, ^uint64(0)}, {99, ^uint64(0)},
	} {
		if got := LowMask[uint64](tc.n); got != tc.want {
			t.Errorf("LowMask[uint64](%d) = %#x, want %#x", tc.n, got, tc.want)
		}
	}
	if got := LowMask[uint8](12); got != 0xff {
		t.Errorf("LowMask[uint8](12) = %#x", got)
	}
}

func TestRoundDiv(t *testing.T) {
	for _, tc := range []struct{ a, b, want uint32 }{
		{10, 4, 3}, {9, 4, 2}, {16_000_000, 16 * 9600, 104}, {5, 0, 0},
	} {
		if got := RoundDiv(tc.a, tc.b); got != tc.want {
			t.Errorf("RoundDiv(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
	if Min(3, -2) != -2 || Max(uint32(7), 9) != 9 {
		t.Error("Min/Max")
	}
}
