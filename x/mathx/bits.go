// Package mathx holds the small generic integer helpers shared by the
// ledger, the locks and the register models.
package mathx

import "golang.org/x/exp/constraints"

// LowMask returns a value with the n low bits set, saturating at the
// width of T.
func LowMask[T constraints.Unsigned](n int) T {
	var zero T
	if n <= 0 {
		return zero
	}
	all := ^zero
	width := 0
	for v := all; v != 0; v >>= 1 {
		width++
	}
	if n >= width {
		return all
	}
	return T(1)<<n - 1
}

func Min[T constraints.Ordered](a, b T) T {
	if b < a {
		return b
	}
	return a
}

func Max[T constraints.Ordered](a, b T) T {
	if b > a {
		return b
	}
	return a
}

// RoundDiv is a/b rounded to nearest, half up. A zero divisor yields 0.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
