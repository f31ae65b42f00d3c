// Package bitmatrix implements square GF(2) matrices as slices of bigint
// rows, along with the handful of whole-matrix operations the sparse CRC
// differential engine needs: copy, Gauss-Jordan solve, and multiply.
//
// Grounded on original_source/crc.c's bitmatrix_mov/bitmatrix_solve/bitmatrix_mul.
package bitmatrix

import "crchack/internal/bigint"

// Matrix is a square w x w GF(2) matrix, row-major: Matrix[i] is row i, and
// bit j of that row is entry (i, j). Every row must share the same width w,
// equal to len(Matrix).
type Matrix []*bigint.Bigint

// New allocates a zero w x w matrix.
func New(w uint) Matrix {
	m := make(Matrix, w)
	for i := range m {
		m[i] = bigint.New(w)
	}
	return m
}

// Mov copies src into dst row by row ("A = B"). dst and src must have the
// same length and matching row widths.
func Mov(dst, src Matrix) Matrix {
	for i := range dst {
		dst[i].CopyFrom(src[i])
	}
	return dst
}

// Solve performs Gauss-Jordan elimination to solve AX = B for X: on return,
// a has been reduced towards the identity matrix and b holds X, via the same
// row operations applied to both in lockstep. It reports whether a was full
// rank. On failure (false), a and b are left partially reduced -- exactly as
// many callers short-circuit rather than clean up.
func Solve(a, b Matrix) bool {
	w := len(a)
	i := 0
	for ; i < w; i++ {
		j := i
		for ; j < w; j++ {
			if a[j].GetBit(uint(i)) != 0 {
				a[i], a[j] = a[j], a[i]
				b[i], b[j] = b[j], b[i]
				break
			}
		}
		if j == w {
			break
		}
		for k := 0; k < w; k++ {
			if k != i && a[k].GetBit(uint(i)) != 0 {
				a[k].Xor(a[i])
				b[k].Xor(b[i])
			}
		}
	}
	return i == w
}

// Mul computes x = a*b, where row i of x is the XOR of the rows of b
// selected by the set bits of row i of a. x must not alias a or b.
func Mul(a, b, x Matrix) Matrix {
	w := len(a)
	for i := 0; i < w; i++ {
		x[i].LoadZeros()
		for j := 0; j < w; j++ {
			if a[i].GetBit(uint(j)) != 0 {
				x[i].Xor(b[j])
			}
		}
	}
	return x
}
