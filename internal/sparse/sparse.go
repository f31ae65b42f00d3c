// Package sparse implements the sparse CRC differential engine: an O(W^2
// log N) preprocessing step over a W-bit CRC and an N-bit message skeleton,
// after which any single-bit-flip's effect on the checksum can be queried
// in O(W^2) time independent of N.
//
// The trick is linearity: CRC is a GF(2)-linear function of the message, so
// flipping bit pos changes the checksum by a fixed W-bit vector that depends
// only on pos (and the CRC parameters), not on the message's other bits.
// That vector is obtained, for any pos, by composing a "difference at the
// left edge of a W-bit window" matrix D with power-of-two shift matrices L
// (shift the window right, towards higher bit positions) and R (shift left)
// built once and reused via repeated squaring.
//
// Grounded on original_source/crc.c's crc_sparse_new/crc_sparse_1bit.
package sparse

import (
	"errors"

	"crchack/internal/bigint"
	"crchack/internal/bitmatrix"
	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
)

var (
	// ErrDegenerateParams is returned by New when the CRC parameters make
	// the difference matrix D singular (e.g. poly with no nonzero
	// low-order term for certain widths), so the left/right shift matrices
	// cannot be solved for and the differential tables cannot be built.
	ErrDegenerateParams = errors.New("sparse: degenerate CRC parameters, cannot build differential tables")
	// ErrPositionOutOfRange is returned by Query when pos >= the engine's
	// configured message size.
	ErrPositionOutOfRange = errors.New("sparse: bit position out of range")
	// ErrWidthMismatch is returned by Query when checksum's width doesn't
	// match the engine's CRC width.
	ErrWidthMismatch = errors.New("sparse: checksum width mismatch")
)

// Engine holds the preprocessed differential tables for one CRC parameter
// set and one message bit-length. It is read-only after New returns, so a
// single Engine can serve concurrent Query calls.
type Engine struct {
	p    *crcparam.Params
	size uint

	// shortBuf holds a zeroed scratch message for the naive fallback used
	// when size < W: there's no window to slide, so every query just
	// recomputes the CRC directly, twice.
	shortBuf []byte

	d bitmatrix.Matrix   // difference matrix for a W-bit window at the left edge
	l []bitmatrix.Matrix // l[j]: transform for sliding the window right by 2^j
	r []bitmatrix.Matrix // r[j]: transform for sliding the window left by 2^j
}

// flipBit toggles bit pos of buf under the canonical bit-index convention:
// byte pos/8, bit (pos%8) counting from the least significant bit.
func flipBit(buf []byte, pos uint) {
	buf[pos/8] ^= 1 << (pos % 8)
}

func bitLength(x uint) uint {
	n := uint(0)
	for x != 0 {
		x >>= 1
		n++
	}
	return n
}

// New preprocesses the differential tables for params p and an N-bit
// (sizeBits) message. It returns ErrDegenerateParams if the parameters
// don't admit a solvable set of shift matrices.
func New(p *crcparam.Params, sizeBits uint) (*Engine, error) {
	w := p.Width

	if sizeBits < w {
		return &Engine{
			p:        p,
			size:     sizeBits,
			shortBuf: make([]byte, (sizeBits+7)/8+1),
		}, nil
	}

	m := bitLength(w)
	n := bitLength(sizeBits)

	buf := make([]byte, (2*w+7)/8+1)

	d := bitmatrix.New(w)
	computeDifference(p, buf, w, d)

	l := make([]bitmatrix.Matrix, n)
	r := make([]bitmatrix.Matrix, n)
	for j := range l {
		l[j] = bitmatrix.New(w)
		r[j] = bitmatrix.New(w)
	}

	j := uint(0)
	for ; j < m; j++ {
		s := uint(1) << j

		base := bigint.New(w)
		crcengine.ComputeBits(p, buf, 0, w+s, base)

		for i := uint(0); i < w; i++ {
			flipBit(buf, s+i)
			crcengine.ComputeBits(p, buf, 0, w+s, l[j][i])
			l[j][i].Xor(base)
			flipBit(buf, s+i)
		}
		pq := bitmatrix.Mov(bitmatrix.New(w), d)
		if !bitmatrix.Solve(pq, l[j]) {
			return nil, ErrDegenerateParams
		}

		for i := uint(0); i < w; i++ {
			flipBit(buf, i)
			crcengine.ComputeBits(p, buf, 0, w+s, r[j][i])
			r[j][i].Xor(base)
			flipBit(buf, i)
		}
		pq = bitmatrix.Mov(bitmatrix.New(w), d)
		if !bitmatrix.Solve(pq, r[j]) {
			return nil, ErrDegenerateParams
		}
	}

	for ; j < n; j++ {
		bitmatrix.Mul(l[j-1], l[j-1], l[j])
		bitmatrix.Mul(r[j-1], r[j-1], r[j])
	}

	return &Engine{p: p, size: sizeBits, d: d, l: l, r: r}, nil
}

// computeDifference fills dst so that row k holds CRC(buf[0:span]) XOR
// CRC(buf[0:span] with bit k flipped) -- crc_sparse_new's D computation.
func computeDifference(p *crcparam.Params, buf []byte, span uint, dst bitmatrix.Matrix) {
	base := bigint.New(p.Width)
	crcengine.ComputeBits(p, buf, 0, span, base)
	for k := uint(0); k < p.Width; k++ {
		flipBit(buf, k)
		crcengine.ComputeBits(p, buf, 0, span, dst[k])
		dst[k].Xor(base)
		flipBit(buf, k)
	}
}

// Query XORs into checksum the effect of flipping bit pos of the message,
// CRC(msg) XOR CRC(msg with bit pos flipped): a zero checksum becomes that
// differential, a checksum holding CRC(msg) becomes CRC(msg with bit pos
// flipped), and calling it twice on the same pos restores the original
// value. checksum's width must equal the engine's CRC width.
func (e *Engine) Query(pos uint, checksum *bigint.Bigint) error {
	w := e.p.Width
	if pos >= e.size {
		return ErrPositionOutOfRange
	}
	if checksum.Bits() != w {
		return ErrWidthMismatch
	}

	if e.d == nil {
		return e.queryShort(pos, checksum)
	}

	var ldist, rdist uint
	if pos >= w {
		ldist = pos - (w - 1)
	}
	rdist = e.size - (ldist + w)

	cur := bitmatrix.Mov(bitmatrix.New(w), e.d)
	other := bitmatrix.New(w)

	for i := 0; ldist != 0; i++ {
		if ldist&1 != 0 {
			bitmatrix.Mul(cur, e.l[i], other)
			cur, other = other, cur
		}
		ldist >>= 1
	}
	for i := 0; rdist != 0; i++ {
		if rdist&1 != 0 {
			bitmatrix.Mul(cur, e.r[i], other)
			cur, other = other, cur
		}
		rdist >>= 1
	}

	idx := pos
	if pos >= w {
		idx = w - 1
	}
	checksum.Xor(cur[idx])
	return nil
}

func (e *Engine) queryShort(pos uint, checksum *bigint.Bigint) error {
	w := e.p.Width
	// Work on a private copy so concurrent queries never share scratch.
	buf := make([]byte, len(e.shortBuf))
	x := bigint.New(w)
	crcengine.ComputeBits(e.p, buf, 0, e.size, x)
	checksum.Xor(x)

	y := bigint.New(w)
	flipBit(buf, pos)
	crcengine.ComputeBits(e.p, buf, 0, e.size, y)
	checksum.Xor(y)

	return nil
}
