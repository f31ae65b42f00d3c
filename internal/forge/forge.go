// Package forge computes which bits of a message to flip so that a caller-
// supplied checksum function reports a chosen target value, given that the
// checksum is "weakly linear": H(x^y^z) = H(x)^H(y)^H(z) for equal-length
// x, y, z. Every standardized CRC satisfies this.
//
// Grounded on original_source/forge.c: same Gauss-Jordan elimination, same
// in-place permutation of the candidate bit-index array, same trick of
// recording each row's accumulated linear combination in its own low bits
// instead of carrying a separate identity matrix alongside A.
package forge

import "crchack/internal/bigint"

// Position names what an Oracle should evaluate: either the checksum of a
// single candidate bit flip, or the checksum of the unmodified message. It's
// a small struct rather than a magic sentinel integer so a zero value can't
// be silently misread as "bit 0".
type Position struct {
	whole bool
	bit   uint
}

// Bit asks the oracle for H(msg with bit pos flipped) XOR H(msg).
func Bit(pos uint) Position { return Position{bit: pos} }

// Whole asks the oracle for H(msg) itself.
func Whole() Position { return Position{whole: true} }

// Bit reports the bit index this Position names; only meaningful when
// IsWhole is false.
func (p Position) Bit() uint { return p.bit }

// IsWhole reports whether this Position is the whole-message query.
func (p Position) IsWhole() bool { return p.whole }

// Oracle evaluates H at the given Position. For Whole, it returns H(msg).
// For Bit(pos), it returns the differential H(msg with bit pos flipped) XOR
// H(msg) -- not the raw flipped checksum. A sparse.Engine satisfies this
// directly: Query XORs that differential into whatever bigint it's given,
// so calling it on a fresh zero-valued bigint yields exactly the value this
// contract requires.
type Oracle func(pos Position) *bigint.Bigint

// Forge finds a subset of bits (from the candidate positions in the bits
// slice) to flip so that the message's checksum becomes target. bits is
// reordered in place: on success, bits[0:k] are the positions to flip and k
// is returned. On failure the return value is -(width-i), where i is the
// first checksum bit the candidates could not reach; its magnitude is an
// estimate, not an exact count, of how many additional linearly independent
// candidate bits are needed, and a caller can supply more mutable positions
// and retry.
func Forge(target *bigint.Bigint, oracle Oracle, bits []uint) int {
	width := target.Bits()
	n := len(bits)

	hm := oracle(Whole())

	// Each row is already the differential H(msg with bit flipped) XOR
	// H(msg) -- that's the Oracle's contract for Bit positions, matching
	// what a sparse.Engine.Query call produces directly.
	at := make([]*bigint.Bigint, n)
	for idx, pos := range bits {
		at[idx] = oracle(Bit(pos))
	}

	d := target.Clone()
	d.Xor(hm)

	x := bigint.New(width)
	mask := bigint.New(width)
	acc := bigint.New(width)

	p := 0
	i := uint(0)
	for ; i < width; i++ {
		// Find the next pivot: a row at or after p with column i set.
		j := p
		for ; j < n; j++ {
			if at[j].GetBit(i) != 0 {
				bits[j], bits[p] = bits[p], bits[j]
				at[j], at[p] = at[p], at[j]
				break
			}
		}

		if j < n {
			// Pivot found at row p. Zero out column i in rows below it,
			// recording the elimination in each row's own bit p so the
			// combination can be replayed later without a separate
			// identity matrix.
			for k := p + 1; k < n; k++ {
				if at[k].GetBit(i) != 0 {
					at[k].Xor(at[p])
					at[k].SetBit(uint(p))
				}
			}

			if d.GetBit(i) != 0 {
				// d ^= AT[p] & ~mask
				acc.CopyFrom(mask)
				acc.Not()
				acc.And(at[p])
				d.Xor(acc)

				// x ^= (1 << p) ^ (AT[p] & mask)
				acc.Xor(at[p])
				acc.FlipBit(uint(p))
				x.Xor(acc)
			}

			p++
		} else if d.GetBit(i) != 0 {
			// No pivot for this column and d needs it: unsolvable with
			// the given candidate bits.
			break
		}

		mask.Shl1()
		mask.SetLsb()
	}

	if i < width {
		return -int(width - i)
	}

	k := 0
	for idx := uint(0); idx < width; idx++ {
		if x.GetBit(idx) != 0 {
			if uint(k) != idx {
				bits[idx], bits[k] = bits[k], bits[idx]
			}
			k++
		}
	}
	return k
}
