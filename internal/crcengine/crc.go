// Package crcengine implements the parameterized forward CRC (classical
// MSB-first shift register, generalized to any width/poly/init/xor_out/
// reflection combination) plus the incremental "append" variant used to
// extend an existing checksum with more input without re-scanning the
// prefix.
//
// Grounded on original_source/crc.c's crc_bits/crc/crc_append_bits/crc_append.
package crcengine

import (
	"crchack/internal/bigint"
	"crchack/internal/crcparam"
)

// scanBit returns the input bit at scan position p within msg, honoring the
// CRC's input-reflection convention: MSB-first within each byte when
// reflectIn is false, LSB-first when true. This is the CRC algorithm's own
// scan order and is independent of the canonical LSB-first bit-index
// convention used elsewhere in the core to address mutable message bits.
func scanBit(msg []byte, p uint, reflectIn bool) int {
	byteIdx := p / 8
	bitInByte := p % 8
	b := msg[byteIdx]
	if reflectIn {
		return int((b >> bitInByte) & 1)
	}
	return int((b >> (7 - bitInByte)) & 1)
}

// ComputeBits processes scan positions [i, j) of msg into checksum, which
// must already be width-W and is updated in place: it XORs Init into
// checksum, runs the shift register over the bits, then applies XorOut and
// ReflectOut. It does not reset checksum to zero first — callers that want a
// from-scratch computation should use Compute, which starts from a zero
// register.
func ComputeBits(p *crcparam.Params, msg []byte, i, j uint, checksum *bigint.Bigint) {
	checksum.Xor(p.Init)

	for ; i < j; i++ {
		top := checksum.Msb()
		bit := top ^ scanBit(msg, i, p.ReflectIn)
		checksum.Shl1()
		if bit != 0 {
			checksum.Xor(p.Poly)
		}
	}

	checksum.Xor(p.XorOut)
	if p.ReflectOut {
		checksum.Reflect()
	}
}

// Compute returns the CRC of msg (length bytes) under parameters p.
func Compute(p *crcparam.Params, msg []byte) *bigint.Bigint {
	checksum := bigint.New(p.Width)
	ComputeBits(p, msg, 0, 8*uint(len(msg)), checksum)
	return checksum
}

// AppendBits extends an existing checksum (the CRC of some prefix) to cover
// scan positions [i, j) of msg as well, updating checksum in place.
//
// Mechanically this undoes the final transform applied by the previous
// ComputeBits call (reflect_out, then xor_out), then undoes the initial
// xor_out/init step ComputeBits is about to re-apply by XORing Init in
// advance -- XOR being self-inverse, the two Init XORs cancel, leaving the
// raw mid-computation register state for the new bits to build on. Order
// matters and is fixed by original_source/crc.c's crc_append_bits: reflect
// first (if reflect_out), then undo xor_out, then pre-undo init.
func AppendBits(p *crcparam.Params, msg []byte, i, j uint, checksum *bigint.Bigint) {
	if p.ReflectOut {
		checksum.Reflect()
	}
	checksum.Xor(p.XorOut)
	checksum.Xor(p.Init)
	ComputeBits(p, msg, i, j, checksum)
}

// Append extends checksum (the CRC of some prefix) to cover all of msg
// (length bytes) as an appended chunk.
func Append(p *crcparam.Params, msg []byte, checksum *bigint.Bigint) {
	AppendBits(p, msg, 0, 8*uint(len(msg)), checksum)
}
