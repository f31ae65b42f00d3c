// Package crcparam defines the fully parameterized CRC algorithm record
// shared by internal/crcengine, internal/sparse, and internal/forge.
package crcparam

import (
	"errors"
	"fmt"

	"crchack/internal/bigint"
)

// Params is an immutable CRC algorithm definition: register width, generator
// polynomial, initial register value, final XOR mask, and the two reflection
// flags. Once constructed it is shared read-only by the engine and forger.
type Params struct {
	Width      uint
	Poly       *bigint.Bigint
	Init       *bigint.Bigint
	XorOut     *bigint.Bigint
	ReflectIn  bool
	ReflectOut bool
}

var (
	// ErrZeroWidth is returned by New when width is zero.
	ErrZeroWidth = errors.New("crcparam: width must be > 0")
	// ErrWidthMismatch is returned when poly/init/xor_out don't share Width.
	ErrWidthMismatch = errors.New("crcparam: poly/init/xor_out width mismatch")
)

// New validates and builds a Params record. poly, init, and xorOut must all
// have bit-width equal to width.
func New(width uint, poly, init, xorOut *bigint.Bigint, reflectIn, reflectOut bool) (*Params, error) {
	if width == 0 {
		return nil, ErrZeroWidth
	}
	for _, b := range []*bigint.Bigint{poly, init, xorOut} {
		if b.Bits() != width {
			return nil, fmt.Errorf("%w: want %d, got %d", ErrWidthMismatch, width, b.Bits())
		}
	}
	return &Params{
		Width:      width,
		Poly:       poly,
		Init:       init,
		XorOut:     xorOut,
		ReflectIn:  reflectIn,
		ReflectOut: reflectOut,
	}, nil
}

func mustHex(width uint, hex string) *bigint.Bigint {
	b, err := bigint.FromHex(width, hex)
	if err != nil {
		panic(fmt.Sprintf("crcparam: bad built-in literal %q: %v", hex, err))
	}
	return b
}

func mustOnes(width uint) *bigint.Bigint {
	b := bigint.New(width)
	b.LoadOnes()
	return b
}

func mustZeros(width uint) *bigint.Bigint {
	return bigint.New(width)
}

func preset(width uint, poly, init string, xorAllOnes, reflectIn, reflectOut bool) *Params {
	var xorOut *bigint.Bigint
	if xorAllOnes {
		xorOut = mustOnes(width)
	} else {
		xorOut = mustZeros(width)
	}
	var initVal *bigint.Bigint
	if init == "" {
		initVal = mustZeros(width)
	} else if init == "ones" {
		initVal = mustOnes(width)
	} else {
		initVal = mustHex(width, init)
	}
	p, err := New(width, mustHex(width, poly), initVal, xorOut, reflectIn, reflectOut)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the default CRC used when the caller specifies none:
// CRC-32 (width 32, poly 0x04c11db7, init/xor_out all-ones, both reflected).
func Default() *Params { return CRC32() }

// CRC32 is the classic ISO-HDLC / zlib / zip CRC-32.
func CRC32() *Params { return preset(32, "04c11db7", "ones", true, true, true) }

// CRC16CCITTFalse is CRC-16/CCITT-FALSE: poly 0x1021, init 0xffff, no reflection.
func CRC16CCITTFalse() *Params { return preset(16, "1021", "ones", false, false, false) }

// CRC8 is the basic CRC-8/SMBUS-style algorithm: poly 0x07, init 0, no xor, no reflection.
func CRC8() *Params { return preset(8, "07", "", false, false, false) }

// CRC16X25 is CRC-16/X-25 (also known as PPP): poly 0x1021, init/xor all-ones, reflected.
func CRC16X25() *Params { return preset(16, "1021", "ones", true, true, true) }

// CRC16Modbus is CRC-16/MODBUS: poly 0x8005, init all-ones, no xor, reflected.
func CRC16Modbus() *Params { return preset(16, "8005", "ones", false, true, true) }

// CRC16XModem is CRC-16/XMODEM: poly 0x1021, init 0, no xor, no reflection.
func CRC16XModem() *Params { return preset(16, "1021", "", false, false, false) }

// CRC16Kermit is CRC-16/KERMIT: poly 0x1021, init 0, no xor, reflected.
func CRC16Kermit() *Params { return preset(16, "1021", "", false, true, true) }
