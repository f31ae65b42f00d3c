package forge

import (
	"testing"

	"crchack/internal/bigint"
	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
)

// bruteOracle builds an Oracle by directly recomputing the CRC of msg with
// each candidate bit flipped, independent of the sparse differential engine
// -- this test exercises Forge's elimination logic in isolation.
func bruteOracle(t *testing.T, p *crcparam.Params, msg []byte) Oracle {
	t.Helper()
	hm := crcengine.Compute(p, msg)
	return func(pos Position) *bigint.Bigint {
		if pos.IsWhole() {
			return hm.Clone()
		}
		cp := make([]byte, len(msg))
		copy(cp, msg)
		cp[pos.Bit()/8] ^= 1 << (pos.Bit() % 8)
		h := crcengine.Compute(p, cp)
		h.Xor(hm)
		return h
	}
}

func flipBits(msg []byte, positions []uint) []byte {
	out := make([]byte, len(msg))
	copy(out, msg)
	for _, pos := range positions {
		out[pos/8] ^= 1 << (pos % 8)
	}
	return out
}

func TestForgeAchievesTargetChecksum(t *testing.T) {
	p := crcparam.CRC32()
	msg := []byte("forge this message please thanks")
	target, _ := bigint.FromHex(32, "deadbeef")

	bits := make([]uint, 8*len(msg))
	for i := range bits {
		bits[i] = uint(i)
	}

	oracle := bruteOracle(t, p, msg)
	k := Forge(target, oracle, bits)
	if k < 0 {
		t.Fatalf("Forge failed, shortfall %d", -k)
	}

	forged := flipBits(msg, bits[:k])
	got := crcengine.Compute(p, forged)
	if got.ToHex() != target.ToHex() {
		t.Errorf("forged message checksum = %s, want %s", got.ToHex(), target.ToHex())
	}
}

func TestForgeAlreadyAtTargetReturnsZeroFlips(t *testing.T) {
	p := crcparam.CRC16CCITTFalse()
	msg := []byte{0x01, 0x02, 0x03, 0x04}
	target := crcengine.Compute(p, msg)

	bits := make([]uint, 8*len(msg))
	for i := range bits {
		bits[i] = uint(i)
	}

	oracle := bruteOracle(t, p, msg)
	k := Forge(target, oracle, bits)
	if k != 0 {
		t.Errorf("Forge on an already-matching message should need 0 flips, got %d", k)
	}
}

func TestForgeInsufficientBitsReportsShortfall(t *testing.T) {
	p := crcparam.CRC32()
	msg := []byte("x")
	target, _ := bigint.FromHex(32, "ffffffff")

	// Only 4 mutable bits, nowhere near enough for a 32-bit checksum.
	bits := []uint{0, 1, 2, 3}

	oracle := bruteOracle(t, p, msg)
	k := Forge(target, oracle, bits)
	if k >= 0 {
		t.Fatalf("expected Forge to fail with too few bits, got k=%d", k)
	}
	if -k > 32 || -k <= 0 {
		t.Errorf("shortfall %d out of expected range", -k)
	}
}

func TestForgeIsIdempotentOnRepeatedCall(t *testing.T) {
	p := crcparam.CRC8()
	msg := []byte("idempotent")
	target, _ := bigint.FromHex(8, "5a")

	bits := make([]uint, 8*len(msg))
	for i := range bits {
		bits[i] = uint(i)
	}

	oracle := bruteOracle(t, p, msg)
	bits1 := append([]uint(nil), bits...)
	k1 := Forge(target, oracle, bits1)
	if k1 < 0 {
		t.Fatalf("first Forge failed, shortfall %d", -k1)
	}
	forged := flipBits(msg, bits1[:k1])

	// Forging again from the already-forged message, with a fresh oracle
	// over the new message, should need zero further flips.
	oracle2 := bruteOracle(t, p, forged)
	bits2 := append([]uint(nil), bits...)
	k2 := Forge(target, oracle2, bits2)
	if k2 != 0 {
		t.Errorf("re-forging an already-correct message should need 0 flips, got %d", k2)
	}
}
