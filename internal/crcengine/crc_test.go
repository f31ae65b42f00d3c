package crcengine

import (
	"testing"

	"crchack/internal/crcparam"
)

func TestKnownVectors(t *testing.T) {
	msg := []byte("123456789")

	cases := []struct {
		name string
		p    *crcparam.Params
		want string
	}{
		{"CRC-32", crcparam.CRC32(), "cbf43926"},
		{"CRC-16/CCITT-FALSE", crcparam.CRC16CCITTFalse(), "29b1"},
		{"CRC-8", crcparam.CRC8(), "f4"},
	}

	for _, c := range cases {
		got := Compute(c.p, msg).ToHex()
		if got != c.want {
			t.Errorf("%s: Compute(%q) = %s, want %s", c.name, msg, got, c.want)
		}
	}
}

func TestAppendEquivalence(t *testing.T) {
	msg := []byte("the quick brown fox jumps over the lazy dog")
	split := 17

	for _, p := range []*crcparam.Params{crcparam.CRC32(), crcparam.CRC16CCITTFalse(), crcparam.CRC16Modbus(), crcparam.CRC8()} {
		whole := Compute(p, msg)

		prefix := Compute(p, msg[:split])
		Append(p, msg[split:], prefix)

		if prefix.ToHex() != whole.ToHex() {
			t.Errorf("append split at %d mismatch: got %s, want %s", split, prefix.ToHex(), whole.ToHex())
		}
	}
}

func TestAppendBitsMatchesComputeBits(t *testing.T) {
	msg := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	p := crcparam.CRC16X25()

	whole := Compute(p, msg)

	mid := uint(3 * 8)
	prefix := Compute(p, msg[:3])
	AppendBits(p, msg, mid, uint(len(msg))*8, prefix)

	if prefix.ToHex() != whole.ToHex() {
		t.Errorf("AppendBits from bit offset mismatch: got %s, want %s", prefix.ToHex(), whole.ToHex())
	}
}

func TestLinearityOfSingleBitFlip(t *testing.T) {
	// Flipping a single input bit changes the checksum by a value that
	// depends only on the bit position (and params), not on the rest of
	// the message -- the property the sparse differential engine exploits.
	p := crcparam.CRC32()
	msgA := []byte{0x00, 0x00, 0x00, 0x00}
	msgB := []byte{0x00, 0x00, 0x00, 0x00}
	msgC := []byte{0xff, 0xff, 0xff, 0x00}
	msgD := []byte{0xff, 0xff, 0xff, 0x00}

	flipByte(msgB, 5)
	flipByte(msgD, 5)

	diffAB := Compute(p, msgA)
	cb := Compute(p, msgB)
	diffAB.Xor(cb)

	diffCD := Compute(p, msgC)
	cd := Compute(p, msgD)
	diffCD.Xor(cd)

	if diffAB.ToHex() != diffCD.ToHex() {
		t.Errorf("single-bit-flip differential not independent of message content: %s vs %s", diffAB.ToHex(), diffCD.ToHex())
	}
}

func flipByte(msg []byte, bitPos uint) {
	msg[bitPos/8] ^= 1 << (bitPos % 8)
}
