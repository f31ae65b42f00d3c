package forgesvc

import (
	"errors"
	"testing"

	"crchack/internal/bigint"
	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
)

func TestRunWithNilTargetJustComputesChecksum(t *testing.T) {
	p := crcparam.CRC32()
	msg := []byte("123456789")
	res, err := Run(Request{Params: p, Message: msg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Checksum.ToHex() != "cbf43926" {
		t.Errorf("Checksum = %s, want cbf43926", res.Checksum.ToHex())
	}
	if len(res.FlippedBits) != 0 {
		t.Errorf("expected no flips for plain CRC computation")
	}
}

func TestRunForgesTargetChecksum(t *testing.T) {
	p := crcparam.CRC32()
	msg := []byte("hello")
	target, _ := bigint.FromHex(32, "deadbeef")

	// Last 32 bits of a zero-padded message (appended past the 5-byte body).
	bits := make([]uint, 32)
	for i := range bits {
		bits[i] = uint(len(msg))*8 + uint(i)
	}

	res, err := Run(Request{Params: p, Message: msg, Target: target, Bits: bits})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Message) != 9 {
		t.Fatalf("Message length = %d, want 9", len(res.Message))
	}
	if res.Checksum.ToHex() != "deadbeef" {
		t.Errorf("Checksum = %s, want deadbeef", res.Checksum.ToHex())
	}
	got := crcengine.Compute(p, res.Message)
	if got.ToHex() != "deadbeef" {
		t.Errorf("recomputed CRC of Message = %s, want deadbeef", got.ToHex())
	}
	// First 5 bytes must be untouched.
	if string(res.Message[:5]) != "hello" {
		t.Errorf("prefix changed: %q", res.Message[:5])
	}
}

func TestRunReportsInsufficientBits(t *testing.T) {
	p := crcparam.CRC32()
	msg := []byte("hello")
	target, _ := bigint.FromHex(32, "deadbeef")

	// Only 16 mutable bits at the tail -- not enough for a 32-bit forge.
	bits := make([]uint, 16)
	for i := range bits {
		bits[i] = uint(len(msg))*8 + uint(i)
	}

	_, err := Run(Request{Params: p, Message: msg, Target: target, Bits: bits})
	var insufficient *InsufficientBitsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want *InsufficientBitsError", err)
	}
	if insufficient.Shortfall <= 0 {
		t.Errorf("Shortfall = %d, want positive", insufficient.Shortfall)
	}
}

func TestRunRejectsTargetWidthMismatch(t *testing.T) {
	p := crcparam.CRC32()
	target, _ := bigint.FromHex(16, "abcd")
	_, err := Run(Request{Params: p, Message: []byte("x"), Target: target, Bits: []uint{0}})
	if !errors.Is(err, ErrTargetWidthMismatch) {
		t.Errorf("err = %v, want ErrTargetWidthMismatch", err)
	}
}
