// Package forgesvc orchestrates one forge request end-to-end: pad the
// message to cover every candidate bit, build the sparse differential
// engine, run the forger against an oracle backed by that engine, and apply
// the resulting flips. It's the one place that wires
// internal/crcparam -> internal/sparse -> internal/forge together, shared
// by the CLI and the HTTP service so neither reimplements the pipeline.
package forgesvc

import (
	"errors"
	"fmt"
	"sort"

	"crchack/internal/bigint"
	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
	"crchack/internal/forge"
	"crchack/internal/sparse"
	"crchack/internal/stream"
)

// ErrTargetWidthMismatch is returned when the target checksum's width
// doesn't match the CRC parameters' width.
var ErrTargetWidthMismatch = errors.New("forgesvc: target checksum width does not match CRC width")

// InsufficientBitsError reports that the candidate mutable bits didn't span
// a full-rank linear system; Shortfall is forge.Forge's estimate of how many
// additional, linearly independent bits are needed.
type InsufficientBitsError struct {
	Shortfall int
}

func (e *InsufficientBitsError) Error() string {
	return fmt.Sprintf("forgesvc: try giving %d more mutable bits", e.Shortfall)
}

// Request is one forge (or plain-CRC) job.
type Request struct {
	Params  *crcparam.Params
	Message []byte
	// Target is the desired checksum. If nil, Run just computes the CRC of
	// Message and returns it without forging.
	Target *bigint.Bigint
	// Bits lists candidate mutable bit positions, in the canonical
	// bit-index convention. May exceed the message's current length, in
	// which case the message is zero-padded first.
	Bits []uint
}

// Result is the outcome of a successful Request.
type Result struct {
	// Message is the (possibly padded, possibly flipped) output message.
	Message []byte
	// FlippedBits lists, in ascending order, the bit positions that were
	// actually flipped to reach Target. Empty when Target was nil or the
	// message already matched it.
	FlippedBits []uint
	// Checksum is the CRC of Message after any flips were applied -- equal
	// to Target on a successful forge, or simply CRC(Message) when no
	// Target was requested.
	Checksum *bigint.Bigint
}

// Run executes req. If req.Target is nil, it's a pure CRC computation. A
// returned *InsufficientBitsError means req.Bits didn't span a full-rank
// system; any other error wraps a lower-level failure (e.g.
// sparse.ErrDegenerateParams).
func Run(req Request) (*Result, error) {
	if req.Target == nil {
		msg := req.Message
		return &Result{Message: msg, Checksum: crcengine.Compute(req.Params, msg)}, nil
	}

	if req.Target.Bits() != req.Params.Width {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrTargetWidthMismatch, req.Params.Width, req.Target.Bits())
	}

	maxBit := uint(0)
	for _, b := range req.Bits {
		if b > maxBit {
			maxBit = b
		}
	}
	msg := stream.PadMessage(req.Message, maxBit)
	sizeBits := uint(len(msg)) * 8

	engine, err := sparse.New(req.Params, sizeBits)
	if err != nil {
		return nil, fmt.Errorf("forgesvc: building sparse engine: %w", err)
	}

	oracle := func(pos forge.Position) *bigint.Bigint {
		if pos.IsWhole() {
			return crcengine.Compute(req.Params, msg)
		}
		diff := bigint.New(req.Params.Width)
		if err := engine.Query(pos.Bit(), diff); err != nil {
			// Every position handed to Forge comes from req.Bits, already
			// bounded below sizeBits by the padding above.
			panic(fmt.Sprintf("forgesvc: bit %d out of engine range: %v", pos.Bit(), err))
		}
		return diff
	}

	bits := append([]uint(nil), req.Bits...)
	k := forge.Forge(req.Target, oracle, bits)
	if k < 0 {
		return nil, &InsufficientBitsError{Shortfall: -k}
	}

	flipped := append([]uint(nil), bits[:k]...)
	sort.Slice(flipped, func(i, j int) bool { return flipped[i] < flipped[j] })

	out := make([]byte, len(msg))
	copy(out, msg)
	for _, b := range flipped {
		out[b/8] ^= 1 << (b % 8)
	}

	return &Result{
		Message:     out,
		FlippedBits: flipped,
		Checksum:    crcengine.Compute(req.Params, out),
	}, nil
}
