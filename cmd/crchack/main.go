// Command crchack forges a target CRC checksum for a message by flipping a
// minimal set of bits. With no target checksum it just prints the CRC of its
// input, like any other checksum utility.
//
// Flag handling follows original_source/crchack.c's attached-or-next-arg
// convention (e.g. "-w32" and "-w 32" are equivalent) rather than the
// standard library's flag package, which can't express that grammar.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"crchack/internal/bigint"
	"crchack/internal/bitslice"
	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
	"crchack/internal/forgesvc"
	"crchack/internal/sparse"
	"crchack/internal/stream"
)

const usage = `usage: crchack [options] input [desired_checksum]

Prints the CRC of input if no desired_checksum is given; otherwise forges
a message whose CRC equals desired_checksum (hex) by flipping mutable bits,
and writes the result to standard output.

options:
  -w bits   register width (default 32)
  -p hex    generator polynomial
  -i hex    initial register value
  -x hex    final XOR mask
  -r        reflect input bits
  -R        reflect final register
  -o expr   absolute bit position of the first mutable bit
  -O expr   bit position of the first mutable bit, counted from the end
  -b slice  add a mutable bit-index slice "l:r:s" (may repeat)
  -v        verbose (may repeat)
  -h        show this help
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	hasWidth              bool
	width                 uint
	poly, initVal, xorOut string
	reflectIn, reflectOut bool
	hasOffset             bool
	offsetFromEnd         bool
	offset                string
	slices                []string
	verbosity             int
	help                  bool
	input                 string
	hasTarget             bool
	target                string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 1
	}
	if opts.help {
		fmt.Fprint(stdout, usage)
		return 0
	}

	params, err := buildParams(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var target *bigint.Bigint
	if opts.hasTarget {
		target, err = bigint.FromHex(params.Width, opts.target)
		if err != nil {
			fmt.Fprintf(stderr, "invalid desired_checksum: %v\n", err)
			return 1
		}
	}

	var in io.Reader
	if opts.input == "-" {
		in = stdin
	} else {
		f, err := os.Open(opts.input)
		if err != nil {
			fmt.Fprintf(stderr, "opening %q: %v\n", opts.input, err)
			return 2
		}
		defer f.Close()
		in = f
	}

	src, err := stream.Open(in)
	if err != nil {
		fmt.Fprintf(stderr, "reading input: %v\n", err)
		return 2
	}
	defer src.Close()

	msg, err := src.ReadAll()
	if err != nil {
		fmt.Fprintf(stderr, "reading input: %v\n", err)
		return 2
	}

	if opts.verbosity > 0 {
		fmt.Fprintf(stderr, "crchack: read %d bytes, width=%d\n", len(msg), params.Width)
	}

	if !opts.hasTarget {
		fmt.Fprintln(stdout, crcengine.Compute(params, msg).ToHex())
		return 0
	}

	bits, err := resolveBits(opts, params, msg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 3
	}

	res, err := forgesvc.Run(forgesvc.Request{Params: params, Message: msg, Target: target, Bits: bits})
	if err != nil {
		var insufficient *forgesvc.InsufficientBitsError
		switch {
		case errors.As(err, &insufficient):
			fmt.Fprintf(stderr, "fail. try giving %d more mutable bits.\n", insufficient.Shortfall)
			return 6
		case errors.Is(err, sparse.ErrDegenerateParams):
			fmt.Fprintln(stderr, err)
			return 5
		default:
			fmt.Fprintln(stderr, err)
			return 4
		}
	}

	if opts.verbosity > 0 {
		fmt.Fprintf(stderr, "crchack: flipped %d bits, checksum now %s\n", len(res.FlippedBits), res.Checksum.ToHex())
	}

	if _, err := stdout.Write(res.Message); err != nil {
		fmt.Fprintf(stderr, "writing output: %v\n", err)
		return 7
	}
	return 0
}

// parseArgs walks args left to right, consuming options until it reaches the
// positional input/desired_checksum arguments. A single-letter option's
// value is either attached ("-w32") or the following argument ("-w 32").
func parseArgs(args []string) (*options, error) {
	o := &options{}
	i := 0
	for i < len(args) {
		arg := args[i]
		if len(arg) < 2 || arg[0] != '-' {
			break
		}
		c := arg[1]
		switch c {
		case 'r':
			o.reflectIn = true
			i++
			continue
		case 'R':
			o.reflectOut = true
			i++
			continue
		case 'v':
			o.verbosity++
			i++
			continue
		case 'h':
			o.help = true
			i++
			continue
		}

		switch c {
		case 'w', 'p', 'i', 'x', 'o', 'O', 'b':
			var val string
			if len(arg) > 2 {
				val = arg[2:]
				i++
			} else {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("option -%c requires a value", c)
				}
				val = args[i+1]
				i += 2
			}
			if err := applyOption(o, c, val); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown option '-%c'", c)
		}
	}

	rest := args[i:]
	if o.help {
		return o, nil
	}
	if len(rest) < 1 || len(rest) > 2 {
		return nil, fmt.Errorf("expected an input file and an optional desired_checksum")
	}
	o.input = rest[0]
	if len(rest) == 2 {
		o.target = rest[1]
		o.hasTarget = true
	}
	return o, nil
}

func applyOption(o *options, c byte, val string) error {
	switch c {
	case 'w':
		w, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid width %q: %w", val, err)
		}
		o.width = uint(w)
		o.hasWidth = true
	case 'p':
		o.poly = val
	case 'i':
		o.initVal = val
	case 'x':
		o.xorOut = val
	case 'o', 'O':
		if o.hasOffset {
			return fmt.Errorf("at most one of -o/-O may be given")
		}
		o.hasOffset = true
		o.offsetFromEnd = c == 'O'
		o.offset = val
	case 'b':
		o.slices = append(o.slices, val)
	}
	return nil
}

func buildParams(o *options) (*crcparam.Params, error) {
	customized := o.hasWidth || o.poly != "" || o.initVal != "" || o.xorOut != "" || o.reflectIn || o.reflectOut
	if !customized {
		return crcparam.Default(), nil
	}
	if !o.hasWidth {
		return nil, fmt.Errorf("custom CRC parameters require -w (width)")
	}
	if o.poly == "" {
		return nil, fmt.Errorf("custom CRC parameters require -p (polynomial)")
	}

	width := o.width
	poly, err := bigint.FromHex(width, o.poly)
	if err != nil {
		return nil, fmt.Errorf("invalid polynomial: %w", err)
	}

	initVal := bigint.New(width)
	if o.initVal != "" {
		initVal, err = bigint.FromHex(width, o.initVal)
		if err != nil {
			return nil, fmt.Errorf("invalid init value: %w", err)
		}
	}

	xorOut := bigint.New(width)
	if o.xorOut != "" {
		xorOut, err = bigint.FromHex(width, o.xorOut)
		if err != nil {
			return nil, fmt.Errorf("invalid xor_out value: %w", err)
		}
	}

	return crcparam.New(width, poly, initVal, xorOut, o.reflectIn, o.reflectOut)
}

// resolveBits computes the candidate mutable bit positions, in the
// canonical bit-index convention, and rejects any that fall further than W
// bits past the message's current end (spec's "bit out of range").
func resolveBits(o *options, params *crcparam.Params, msg []byte) ([]uint, error) {
	msgBits := uint(len(msg)) * 8

	var bits []uint
	switch {
	case len(o.slices) > 0:
		for _, expr := range o.slices {
			sl, err := bitslice.Parse(expr)
			if err != nil {
				return nil, fmt.Errorf("parsing -b %q: %w", expr, err)
			}
			expanded, err := sl.Expand(msgBits)
			if err != nil {
				return nil, fmt.Errorf("expanding -b %q: %w", expr, err)
			}
			bits = append(bits, expanded...)
		}
	case o.hasOffset:
		v, err := bitslice.EvalExpr(o.offset)
		if err != nil {
			return nil, fmt.Errorf("parsing offset %q: %w", o.offset, err)
		}
		var start int64
		if o.offsetFromEnd {
			start = int64(msgBits) - v
		} else if v < 0 {
			start = int64(msgBits) + v
		} else {
			start = v
		}
		if start < 0 {
			return nil, fmt.Errorf("bitslice: resolved offset %d is negative", start)
		}
		for k := uint(0); k < params.Width; k++ {
			bits = append(bits, uint(start)+k)
		}
	default:
		start := int64(msgBits) - int64(params.Width)
		if start < 0 {
			start = 0
		}
		for k := uint(0); k < params.Width; k++ {
			bits = append(bits, uint(start)+k)
		}
	}

	maxAllowed := msgBits + params.Width
	for _, b := range bits {
		if b >= maxAllowed {
			return nil, fmt.Errorf("bitslice: bit %d lies more than %d bits past the input", b, params.Width)
		}
	}
	return bits, nil
}
