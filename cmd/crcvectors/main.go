// Command crcvectors checks internal/crcengine against spec.md §8's table of
// known CRC vectors, printing a pass/fail line per vector and exiting
// non-zero if any mismatch. It's a conformance smoke test, not a benchmark.
package main

import (
	"fmt"
	"os"

	"crchack/internal/crcengine"
	"crchack/internal/crcparam"
)

var vectors = []struct {
	name string
	p    *crcparam.Params
	msg  string
	want string
}{
	{"CRC-32", crcparam.CRC32(), "123456789", "cbf43926"},
	{"CRC-16/CCITT-FALSE", crcparam.CRC16CCITTFalse(), "123456789", "29b1"},
	{"CRC-8", crcparam.CRC8(), "123456789", "f4"},
	{"CRC-16/X-25", crcparam.CRC16X25(), "123456789", "906e"},
	{"CRC-16/MODBUS", crcparam.CRC16Modbus(), "123456789", "4b37"},
	{"CRC-16/XMODEM", crcparam.CRC16XModem(), "123456789", "31c3"},
	{"CRC-16/KERMIT", crcparam.CRC16Kermit(), "123456789", "2189"},
}

func main() {
	failures := 0
	for _, v := range vectors {
		got := crcengine.Compute(v.p, []byte(v.msg)).ToHex()
		status := "ok"
		if got != v.want {
			status = "FAIL"
			failures++
		}
		fmt.Printf("%-20s got=%-10s want=%-10s %s\n", v.name, got, v.want, status)
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d vector(s) failed\n", failures)
		os.Exit(1)
	}
}
