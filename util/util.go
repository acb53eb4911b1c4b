// Package util holds small helpers shared across the image: a level-gated
// debug logger and a couple of arithmetic helpers used by the block-map and
// read/write code.
package util

import "log"

// Debug is the maximum level that DPrintf will print. It is a constant;
// raise it here for more verbose tracing of the journal state machine.
const Debug uint64 = 1

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp divides n by sz and rounds up to the next integer, e.g. the
// number of blocks needed to hold n bytes.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	}
	return m
}
