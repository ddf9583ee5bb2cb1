package workload

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Deterministic workload generation for the load driver and the stress
// tests. Every worker derives its values from (worker, seq) alone, so
// runs are reproducible without sharing any rand state across
// goroutines.

func seed(worker, seq int) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(worker))
	binary.LittleEndian.PutUint64(b[8:], uint64(seq))
	return b
}

// ValueFor returns the payload worker writes at step seq.
func ValueFor(worker, seq int) uint64 {
	b := seed(worker, seq)
	return xxhash.Sum64(b[:])
}

// StringFor is ValueFor for string payloads.
func StringFor(worker, seq int) string {
	return fmt.Sprintf("w%d-%016x", worker, ValueFor(worker, seq))
}

// KeyBytes returns the external cache key for (worker, seq); used by the
// baseline plans that drive byte-keyed caches.
func KeyBytes(worker, seq int) []byte {
	b := seed(worker, seq)
	return b[:]
}

// ShouldErase decides with probability pct/100 whether worker erases the
// element it inserted at step seq. A different hash family than ValueFor
// keeps the decision uncorrelated with the payload.
func ShouldErase(worker, seq, pct int) bool {
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	b := seed(worker, seq)
	return xxh3.Hash(b[:])%100 < uint64(pct)
}
