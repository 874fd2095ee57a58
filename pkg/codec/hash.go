package codec

import "github.com/cespare/xxhash/v2"

// KeyHash computes the 64-bit key-hash used throughout the on-disk format.
//
// The identity of this hash is part of the HSTable format: every reader of
// a given database must use the same function, so it is never swapped for
// a "better" one without a format version bump.
func KeyHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}
