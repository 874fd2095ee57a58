// Package store implements the Storage Engine and Read Iterator over a
// collection of sealed HSTable files: the global key-hash index, the
// refcounted file-handle pool, point lookups, snapshots, and the
// live-record iteration algorithm. The on-disk record and file format
// themselves live in pkg/codec; this package is the engine that serves
// reads against files in that format.
package store

import "github.com/ssargent/hstabledb/pkg/codec"

// sealedBit is the high bit of a Location that distinguishes an
// in-memory/unsealed reference (bit set) from an on-disk/sealed one (bit
// clear). Only sealed locations are valid iterator inputs.
const sealedBit = uint64(1) << 63

// Location is a packed 64-bit reference to a record: 32-bit file-id in the
// high word, 32-bit in-file offset in the low word, with the sealed bit
// (bit 63) layered over the top of the file-id. Locations are stable:
// once a record is written at a location in a sealed file, the location is
// a permanent reference to it until the file is deleted.
type Location uint64

// NewSealedLocation packs a file-id and offset into a sealed Location.
func NewSealedLocation(fileID uint32, offset uint32) Location {
	return Location(uint64(fileID)<<32 | uint64(offset))
}

// NewUnsealedLocation packs a file-id and offset into an unsealed
// (in-memory) Location, used only by the write path before a file is
// sealed; the core never dereferences these.
func NewUnsealedLocation(fileID uint32, offset uint32) Location {
	return NewSealedLocation(fileID, offset) | Location(sealedBit)
}

// IsSealed reports whether the location refers to an on-disk, sealed file.
func (l Location) IsSealed() bool { return l&Location(sealedBit) == 0 }

// FileID returns the location's file-id component.
func (l Location) FileID() uint32 { return uint32((uint64(l) &^ sealedBit) >> 32) }

// Offset returns the location's in-file offset component.
func (l Location) Offset() uint32 { return uint32(l) }

// ReadOptions configures a single read operation.
type ReadOptions struct {
	// VerifyChecksums re-validates a record's CRC32 on every read instead
	// of trusting the index. Default true.
	VerifyChecksums bool
	// FillCache hints that the underlying file mapping should stay resident
	// after this read. Default true. The core never implements an LRU
	// cache itself (spec non-goal); this flag is threaded through for a
	// future external cache collaborator to honor.
	FillCache bool
}

// DefaultReadOptions returns the documented defaults: verify checksums and
// fill cache both true.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{VerifyChecksums: true, FillCache: true}
}

// RecordIterator is the capability set a read iterator exposes. It is
// implemented today by a single concrete variant (hsIterator); future
// variants (prefix iterator, reverse iterator) can satisfy the same
// interface without callers changing.
type RecordIterator interface {
	Begin() error
	IsValid() bool
	Next() bool
	GetKey() []byte
	GetValue() ([]byte, error)
	GetMultipartValue() (*codec.MultipartReader, error)
	Close() error
}

// KeyValue is a materialized (key, value) pair, returned by callers that
// want to drain an iterator into a slice rather than stepping it by hand.
type KeyValue struct {
	Key   []byte
	Value []byte
}
