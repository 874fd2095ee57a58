package codec

import (
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/cockroachdb/errors"
)

// Flags bits recognized on a Record.
const (
	FlagTombstone  byte = 0x01
	FlagCompressed byte = 0x02
	FlagMultipart  byte = 0x04
)

// maxHeaderSize is the worst-case size of the fixed + varint portion of an
// encoded record, used to size read buffers before the key/value lengths
// are known: flags(1) + 3 varints(10 each) + crc32(4).
const maxHeaderSize = 1 + 3*binary.MaxVarintLen64 + 4

// Record is a single decoded HSTable record.
type Record struct {
	Flags                 byte
	KeySize               uint32
	ValueSizeDisk         uint32
	ValueSizeUncompressed uint32
	CRC32                 uint32
	Key                   []byte
	Value                 []byte // on-disk bytes: compressed if FlagCompressed is set
}

// IsTombstone reports whether the record marks its key deleted.
func (r *Record) IsTombstone() bool { return r.Flags&FlagTombstone != 0 }

// IsCompressed reports whether Value holds compressed bytes.
func (r *Record) IsCompressed() bool { return r.Flags&FlagCompressed != 0 }

// IsMultipart reports whether Value is a stream of framed compressed blocks
// rather than a single one.
func (r *Record) IsMultipart() bool { return r.Flags&FlagMultipart != 0 }

// NewRecord builds a plain, uncompressed record for key/value. Callers that
// need compression use NewRecordWithFlags.
func NewRecord(key, value []byte) *Record {
	return &Record{
		KeySize:               uint32(len(key)),
		ValueSizeDisk:         uint32(len(value)),
		ValueSizeUncompressed: uint32(len(value)),
		Key:                   key,
		Value:                 value,
	}
}

// NewRecordWithFlags builds a record with explicit flags and uncompressed
// size; value is the on-disk representation (already compressed if
// FlagCompressed is set).
func NewRecordWithFlags(flags byte, key, value []byte, uncompressedSize uint32) *Record {
	return &Record{
		Flags:                 flags,
		KeySize:               uint32(len(key)),
		ValueSizeDisk:         uint32(len(value)),
		ValueSizeUncompressed: uncompressedSize,
		Key:                   key,
		Value:                 value,
	}
}

// Size returns the total encoded size of the record.
func (r *Record) Size() int {
	var hdr [maxHeaderSize]byte
	n := r.encodeHeader(hdr[:])
	return n + len(r.Key) + len(r.Value)
}

// encodeHeader writes flags + the three varint sizes + crc32 into buf and
// returns the number of bytes written. buf must be at least maxHeaderSize.
func (r *Record) encodeHeader(buf []byte) int {
	buf[0] = r.Flags
	n := 1
	n += binary.PutUvarint(buf[n:], uint64(r.KeySize))
	n += binary.PutUvarint(buf[n:], uint64(r.ValueSizeDisk))
	n += binary.PutUvarint(buf[n:], uint64(r.ValueSizeUncompressed))
	binary.LittleEndian.PutUint32(buf[n:], r.CRC32)
	n += 4
	return n
}

// RecordCodec serializes and deserializes records in the HSTable wire
// format.
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance.
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes key/value (plus flags/uncompressedSize metadata) into a
// complete binary record, including a freshly computed CRC32.
func (c *RecordCodec) Encode(flags byte, key, value []byte, uncompressedSize uint32) ([]byte, error) {
	if len(key) > math.MaxUint32 || len(value) > math.MaxUint32 {
		return nil, errors.Wrap(ErrInvalidArgument, "key or value exceeds 32-bit size limit")
	}

	r := NewRecordWithFlags(flags, key, value, uncompressedSize)
	r.CRC32 = r.calculateCRC32()

	var hdr [maxHeaderSize]byte
	n := r.encodeHeader(hdr[:])

	out := make([]byte, n+len(key)+len(value))
	copy(out, hdr[:n])
	copy(out[n:], key)
	copy(out[n+len(key):], value)
	return out, nil
}

// Decode parses a complete binary record (as produced by Encode) and
// validates its CRC32.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	r, _, err := c.decodeAt(data)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// peekRecordHeader parses the fixed + varint header of a record (flags,
// the three sizes, crc32) without requiring the key/value bytes to be
// present in buf. It returns the partially-populated record and the number
// of header bytes consumed. Used both by decodeAt and by the HSTable
// scanner, which must learn a record's total length before it knows how
// many bytes to read for it.
func peekRecordHeader(buf []byte) (*Record, int, error) {
	if len(buf) < 1 {
		return nil, 0, errors.Wrap(ErrCorruption, "record too short for flags")
	}
	r := &Record{Flags: buf[0]}
	off := 1

	keySize, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, 0, errors.Wrap(ErrCorruption, "malformed key_size varint")
	}
	off += n

	valSizeDisk, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, 0, errors.Wrap(ErrCorruption, "malformed value_size_disk varint")
	}
	off += n

	valSizeUncompressed, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, 0, errors.Wrap(ErrCorruption, "malformed value_size_uncompressed varint")
	}
	off += n

	if keySize > math.MaxUint32 || valSizeDisk > math.MaxUint32 || valSizeUncompressed > math.MaxUint32 {
		return nil, 0, errors.Wrap(ErrCorruption, "declared size exceeds 32-bit format limit")
	}

	if off+4 > len(buf) {
		return nil, 0, errors.Wrap(ErrCorruption, "record too short for crc32")
	}
	r.CRC32 = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	r.KeySize = uint32(keySize)
	r.ValueSizeDisk = uint32(valSizeDisk)
	r.ValueSizeUncompressed = uint32(valSizeUncompressed)
	return r, off, nil
}

// decodeAt parses a complete record starting at the beginning of data and
// returns it along with the number of bytes consumed. It does not validate
// the CRC, so callers scanning a possibly-truncated file can tell a parse
// failure (corrupt/short header) apart from a CRC failure on an otherwise
// well-formed record.
func (c *RecordCodec) decodeAt(data []byte) (*Record, int, error) {
	r, off, err := peekRecordHeader(data)
	if err != nil {
		return nil, 0, err
	}

	total := off + int(r.KeySize) + int(r.ValueSizeDisk)
	if total > len(data) {
		return nil, 0, errors.Wrap(ErrCorruption, "record data runs past end of buffer")
	}

	r.Key = data[off : off+int(r.KeySize)]
	r.Value = data[off+int(r.KeySize) : total]
	return r, total, nil
}

// Validate checks the integrity of a record using CRC32.
func (r *Record) Validate() error {
	if got := r.calculateCRC32(); got != r.CRC32 {
		return errors.Wrapf(ErrCorruption, "crc32 mismatch: stored=%08x computed=%08x", r.CRC32, got)
	}
	return nil
}

// calculateCRC32 computes the CRC32 (IEEE) over key_bytes || value_bytes.
func (r *Record) calculateCRC32() uint32 {
	crc := crc32.NewIEEE()
	crc.Write(r.Key)
	crc.Write(r.Value)
	return crc.Sum32()
}
