package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

const (
	// HeaderSize is the fixed size of an HSTable header in bytes.
	HeaderSize = 32
	// FooterSize is the fixed size of an HSTable footer in bytes.
	FooterSize = 32

	// FormatVersion is incremented on any layout change; readers refuse to
	// open a file whose header declares a version they don't recognize.
	FormatVersion uint32 = 1
)

// headerMagic and footerMagic are the stable byte sequences identifying an
// HSTable file. They never change across format versions.
var (
	headerMagic = [8]byte{'H', 'S', 'T', 'B', 'L', 'H', 'D', 'R'}
	footerMagic = [8]byte{'H', 'S', 'T', 'B', 'L', 'F', 'T', 'R'}
)

// Header flag bits.
const (
	HeaderFlagLarge uint32 = 0x1 // file holds a single oversized record
)

// Header is the fixed 32-byte HSTable header.
type Header struct {
	Magic   [8]byte
	Version uint32
	FileID  uint32
	Flags   uint32
	// 12 bytes of padding follow on disk; not represented here.
}

// IsLarge reports whether the header marks this as a large (single-record)
// file.
func (h Header) IsLarge() bool { return h.Flags&HeaderFlagLarge != 0 }

// EncodeHeader serializes h into a fixed HeaderSize-byte buffer.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.FileID)
	binary.LittleEndian.PutUint32(buf[16:20], h.Flags)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header, validating
// the magic and format version.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errors.Wrap(ErrCorruption, "header: short read")
	}
	copy(h.Magic[:], buf[0:8])
	if !bytes.Equal(h.Magic[:], headerMagic[:]) {
		return h, errors.Wrap(ErrCorruption, "header: bad magic")
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	if h.Version != FormatVersion {
		return h, errors.Wrapf(ErrCorruption, "header: unsupported format version %d", h.Version)
	}
	h.FileID = binary.LittleEndian.Uint32(buf[12:16])
	h.Flags = binary.LittleEndian.Uint32(buf[16:20])
	return h, nil
}

// Footer is the fixed 32-byte HSTable footer.
type Footer struct {
	NumRecords       uint32
	OffsetArrayStart uint32
	FileSize         uint64
	CRC32            uint32
	// 4 bytes of padding follow on disk; not represented here.
}

// EncodeFooter serializes f into a fixed FooterSize-byte buffer, with its
// CRC32 computed over NumRecords||OffsetArrayStart||FileSize.
func EncodeFooter(f Footer) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.NumRecords)
	binary.LittleEndian.PutUint32(buf[4:8], f.OffsetArrayStart)
	binary.LittleEndian.PutUint64(buf[8:16], f.FileSize)

	crc := crc32.NewIEEE()
	crc.Write(buf[0:16])
	binary.LittleEndian.PutUint32(buf[16:20], crc.Sum32())
	copy(buf[20:28], footerMagic[:])
	return buf
}

// DecodeFooter parses a FooterSize-byte buffer into a Footer, validating
// the magic and the footer's own CRC32.
func DecodeFooter(buf []byte) (Footer, error) {
	var f Footer
	if len(buf) < FooterSize {
		return f, errors.Wrap(ErrCorruption, "footer: short read")
	}
	f.NumRecords = binary.LittleEndian.Uint32(buf[0:4])
	f.OffsetArrayStart = binary.LittleEndian.Uint32(buf[4:8])
	f.FileSize = binary.LittleEndian.Uint64(buf[8:16])
	f.CRC32 = binary.LittleEndian.Uint32(buf[16:20])

	crc := crc32.NewIEEE()
	crc.Write(buf[0:16])
	if crc.Sum32() != f.CRC32 {
		return f, errors.Wrap(ErrCorruption, "footer: crc32 mismatch")
	}

	var magic [8]byte
	copy(magic[:], buf[20:28])
	if !bytes.Equal(magic[:], footerMagic[:]) {
		return f, errors.Wrap(ErrCorruption, "footer: bad magic")
	}
	return f, nil
}

// FileIndex is the result of scanning one HSTable file: every key-hash
// observed, mapped to the in-file offsets of the records written for that
// hash, oldest first. Multiple offsets for one hash are expected — a later
// write, or an unrelated colliding key, both land in the same bucket, and
// the Storage Engine resolves which is live at lookup time.
type FileIndex struct {
	FileID    uint32
	IsLarge   bool
	FileSize  int64
	Locations map[uint64][]uint32
}

// LoadFile scans a sealed HSTable file (reachable through r, of the given
// total size) and reconstructs its FileIndex. A corrupt or truncated record
// is never fatal to the load: a bad CRC skips just that record, and a
// structurally malformed or truncated record stops the scan at the last
// good offset and returns the index built so far.
func LoadFile(r io.ReaderAt, size int64, fileID uint32) (*FileIndex, error) {
	if size < HeaderSize+FooterSize {
		return nil, errors.Wrap(ErrCorruption, "file too small for header+footer")
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, errors.Wrap(ErrIOError, "reading header")
	}
	header, err := DecodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if header.FileID != fileID {
		return nil, errors.Wrapf(ErrCorruption, "header file_id %d does not match filename file_id %d", header.FileID, fileID)
	}

	idx := &FileIndex{
		FileID:    fileID,
		IsLarge:   header.IsLarge(),
		FileSize:  size,
		Locations: make(map[uint64][]uint32),
	}

	footerBuf := make([]byte, FooterSize)
	if _, err := r.ReadAt(footerBuf, size-FooterSize); err != nil {
		return nil, errors.Wrap(ErrIOError, "reading footer")
	}
	if _, err := DecodeFooter(footerBuf); err != nil {
		return nil, err
	}

	if header.IsLarge() {
		recordsEnd := size - FooterSize
		probeBuf := make([]byte, maxHeaderSize)
		n, _ := r.ReadAt(probeBuf, HeaderSize)
		rec, headerLen, err := peekRecordHeader(probeBuf[:n])
		if err != nil {
			return idx, nil // malformed single-record header: nothing to index
		}
		totalLen := int64(headerLen) + int64(rec.KeySize) + int64(rec.ValueSizeDisk)
		if HeaderSize+totalLen > recordsEnd {
			return idx, nil
		}
		keyBuf := make([]byte, rec.KeySize)
		if _, err := r.ReadAt(keyBuf, HeaderSize+int64(headerLen)); err != nil {
			return idx, nil
		}
		hash := KeyHash(keyBuf)
		idx.Locations[hash] = append(idx.Locations[hash], HeaderSize)
		return idx, nil
	}

	recordsEnd := size - FooterSize
	codec := NewRecordCodec()
	offset := int64(HeaderSize)

	for offset < recordsEnd {
		probeLen := int64(maxHeaderSize)
		if recordsEnd-offset < probeLen {
			probeLen = recordsEnd - offset
		}
		probe := make([]byte, probeLen)
		n, err := r.ReadAt(probe, offset)
		if err != nil && err != io.EOF {
			break
		}
		probe = probe[:n]

		rec, headerLen, err := peekRecordHeader(probe)
		if err != nil {
			break // malformed header: treat as truncation, stop scanning this file
		}

		totalLen := int64(headerLen) + int64(rec.KeySize) + int64(rec.ValueSizeDisk)
		if offset+totalLen > recordsEnd {
			break // record would run past the footer: truncated write, stop
		}

		full := make([]byte, totalLen)
		n, err = r.ReadAt(full, offset)
		if (err != nil && err != io.EOF) || int64(n) < totalLen {
			break // short read mid-record: truncated, stop
		}

		decoded, _, err := codec.decodeAt(full)
		if err != nil {
			break
		}
		if err := decoded.Validate(); err != nil {
			// CRC failure: skip this one record and keep scanning.
			offset += totalLen
			continue
		}

		hash := KeyHash(decoded.Key)
		idx.Locations[hash] = append(idx.Locations[hash], uint32(offset))
		offset += totalLen
	}

	return idx, nil
}

// ReadRecordAt reads and decodes the single record starting at offset within
// a file of the given total size, reachable through r. It is the random-access
// counterpart to LoadFile's sequential scan, used by the Storage Engine to
// resolve a Location into a record. If verify is true the record's CRC32 is
// checked before it is returned.
func ReadRecordAt(r io.ReaderAt, size int64, offset int64, verify bool) (*Record, error) {
	if offset < 0 || offset >= size {
		return nil, errors.Wrap(ErrInvalidArgument, "offset out of range")
	}

	probeLen := int64(maxHeaderSize)
	if size-offset < probeLen {
		probeLen = size - offset
	}
	probe := make([]byte, probeLen)
	n, err := r.ReadAt(probe, offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(ErrIOError, "reading record header")
	}
	probe = probe[:n]

	rec, headerLen, err := peekRecordHeader(probe)
	if err != nil {
		return nil, err
	}

	totalLen := int64(headerLen) + int64(rec.KeySize) + int64(rec.ValueSizeDisk)
	if offset+totalLen > size {
		return nil, errors.Wrap(ErrCorruption, "record runs past end of file")
	}

	full := make([]byte, totalLen)
	if n, err := r.ReadAt(full, offset); (err != nil && err != io.EOF) || int64(n) < totalLen {
		return nil, errors.Wrap(ErrIOError, "reading record body")
	}

	codec := NewRecordCodec()
	decoded, _, err := codec.decodeAt(full)
	if err != nil {
		return nil, err
	}
	if verify {
		if err := decoded.Validate(); err != nil {
			return nil, err
		}
	}
	return decoded, nil
}
