package store

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/hstabledb/pkg/codec"
)

// multipartThreshold is the value size above which SegmentWriter frames a
// compressed value as a multipart stream (several StreamCodec frames)
// rather than a single one. Values below it compress in one shot.
const multipartThreshold = 1 << 20 // 1 MiB

// SegmentWriter performs the mechanical act of appending records to an
// unsealed in-memory segment and sealing it into an immutable HSTable file.
// It stands in for the business logic of an external write path (retries,
// read-modify-write semantics), which stays out of the core's scope; this
// type only needs to produce a conforming on-disk file.
type SegmentWriter struct {
	fileID     uint32
	compressor codec.Compressor
	codec      *codec.RecordCodec

	buf     []byte
	offsets []uint32
}

// NewSegmentWriter creates a writer for a standard (multi-record) segment
// identified by fileID. compressor may be nil, in which case records are
// stored uncompressed.
func NewSegmentWriter(fileID uint32, compressor codec.Compressor) *SegmentWriter {
	return &SegmentWriter{
		fileID:     fileID,
		compressor: compressor,
		codec:      codec.NewRecordCodec(),
		buf:        codec.EncodeHeader(codec.Header{Version: codec.FormatVersion, FileID: fileID}),
	}
}

// Append encodes and buffers a (key, value) record, compressing value if
// the writer was given a compressor and value is at least 8 bytes long
// (shorter values are stored uncompressed). It returns the offset the
// record will occupy once sealed.
func (w *SegmentWriter) Append(key, value []byte) (uint32, error) {
	return w.appendWithFlags(0, key, value)
}

// AppendTombstone buffers a deletion marker for key.
func (w *SegmentWriter) AppendTombstone(key []byte) (uint32, error) {
	return w.appendWithFlags(codec.FlagTombstone, key, nil)
}

func (w *SegmentWriter) appendWithFlags(extraFlags byte, key, value []byte) (uint32, error) {
	if len(key) > math.MaxUint32 || len(value) > math.MaxUint32 {
		return 0, errors.Wrap(codec.ErrInvalidArgument, "key or value exceeds 32-bit size limit")
	}

	flags := extraFlags
	onDisk := value
	uncompressedSize := uint32(len(value))

	// StreamCodec.Encode frames nothing for a buffer under 8 bytes.
	if w.compressor != nil && len(value) >= 8 {
		compressed, err := w.compress(value)
		if err != nil {
			return 0, err
		}
		flags |= codec.FlagCompressed
		if len(value) > multipartThreshold {
			flags |= codec.FlagMultipart
		}
		onDisk = compressed
	}

	encoded, err := w.codec.Encode(flags, key, onDisk, uncompressedSize)
	if err != nil {
		return 0, err
	}

	offset := uint32(len(w.buf))
	w.buf = append(w.buf, encoded...)
	w.offsets = append(w.offsets, offset)
	return offset, nil
}

// compress drives a fresh StreamCodec over value, chunking it into multiple
// frames once it exceeds multipartThreshold, single-framing it otherwise.
func (w *SegmentWriter) compress(value []byte) ([]byte, error) {
	sc := codec.NewStreamCodec(w.compressor)
	if len(value) <= multipartThreshold {
		return sc.Encode(value)
	}

	var out []byte
	for off := 0; off < len(value); {
		end := off + multipartThreshold
		if len(value)-end < 8 {
			end = len(value) // fold a tail Encode would not frame into this chunk
		}
		frame, err := sc.Encode(value[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
		off = end
	}
	return out, nil
}

// NumRecords returns the number of records appended so far.
func (w *SegmentWriter) NumRecords() int { return len(w.offsets) }

// Seal finalizes the segment: appends the footer and writes the complete
// file to path. The header is the one the writer was built with: standard
// for NewSegmentWriter, large for SealLarge.
func (w *SegmentWriter) Seal(path string) error {
	footer := codec.Footer{
		NumRecords:       uint32(len(w.offsets)),
		OffsetArrayStart: uint32(len(w.buf)),
		FileSize:         uint64(len(w.buf) + codec.FooterSize),
	}
	w.buf = append(w.buf, codec.EncodeFooter(footer)...)
	return os.WriteFile(path, w.buf, 0o644)
}

// SealLarge writes a single-record "large file" segment: a header with the
// large flag set, one record appended through the usual Append path, and the
// footer. Used for values large enough that they get their own file rather
// than sharing a standard segment.
func SealLarge(path string, fileID uint32, key, value []byte, compressor codec.Compressor) error {
	w := NewSegmentWriter(fileID, compressor)
	hdr := codec.EncodeHeader(codec.Header{Version: codec.FormatVersion, FileID: fileID, Flags: codec.HeaderFlagLarge})
	w.buf = hdr

	if _, err := w.Append(key, value); err != nil {
		return err
	}
	return w.Seal(path)
}
