package codec

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// streamFrameHeaderSize is the 8-byte frame header: compressed_size_u32
// (including this header) || uncompressed_size_u32, little-endian.
const streamFrameHeaderSize = 8

// minEncodeSize is the smallest source buffer Encode will actually frame;
// below this the framing overhead would exceed the payload, so Encode
// returns an empty result and leaves coalescing such fragments to the
// caller.
const minEncodeSize = 8

// StreamCodec frames buffers into, and decodes them back out of, a
// sequence of length-prefixed compressed blocks. It is the Go transcription
// of kingdb's CompressorLZ4, generalized to a pluggable Compressor.
//
// A StreamCodec is not safe for concurrent use: Encode and Decode each
// advance an internal cursor that must be driven by a single goroutine at
// a time, mirroring the per-record ownership the storage engine gives it.
type StreamCodec struct {
	compressor Compressor

	bytesWrittenCompressed uint64
	bytesReadCompressed    uint64
}

// NewStreamCodec creates a codec backed by the given compressor.
func NewStreamCodec(c Compressor) *StreamCodec {
	return &StreamCodec{compressor: c}
}

// BytesWrittenCompressed returns the total number of compressed bytes
// produced by Encode calls since the last Reset.
func (s *StreamCodec) BytesWrittenCompressed() uint64 { return s.bytesWrittenCompressed }

// BytesReadCompressed returns the current decode cursor, i.e. the number of
// compressed bytes consumed by Decode calls since the last Reset.
func (s *StreamCodec) BytesReadCompressed() uint64 { return s.bytesReadCompressed }

// Reset rewinds both counters to zero. It is the only way to rewind either
// cursor.
func (s *StreamCodec) Reset() {
	s.bytesWrittenCompressed = 0
	s.bytesReadCompressed = 0
}

// Encode compresses src into a single framed block and appends it to the
// running compressed-bytes counter. Buffers under 8 bytes produce an empty
// result without advancing the counter.
func (s *StreamCodec) Encode(src []byte) ([]byte, error) {
	if len(src) < minEncodeSize {
		return nil, nil
	}
	if len(src) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrInvalidArgument, "source size %d exceeds 32-bit frame limit", len(src))
	}

	compressed, err := s.compressor.Compress(make([]byte, 0, streamFrameHeaderSize+s.compressor.Bound(len(src))), src)
	if err != nil {
		return nil, err
	}

	blockSize := streamFrameHeaderSize + len(compressed)
	out := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(blockSize))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(src)))
	copy(out[streamFrameHeaderSize:], compressed)

	s.bytesWrittenCompressed += uint64(blockSize)
	return out, nil
}

// Decode decompresses the next frame starting at the current cursor within
// src, a buffer holding one or more concatenated frames produced by Encode.
// It returns ErrDone once the cursor reaches len(src).
func (s *StreamCodec) Decode(src []byte) ([]byte, error) {
	total := uint64(len(src))
	if s.bytesReadCompressed == total {
		return nil, ErrDone
	}
	if s.bytesReadCompressed > total {
		return nil, errors.Wrap(ErrCorruption, "decode cursor past end of buffer")
	}

	cursor := s.bytesReadCompressed
	if cursor+streamFrameHeaderSize > total {
		return nil, errors.Wrap(ErrCorruption, "truncated frame header")
	}

	blockSize := binary.LittleEndian.Uint32(src[cursor : cursor+4])
	uncompressedSize := binary.LittleEndian.Uint32(src[cursor+4 : cursor+8])

	if blockSize < streamFrameHeaderSize {
		return nil, errors.Wrap(ErrCorruption, "frame block size smaller than header")
	}
	if cursor+uint64(blockSize) > total {
		return nil, errors.Wrap(ErrCorruption, "frame runs past end of buffer")
	}

	payload := src[cursor+streamFrameHeaderSize : cursor+uint64(blockSize)]

	out, err := s.compressor.Decompress(payload, int(uncompressedSize))
	if err != nil {
		return nil, errors.Wrap(ErrIOError, "decompression failed")
	}

	s.bytesReadCompressed = cursor + uint64(blockSize)
	return out, nil
}
