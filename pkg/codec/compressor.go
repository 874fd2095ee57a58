package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor is the block-compression backend the Compression Stream Codec
// drives. Implementations compress/decompress single buffers; the codec in
// stream.go owns framing, sizing, and the resumable cursors.
type Compressor interface {
	// Name identifies the backend, e.g. for logging/metrics labels.
	Name() string
	// Bound returns the worst-case compressed size for a plaintext buffer
	// of srcSize bytes.
	Bound(srcSize int) int
	// Compress appends the compressed form of src to dst and returns the
	// extended slice.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress decompresses src into a buffer of exactly uncompressedSize
	// bytes, refusing to write past that length.
	Decompress(src []byte, uncompressedSize int) ([]byte, error)
}

// SnappyCompressor implements Compressor with github.com/golang/snappy.
type SnappyCompressor struct{}

func (SnappyCompressor) Name() string { return "snappy" }

func (SnappyCompressor) Bound(srcSize int) int { return snappy.MaxEncodedLen(srcSize) }

func (SnappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	bound := snappy.MaxEncodedLen(len(src))
	buf := make([]byte, bound)
	out := snappy.Encode(buf, src)
	return append(dst, out...), nil
}

func (SnappyCompressor) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, errors.Wrap(ErrIOError, "snappy: decode failed")
	}
	if len(out) != uncompressedSize {
		return nil, errors.Wrap(ErrIOError, "snappy: decoded size mismatch")
	}
	return out, nil
}

// ZstdCompressor implements Compressor with github.com/klauspost/compress/zstd.
// Encoders/decoders are created per call; this keeps the type free of
// goroutine-affine state so a single ZstdCompressor can back many
// concurrent stream codecs, at the cost of not reusing warmed-up encoder
// and decoder state across calls.
type ZstdCompressor struct {
	Level zstd.EncoderLevel
}

func (ZstdCompressor) Name() string { return "zstd" }

func (ZstdCompressor) Bound(srcSize int) int {
	// zstd frames are rarely larger than source + ~64 bytes of overhead for
	// incompressible input; leave generous headroom since Bound only sizes
	// a scratch buffer, never the final record.
	return srcSize + srcSize/2 + 256
}

func (z ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(ErrIOError, "zstd: new encoder failed")
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst), nil
}

func (ZstdCompressor) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(ErrIOError, "zstd: new decoder failed")
	}
	defer dec.Close()

	dst := make([]byte, 0, uncompressedSize)
	out, err := dec.DecodeAll(src, dst)
	if err != nil {
		return nil, errors.Wrap(ErrIOError, "zstd: decode failed")
	}
	if len(out) != uncompressedSize {
		return nil, errors.Wrap(ErrIOError, "zstd: decoded size mismatch")
	}
	return out, nil
}

// CompressorByName resolves a config-level compressor name to a backend.
// An empty name resolves to snappy, the default. An unknown name yields an
// error rather than silently falling back, since the chosen backend is part
// of a database's on-disk identity.
func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "", "snappy":
		return SnappyCompressor{}, nil
	case "zstd":
		return ZstdCompressor{}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown compressor %q", name)
	}
}
