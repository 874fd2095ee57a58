package codec

import "github.com/cockroachdb/errors"

// Sentinel error kinds shared across the storage core. Callers classify an
// error with errors.Is against these values; cockroachdb/errors preserves
// the original wrapped message and stack while still matching.
var (
	// ErrDone signals a stream or iterator is exhausted; not a failure.
	ErrDone = errors.New("codec: done")

	// ErrCorruption signals a fatal structural failure: bad magic, bad
	// version, or a CRC mismatch the caller cannot route around.
	ErrCorruption = errors.New("codec: corruption")

	// ErrInvalidArgument signals caller-side misuse, such as a key or value
	// that does not fit the format's 32-bit size fields.
	ErrInvalidArgument = errors.New("codec: invalid argument")

	// ErrIOError signals an OS-level failure: a failed mmap, stat, or a
	// decompressor that refused to produce output.
	ErrIOError = errors.New("codec: io error")
)
