package store

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/hstabledb/pkg/codec"
)

// The storage core shares one error-kind vocabulary across packages:
// codec.ErrDone, codec.ErrCorruption, codec.ErrInvalidArgument, and
// codec.ErrIOError are reused as-is; ErrNotFound is the one kind that only
// makes sense at the engine's point-lookup boundary.
var (
	// ErrNotFound is returned when a key is absent from the index, or when
	// its live location resolves to a tombstone.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed is returned by engine/iterator operations invoked after
	// Close.
	ErrClosed = errors.New("store: closed")
)

// Re-exported for callers that only import pkg/store.
var (
	ErrDone            = codec.ErrDone
	ErrCorruption      = codec.ErrCorruption
	ErrInvalidArgument = codec.ErrInvalidArgument
	ErrIOError         = codec.ErrIOError
)
