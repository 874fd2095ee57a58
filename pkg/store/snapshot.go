package store

import (
	"sync"

	"github.com/segmentio/ksuid"
)

// Snapshot is a point-in-time, consistent view over the files an Engine had
// indexed at the moment it was taken. It owns no data itself; it pins a
// frozen list of file-ids against deletion and lends that list to Read
// Iterators built from it, so a long-running scan never observes a file
// disappear mid-iteration even if compaction runs concurrently.
type Snapshot struct {
	id      ksuid.KSUID
	engine  *Engine
	fileIDs []uint32

	once sync.Once
}

// ID returns the snapshot's opaque handle, stable for its lifetime.
func (s *Snapshot) ID() string { return s.id.String() }

// FileIDs returns the frozen, ascending list of file-ids this snapshot
// pins. Callers must not mutate the returned slice.
func (s *Snapshot) FileIDs() []uint32 { return s.fileIDs }

// NewIterator builds a Read Iterator scoped to this snapshot's file list.
func (s *Snapshot) NewIterator(opts ReadOptions) RecordIterator {
	return newHSIterator(s.engine, s, opts)
}

// Release drops this snapshot's pins, allowing compaction to reclaim any of
// its files once no other snapshot also holds them. Safe to call more than
// once; only the first call has effect.
func (s *Snapshot) Release() {
	s.once.Do(func() {
		s.engine.release(s.fileIDs)
	})
}
