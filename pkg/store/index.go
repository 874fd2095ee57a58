package store

import "sync"

// GlobalIndex is the concurrent key-hash → location-bag map: single-writer,
// many-reader, with each key-hash's location list kept in file-id-monotone
// order so the live (maximum file-id) location is always the last element —
// a constant-time probe.
//
// Each key-hash holds a bag of locations spanning every file that has ever
// mentioned it, rather than a single slot, since a key can be rewritten
// across many sealed files over its lifetime.
type GlobalIndex struct {
	mu      sync.RWMutex
	entries map[uint64][]Location
}

// NewGlobalIndex creates an empty index.
func NewGlobalIndex() *GlobalIndex {
	return &GlobalIndex{entries: make(map[uint64][]Location)}
}

// PutBulk merges every (keyHash → offsets) pair discovered when a file of
// fileID was loaded, in ascending-offset order, preserving the global
// monotone-by-file-id ordering as long as fileID is greater than any
// file-id already merged — true for every file the engine discovers, since
// file-ids are assigned in increasing order and the engine indexes files
// as it discovers them.
func (idx *GlobalIndex) PutBulk(fileID uint32, locationsByHash map[uint64][]uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for hash, offsets := range locationsByHash {
		for _, off := range offsets {
			idx.entries[hash] = append(idx.entries[hash], NewSealedLocation(fileID, off))
		}
	}
}

// Locations returns the full location bag for a key-hash, ordered oldest
// (smallest file-id) first, newest (live) last.
func (idx *GlobalIndex) Locations(keyHash uint64) ([]Location, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	locs, ok := idx.entries[keyHash]
	return locs, ok
}

// RemoveFile drops every location belonging to fileID, called once
// compaction (external) has removed that file from the database directory.
func (idx *GlobalIndex) RemoveFile(fileID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for hash, locs := range idx.entries {
		kept := locs[:0]
		for _, l := range locs {
			if l.FileID() != fileID {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(idx.entries, hash)
		} else {
			idx.entries[hash] = kept
		}
	}
}

// Size returns the number of distinct key-hashes currently indexed.
func (idx *GlobalIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
