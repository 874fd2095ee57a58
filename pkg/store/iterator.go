package store

import (
	"sort"
	"sync"

	"github.com/ssargent/hstabledb/pkg/codec"
)

// iterState names the Read Iterator's state machine positions, transcribed
// from kingdb's BasicIterator (interface/iterator.h): before Begin, about to
// open the next candidate file, scanning a loaded file's locations, or past
// the end / unrecoverable.
type iterState int

const (
	iterInit iterState = iota
	iterFileLoading
	iterInFile
	iterInvalid
)

// hsIterator is the Read Iterator: it yields every live (key, value) pair
// reachable from a snapshot's frozen file-id list, in ascending file-id then
// ascending physical-offset order, filtering out records superseded by a
// later write or removed by the same key's tombstone.
type hsIterator struct {
	engine   *Engine
	snapshot *Snapshot
	opts     ReadOptions

	mu    sync.Mutex
	state iterState

	indexFile int
	indexLoc  int
	locations []uint32

	curKey []byte
	curRec *codec.Record
	curLoc Location
}

func newHSIterator(e *Engine, s *Snapshot, opts ReadOptions) *hsIterator {
	return &hsIterator{engine: e, snapshot: s, opts: opts, state: iterInit}
}

// Begin primes the first valid position.
func (it *hsIterator) Begin() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.indexFile = 0
	it.indexLoc = 0
	it.locations = nil
	it.state = iterFileLoading
	it.advanceLocked()
	return nil
}

// IsValid reports whether the iterator currently holds a record.
func (it *hsIterator) IsValid() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state == iterInFile && it.curKey != nil
}

// Next advances to the next live record.
func (it *hsIterator) Next() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.curKey, it.curRec = nil, nil
	it.advanceLocked()
	return it.state == iterInFile && it.curKey != nil
}

// GetKey returns the key of the currently held record.
func (it *hsIterator) GetKey() []byte {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.curKey
}

// GetValue reassembles and returns the currently held record's value,
// transparently decompressing it if the record is compressed or multipart.
func (it *hsIterator) GetValue() ([]byte, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.curRec == nil {
		return nil, ErrInvalidArgument
	}
	return it.engine.materializeValue(it.curRec)
}

// GetMultipartValue exposes the currently held record's raw multipart
// stream directly, for callers that want to drain it part by part instead
// of materializing the whole value at once.
func (it *hsIterator) GetMultipartValue() (*codec.MultipartReader, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.curRec == nil {
		return nil, ErrInvalidArgument
	}
	return codec.NewMultipartReader(it.engine.compressorOrDefault(), it.curRec.Value), nil
}

// Close releases the iterator's snapshot pin. Safe to call more than once.
func (it *hsIterator) Close() error {
	it.mu.Lock()
	it.state = iterInvalid
	it.mu.Unlock()
	it.snapshot.Release()
	return nil
}

// advanceLocked drives the state machine forward until it lands on a live
// record (state becomes InFile with curKey set) or Invalid. Caller must
// hold it.mu.
func (it *hsIterator) advanceLocked() {
	for {
		switch it.state {
		case iterFileLoading:
			fileIDs := it.snapshot.FileIDs()
			if it.indexFile >= len(fileIDs) {
				it.state = iterInvalid
				return
			}

			fileID := fileIDs[it.indexFile]
			locs, err := it.engine.fileOffsets(fileID)
			if err != nil {
				it.engine.metrics.recordIteratorSkip("file_unreadable")
				it.indexFile++
				continue // stay in FileLoading, try the next file
			}

			it.locations = locs
			it.indexLoc = 0
			it.engine.metrics.recordIteratorScan()
			it.state = iterInFile

		case iterInFile:
			if it.indexLoc >= len(it.locations) {
				it.indexFile++
				it.state = iterFileLoading
				continue
			}

			fileID := it.snapshot.FileIDs()[it.indexFile]
			offset := it.locations[it.indexLoc]
			it.indexLoc++
			loc := NewSealedLocation(fileID, offset)

			rec, err := it.engine.readRecordAt(it.opts, loc)
			if err != nil {
				it.engine.metrics.recordIteratorSkip("unreadable_entry")
				continue // next location, same file
			}

			_, liveAt, err := it.engine.resolveLive(it.opts, rec.Key)
			if err != nil {
				// Not live: this key's newest write is a tombstone, or every
				// candidate for its hash failed to decode. Either way this
				// location isn't worth yielding; move on to the next one in
				// the same file.
				it.engine.metrics.recordIteratorSkip("not_live")
				continue
			}
			if liveAt != loc {
				it.engine.metrics.recordIteratorSkip("superseded")
				continue // overwritten by a later record: not live
			}

			it.curKey = rec.Key
			it.curRec = rec
			it.curLoc = loc
			return

		default:
			return
		}
	}
}

// fileOffsets scans fileID fresh (independent of the merged global index)
// and returns every record's physical offset in ascending order, per the
// iterator's per-file ordering contract.
func (e *Engine) fileOffsets(fileID uint32) ([]uint32, error) {
	h, err := e.open(fileID)
	if err != nil {
		return nil, err
	}

	fi, err := codec.LoadFile(h.ra, h.size, fileID)
	if err != nil {
		return nil, err
	}

	offsets := make([]uint32, 0, len(fi.Locations))
	for _, offs := range fi.Locations {
		offsets = append(offsets, offs...)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}
