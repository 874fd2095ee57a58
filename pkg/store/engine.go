package store

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"golang.org/x/exp/mmap"

	"github.com/ssargent/hstabledb/pkg/codec"
)

// fileHandle wraps one sealed HSTable file's memory mapping. pins tracks how
// many live Snapshots currently protect this file from deletion; it gates
// compaction rather than acting as a per-read counter (a read never
// outlives the call that performed it, so there is nothing for it to hold
// open beyond the mapping itself).
type fileHandle struct {
	fileID uint32
	ra     *mmap.ReaderAt
	size   int64
	pins   int
}

// Engine is the Storage Engine: a read-only facade over a directory of
// sealed HSTable files, indexed and snapshot-isolated. It owns no write
// path; files are expected to arrive already sealed by an external writer
// (see pkg/store/segwriter.go) and are only ever opened, indexed, and read
// here.
type Engine struct {
	dataDir    string
	index      *GlobalIndex
	metrics    *Metrics
	compressor codec.Compressor

	mu      sync.Mutex
	handles map[uint32]*fileHandle
	closed  bool
}

// NewEngine opens an Engine rooted at dataDir. It does not scan the
// directory itself; callers add files as they are discovered (e.g. at
// startup, or as an external writer seals new ones) via IndexFile.
func NewEngine(dataDir string, reg prometheus.Registerer) *Engine {
	return &Engine{
		dataDir: dataDir,
		index:   NewGlobalIndex(),
		metrics: NewMetrics(reg),
		handles: make(map[uint32]*fileHandle),
	}
}

// GetFilepath returns the on-disk path of the sealed file identified by
// fileID, using the database directory's 10-digit zero-padded naming
// convention.
func (e *Engine) GetFilepath(fileID uint32) string {
	return filepath.Join(e.dataDir, fmt.Sprintf("%010d.kdb", fileID))
}

// IndexFile opens fileID (if not already mapped), scans it with
// codec.LoadFile, and merges the discovered key-hash locations into the
// global index. Called once per file as the engine discovers it, in
// ascending file-id order, to preserve GlobalIndex's monotone ordering
// invariant. It is ScanFile and MergeFile run back to back; callers that
// want to parallelize the scan across many files (the expensive, I/O-bound
// half) should call those two directly instead, merging in file-id order
// once every scan has finished.
func (e *Engine) IndexFile(fileID uint32) error {
	fi, err := e.ScanFile(fileID)
	if err != nil {
		return err
	}
	e.MergeFile(fi)
	return nil
}

// ScanFile opens fileID (if not already mapped) and scans it with
// codec.LoadFile, without touching the global index. Safe to call
// concurrently across distinct file-ids: each call only reads its own
// file's mapping.
func (e *Engine) ScanFile(fileID uint32) (*codec.FileIndex, error) {
	h, err := e.open(fileID)
	if err != nil {
		return nil, err
	}
	return codec.LoadFile(h.ra, h.size, fileID)
}

// MergeFile merges a previously scanned file's key-hash locations into the
// global index. Callers merging the results of several concurrent ScanFile
// calls must call MergeFile in ascending file-id order to preserve
// GlobalIndex's monotone ordering invariant.
func (e *Engine) MergeFile(fi *codec.FileIndex) {
	e.index.PutBulk(fi.FileID, fi.Locations)
}

// IndexedKeyCount returns the number of distinct key-hashes currently
// indexed, for startup diagnostics.
func (e *Engine) IndexedKeyCount() int {
	return e.index.Size()
}

// open returns the cached mmap handle for fileID, opening it on first use.
func (e *Engine) open(fileID uint32) (*fileHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if h, ok := e.handles[fileID]; ok {
		return h, nil
	}

	ra, err := mmap.Open(e.GetFilepath(fileID))
	if err != nil {
		return nil, errors.Wrapf(ErrIOError, "opening file %d: %v", fileID, err)
	}
	h := &fileHandle{fileID: fileID, ra: ra, size: int64(ra.Len())}
	e.handles[fileID] = h
	e.metrics.setOpenFileHandles(len(e.handles))
	return h, nil
}

// GetEntry resolves loc to its (key, value) pair by reading the record
// directly out of the file's mapping. The returned slices are freshly
// copied and safe to retain past the call.
func (e *Engine) GetEntry(opts ReadOptions, loc Location) (key, value []byte, err error) {
	rec, err := e.readRecordAt(opts, loc)
	if err != nil {
		return nil, nil, err
	}
	return rec.Key, rec.Value, nil
}

// readRecordAt is the shared primitive behind GetEntry, resolveLive's
// per-location probe, and the iterator's scan: open loc's file and decode
// the record sitting at its offset, without interpreting compression flags.
func (e *Engine) readRecordAt(opts ReadOptions, loc Location) (*codec.Record, error) {
	if !loc.IsSealed() {
		return nil, errors.Wrap(ErrInvalidArgument, "location is not sealed")
	}

	h, err := e.open(loc.FileID())
	if err != nil {
		return nil, err
	}

	return codec.ReadRecordAt(h.ra, h.size, int64(loc.Offset()), opts.VerifyChecksums)
}

// Get resolves key to its live value, walking the location bag from the
// highest file-id down until a non-tombstone match against the full key is
// found (guarding against key-hash collisions: the bag may hold entries for
// unrelated keys that hash the same).
func (e *Engine) Get(opts ReadOptions, key []byte) (value []byte, loc Location, err error) {
	start := time.Now()

	rec, loc, err := e.resolveLive(opts, key)
	if err != nil {
		e.metrics.recordGet("not_found", start)
		return nil, 0, err
	}

	v, err := e.materializeValue(rec)
	if err != nil {
		e.metrics.recordGet("error", start)
		return nil, 0, err
	}
	e.metrics.recordGet("ok", start)
	return v, loc, nil
}

// resolveLive walks key's location bag from the newest file-id down,
// returning the first entry whose stored bytes still decode, pass CRC per
// opts, and bear an exact (not just hash-equal) match on key. A tombstone
// at the live location reports ErrNotFound, matching Get's semantics; the
// iterator uses this same resolution to decide whether a candidate location
// is still live.
func (e *Engine) resolveLive(opts ReadOptions, key []byte) (*codec.Record, Location, error) {
	hash := codec.KeyHash(key)

	locs, ok := e.index.Locations(hash)
	if !ok {
		return nil, 0, ErrNotFound
	}

	for i := len(locs) - 1; i >= 0; i-- {
		candidate := locs[i]
		h, err := e.open(candidate.FileID())
		if err != nil {
			return nil, 0, err
		}

		rec, err := codec.ReadRecordAt(h.ra, h.size, int64(candidate.Offset()), opts.VerifyChecksums)
		if err != nil {
			continue // corrupt or stale entry at this location: try the next older one
		}
		if !bytes.Equal(rec.Key, key) {
			continue // hash collision with an unrelated key
		}
		if rec.IsTombstone() {
			return nil, 0, ErrNotFound
		}
		return rec, candidate, nil
	}

	return nil, 0, ErrNotFound
}

// materializeValue returns a record's logical value: the on-disk bytes
// as-is for a plain record, or the decompressed/reassembled bytes for a
// compressed or multipart one.
func (e *Engine) materializeValue(rec *codec.Record) ([]byte, error) {
	if !rec.IsCompressed() {
		return rec.Value, nil
	}
	// A compressed value is stored as StreamCodec frames: one frame for a
	// single-shot value, several for a multipart one. The compressor used is
	// not stored per-record; callers that enable compression are expected to
	// use one compressor for the lifetime of a database. See
	// Engine.SetCompressor.
	return codec.ReassembleValue(e.compressorOrDefault(), rec.Value, rec.ValueSizeUncompressed)
}

func (e *Engine) compressorOrDefault() codec.Compressor {
	if e.compressor != nil {
		return e.compressor
	}
	return codec.SnappyCompressor{}
}

// SetCompressor configures the compressor used to decompress compressed
// records. It must match whatever the segment writer used to produce them.
func (e *Engine) SetCompressor(c codec.Compressor) { e.compressor = c }

// Snapshot opens a point-in-time view over the files currently indexed,
// pinning each of them against deletion until Release is called. The
// returned Snapshot is the handle a Read Iterator is built from.
func (e *Engine) Snapshot() (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	fileIDs := make([]uint32, 0, len(e.handles))
	for id := range e.handles {
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for _, id := range fileIDs {
		e.handles[id].pins++
	}

	return &Snapshot{
		id:      ksuid.New(),
		engine:  e,
		fileIDs: fileIDs,
	}, nil
}

// release drops one pin from each file in fileIDs, called once by
// Snapshot.Release. It never closes the underlying mapping: with no LRU
// cache in scope, the engine keeps a file mapped for its own lifetime once
// opened, and pins only gate an external compactor's RemoveFile.
func (e *Engine) release(fileIDs []uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range fileIDs {
		if h, ok := e.handles[id]; ok && h.pins > 0 {
			h.pins--
		}
	}
}

// RemoveFile is called by an external compactor once it has physically
// unlinked fileID's data file. It refuses to drop the handle (and its
// index entries) while any snapshot still pins the file.
func (e *Engine) RemoveFile(fileID uint32) error {
	e.mu.Lock()
	h, ok := e.handles[fileID]
	if ok && h.pins > 0 {
		e.mu.Unlock()
		return errors.Wrapf(ErrInvalidArgument, "file %d is pinned by a live snapshot", fileID)
	}
	if ok {
		h.ra.Close()
		delete(e.handles, fileID)
		e.metrics.setOpenFileHandles(len(e.handles))
	}
	e.mu.Unlock()

	e.index.RemoveFile(fileID)
	return nil
}

// Close releases every open file mapping. The engine is unusable afterward.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for id, h := range e.handles {
		if err := h.ra.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.handles, id)
	}
	e.metrics.setOpenFileHandles(0)
	return firstErr
}
