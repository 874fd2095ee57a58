package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/hstabledb/pkg/codec"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e := NewEngine(dir, prometheus.NewRegistry())
	t.Cleanup(func() { e.Close() })
	return e, dir
}

func sealStandardFile(t *testing.T, e *Engine, fileID uint32, compressor codec.Compressor, kvs [][2]string) {
	t.Helper()
	w := NewSegmentWriter(fileID, compressor)
	for _, kv := range kvs {
		_, err := w.Append([]byte(kv[0]), []byte(kv[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Seal(e.GetFilepath(fileID)))
}

func TestEngine_GetReturnsValueAfterIndexing(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{
		{"alpha", "one"},
		{"beta", "two"},
	})
	require.NoError(t, e.IndexFile(1))

	v, loc, err := e.Get(DefaultReadOptions(), []byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(v))
	assert.EqualValues(t, 1, loc.FileID())

	_, _, err = e.Get(DefaultReadOptions(), []byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_GetResolvesLiveAcrossFiles(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{{"k", "old"}})
	sealStandardFile(t, e, 2, nil, [][2]string{{"k", "new"}})
	require.NoError(t, e.IndexFile(1))
	require.NoError(t, e.IndexFile(2))

	v, loc, err := e.Get(DefaultReadOptions(), []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))
	assert.EqualValues(t, 2, loc.FileID())
}

func TestEngine_TombstoneShadowsOlderValue(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{{"k", "v"}})

	w := NewSegmentWriter(2, nil)
	_, err := w.AppendTombstone([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, w.Seal(e.GetFilepath(2)))

	require.NoError(t, e.IndexFile(1))
	require.NoError(t, e.IndexFile(2))

	_, _, err = e.Get(DefaultReadOptions(), []byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_GetWithSnappyCompressedValue(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetCompressor(codec.SnappyCompressor{})
	sealStandardFile(t, e, 1, codec.SnappyCompressor{}, [][2]string{
		{"k", "a reasonably compressible value string repeated repeated repeated"},
	})
	require.NoError(t, e.IndexFile(1))

	v, _, err := e.Get(DefaultReadOptions(), []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "a reasonably compressible value string repeated repeated repeated", string(v))
}

func TestEngine_SnapshotPinsFilesAgainstRemoval(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{{"k", "v"}})
	require.NoError(t, e.IndexFile(1))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, snap.FileIDs())

	err = e.RemoveFile(1)
	assert.Error(t, err)

	snap.Release()
	assert.NoError(t, e.RemoveFile(1))

	_, _, err = e.Get(DefaultReadOptions(), []byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ClosedEngineRejectsOperations(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{{"k", "v"}})
	require.NoError(t, e.Close())

	_, err := e.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
}

// TestEngine_GetResolvesHashCollision exercises resolveLive's collision
// guard: a 64-bit xxhash collision between two real keys isn't something a
// test can brute-force, so this reaches into the index (same package) and
// appends k2's real location to k1's real bucket, simulating what a true
// collision would produce — two entries in one bucket belonging to
// different keys, with the wrong one last (the position resolveLive checks
// first). Get(k1) must still return k1's value, not k2's.
func TestEngine_GetResolvesHashCollision(t *testing.T) {
	e, _ := newTestEngine(t)
	sealStandardFile(t, e, 1, nil, [][2]string{{"k1", "v1"}})
	sealStandardFile(t, e, 2, nil, [][2]string{{"k2", "v2"}})
	require.NoError(t, e.IndexFile(1))
	require.NoError(t, e.IndexFile(2))

	k1Hash := codec.KeyHash([]byte("k1"))
	k2Locs, ok := e.index.Locations(codec.KeyHash([]byte("k2")))
	require.True(t, ok)
	require.Len(t, k2Locs, 1)

	e.index.PutBulk(k2Locs[0].FileID(), map[uint64][]uint32{k1Hash: {k2Locs[0].Offset()}})

	bucket, ok := e.index.Locations(k1Hash)
	require.True(t, ok)
	require.Len(t, bucket, 2, "bucket must hold both k1's real entry and the injected k2 collision")

	v1, _, err := e.Get(DefaultReadOptions(), []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v1))

	v2, _, err := e.Get(DefaultReadOptions(), []byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v2))
}
