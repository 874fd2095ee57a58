package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/hstabledb/pkg/codec"
)

func drain(t *testing.T, it RecordIterator) []KeyValue {
	t.Helper()
	var out []KeyValue
	require.NoError(t, it.Begin())
	for it.IsValid() {
		v, err := it.GetValue()
		require.NoError(t, err)
		out = append(out, KeyValue{Key: append([]byte(nil), it.GetKey()...), Value: v})
		if !it.Next() {
			break
		}
	}
	return out
}

func TestIterator_YieldsLiveRecordsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir, prometheus.NewRegistry())
	defer e.Close()

	sealStandardFile(t, e, 1, nil, [][2]string{{"a", "1"}, {"b", "2"}})
	sealStandardFile(t, e, 2, nil, [][2]string{{"b", "2-new"}, {"c", "3"}})
	require.NoError(t, e.IndexFile(1))
	require.NoError(t, e.IndexFile(2))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	it := snap.NewIterator(DefaultReadOptions())
	defer it.Close()

	got := drain(t, it)
	want := map[string]string{"a": "1", "b": "2-new", "c": "3"}
	assert.Len(t, got, 3)
	for _, kv := range got {
		assert.Equal(t, want[string(kv.Key)], string(kv.Value))
	}
}

func TestIterator_SkipsTombstonedKeys(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir, prometheus.NewRegistry())
	defer e.Close()

	sealStandardFile(t, e, 1, nil, [][2]string{{"a", "1"}, {"b", "2"}})
	w := NewSegmentWriter(2, nil)
	_, err := w.AppendTombstone([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, w.Seal(e.GetFilepath(2)))

	require.NoError(t, e.IndexFile(1))
	require.NoError(t, e.IndexFile(2))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	it := snap.NewIterator(DefaultReadOptions())
	defer it.Close()

	got := drain(t, it)
	assert.Len(t, got, 1)
	assert.Equal(t, "a", string(got[0].Key))
}

func TestIterator_EmptySnapshotYieldsNothing(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir, prometheus.NewRegistry())
	defer e.Close()

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	it := snap.NewIterator(DefaultReadOptions())
	require.NoError(t, it.Begin())
	assert.False(t, it.IsValid())
}

func TestIterator_ReassemblesCompressedValue(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir, prometheus.NewRegistry())
	e.SetCompressor(codec.SnappyCompressor{})
	defer e.Close()

	sealStandardFile(t, e, 1, codec.SnappyCompressor{}, [][2]string{
		{"k", "some moderately compressible payload payload payload"},
	})
	require.NoError(t, e.IndexFile(1))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	it := snap.NewIterator(DefaultReadOptions())
	require.NoError(t, it.Begin())
	require.True(t, it.IsValid())

	v, err := it.GetValue()
	require.NoError(t, err)
	assert.Equal(t, "some moderately compressible payload payload payload", string(v))
}
