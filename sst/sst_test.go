package sst

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Priyanshu23/lsmkv/memtable"
)

func sampleBatch() []memtable.Record {
	return []memtable.Record{
		{Key: 1, Value: []byte("alpha")},
		{Key: 5, Value: []byte("bravo-charlie")},
		{Key: 9, Value: []byte("d")},
		{Key: 20, Value: []byte("echo-foxtrot-golf")},
	}
}

func TestBuildSummaryComputesHeaderBounds(t *testing.T) {
	batch := sampleBatch()
	summary := BuildSummary(42, batch, 256)

	require.Equal(t, uint64(42), summary.Header.Timestamp)
	require.Equal(t, uint64(len(batch)), summary.Header.Length)
	require.Equal(t, uint64(1), summary.Header.MinKey)
	require.Equal(t, uint64(20), summary.Header.MaxKey)
}

func TestWriteFileAndReadSummaryRoundTrip(t *testing.T) {
	batch := sampleBatch()
	summary := BuildSummary(7, batch, 256)

	path := filepath.Join(t.TempDir(), summary.Header.Filename())
	require.NoError(t, WriteFile(path, summary, batch))

	restored, err := ReadSummary(path, 256)
	require.NoError(t, err)
	require.Equal(t, summary.Header, restored.Header)
	require.Equal(t, summary.Index, restored.Index)
	require.Equal(t, summary.Filter.Bytes(), restored.Filter.Bytes())
}

func TestReadValueAtDereferencesEachPosition(t *testing.T) {
	batch := sampleBatch()
	summary := BuildSummary(1, batch, 256)

	path := filepath.Join(t.TempDir(), summary.Header.Filename())
	require.NoError(t, WriteFile(path, summary, batch))

	for i, rec := range batch {
		idx, ok := summary.Find(rec.Key)
		require.True(t, ok)
		require.Equal(t, i, idx)

		got, err := ReadValueAt(path, 256, summary.Header.Length, idx)
		require.NoError(t, err)
		require.Equal(t, rec.Value, got)
	}
}

func TestReadValuesReturnsAllInPositionalOrder(t *testing.T) {
	batch := sampleBatch()
	summary := BuildSummary(1, batch, 256)

	path := filepath.Join(t.TempDir(), summary.Header.Filename())
	require.NoError(t, WriteFile(path, summary, batch))

	values, err := ReadValues(path, 256, summary.Header.Length)
	require.NoError(t, err)
	require.Len(t, values, len(batch))
	for i, rec := range batch {
		require.Equal(t, rec.Value, values[i])
	}
}

func TestSummaryNeverFalseNegative(t *testing.T) {
	batch := sampleBatch()
	summary := BuildSummary(1, batch, 64)

	for _, rec := range batch {
		require.True(t, summary.Contains(rec.Key))
		_, ok := summary.Find(rec.Key)
		require.True(t, ok)
	}
	_, ok := summary.Find(999)
	require.False(t, ok)
}

func TestBuildSummaryClampsBloomSize(t *testing.T) {
	summary := BuildSummary(1, sampleBatch(), 1<<20)
	require.Equal(t, 1<<16, summary.Filter.Size())
}

func TestSingleEntryRunLastValueUsesFileSize(t *testing.T) {
	batch := []memtable.Record{{Key: 3, Value: []byte("solo")}}
	summary := BuildSummary(1, batch, 32)

	path := filepath.Join(t.TempDir(), summary.Header.Filename())
	require.NoError(t, WriteFile(path, summary, batch))

	got, err := ReadValueAt(path, 32, 1, 0)
	require.NoError(t, err)
	require.Equal(t, batch[0].Value, got)
}
