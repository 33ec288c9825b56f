package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSmallEngine(t *testing.T) *Engine {
	t.Helper()
	return New(t.TempDir(), WithMaxSize(128), WithBloomFilterSize(64))
}

func TestBasicPutGetDelScan(t *testing.T) {
	e := newSmallEngine(t)

	require.NoError(t, e.Put(1, []byte("a")))
	require.NoError(t, e.Put(2, []byte("b")))

	require.Equal(t, []byte("a"), e.Get(1))
	require.Nil(t, e.Get(3))

	require.True(t, e.Del(2))
	require.Nil(t, e.Get(2))

	got := e.Scan(0, 10)
	require.Len(t, got, 1)
	require.Equal(t, uint64(1), got[0].Key)
	require.Equal(t, []byte("a"), got[0].Value)
}

func TestManyKeysForceFlushesAndSurviveReads(t *testing.T) {
	e := newSmallEngine(t)

	for k := uint64(1); k <= 1000; k++ {
		require.NoError(t, e.Put(k, []byte(fmt.Sprintf("v%d", k))))
	}
	for k := uint64(1); k <= 1000; k++ {
		require.Equal(t, []byte(fmt.Sprintf("v%d", k)), e.Get(k))
	}

	got := e.Scan(1, 1000)
	require.Len(t, got, 1000)
	for i, rec := range got {
		require.Equal(t, uint64(i+1), rec.Key)
	}
}

func TestOverwriteSurvivesFlush(t *testing.T) {
	e := newSmallEngine(t)

	require.NoError(t, e.Put(7, []byte("old")))
	require.NoError(t, e.Put(7, []byte("new")))
	require.Equal(t, []byte("new"), e.Get(7))

	for k := uint64(100); k < 200; k++ {
		require.NoError(t, e.Put(k, []byte("filler")))
	}
	require.Equal(t, []byte("new"), e.Get(7))
}

func TestTombstoneSurvivesFlush(t *testing.T) {
	e := newSmallEngine(t)

	require.NoError(t, e.Put(5, []byte("x")))
	require.True(t, e.Del(5))

	for k := uint64(100); k < 200; k++ {
		require.NoError(t, e.Put(k, []byte("filler")))
	}

	require.Nil(t, e.Get(5))
	got := e.Scan(0, 10)
	for _, rec := range got {
		require.NotEqual(t, uint64(5), rec.Key)
	}
}

func TestResetIsolatesUnflushedWrites(t *testing.T) {
	e := newSmallEngine(t)

	require.NoError(t, e.Put(9, []byte("z")))
	for k := uint64(100); k < 200; k++ {
		require.NoError(t, e.Put(k, []byte("filler")))
	}
	require.Equal(t, []byte("z"), e.Get(9))

	require.NoError(t, e.Put(10, []byte("unflushed")))
	e.Reset()

	require.Equal(t, []byte("z"), e.Get(9))
	require.Nil(t, e.Get(10))
}

func TestCrossLevelTimestampPrecedence(t *testing.T) {
	e := newSmallEngine(t)

	for k := uint64(0); k < 10; k++ {
		require.NoError(t, e.Put(k+200, []byte("filler-level1")))
	}
	require.NoError(t, e.Put(42, []byte("stale")))
	for k := uint64(0); k < 10; k++ {
		require.NoError(t, e.Put(k+300, []byte("filler-level1b")))
	}

	require.NoError(t, e.Put(42, []byte("fresh")))
	require.Equal(t, []byte("fresh"), e.Get(42))

	for k := uint64(0); k < 200; k++ {
		require.NoError(t, e.Put(k+1000, []byte("pressure")))
	}

	require.Equal(t, []byte("fresh"), e.Get(42))
}

func TestLevelBudgetHoldsAfterEveryPut(t *testing.T) {
	e := newSmallEngine(t)

	for k := uint64(0); k < 2000; k++ {
		require.NoError(t, e.Put(k, []byte(fmt.Sprintf("value-%d", k))))
		require.LessOrEqual(t, e.countAtLevel(0), maxFiles(0))
	}
}

func TestDeletingAbsentKeyReturnsFalse(t *testing.T) {
	e := newSmallEngine(t)
	require.False(t, e.Del(123))
}

func TestScanExcludesOutOfRangeKeys(t *testing.T) {
	e := newSmallEngine(t)
	for k := uint64(1); k <= 20; k++ {
		require.NoError(t, e.Put(k, []byte(fmt.Sprintf("v%d", k))))
	}

	got := e.Scan(5, 10)
	require.Len(t, got, 6)
	for _, rec := range got {
		require.GreaterOrEqual(t, rec.Key, uint64(5))
		require.LessOrEqual(t, rec.Key, uint64(10))
	}
}
