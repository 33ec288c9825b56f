package engine

import (
	"fmt"
	"os"

	"github.com/Priyanshu23/lsmkv/memtable"
	"github.com/Priyanshu23/lsmkv/rundir"
	"github.com/Priyanshu23/lsmkv/sst"
)

// ref is one key's positional reference into a run: which file it
// lives in, and where within that file's value region.
type ref struct {
	key       uint64
	level     int
	header    rundir.Header
	pos       int
	timestamp uint64
}

// pack builds the key-ordered reference sequence for one summary's
// index, keeping only entries whose key lies within [low, high].
func pack(level int, summary *sst.Summary, low, high uint64) []ref {
	var out []ref
	for i, e := range summary.Index {
		if e.Key >= low && e.Key <= high {
			out = append(out, ref{
				key: e.Key, level: level, header: summary.Header,
				pos: i, timestamp: summary.Header.Timestamp,
			})
		}
	}
	return out
}

// mergeSort performs a stable two-way merge of a and b in ascending
// key order. On a key collision, the reference with the higher
// timestamp is kept and both inputs advance.
func mergeSort(a, b []ref) []ref {
	out := make([]ref, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].key < b[j].key:
			out = append(out, a[i])
			i++
		case a[i].key > b[j].key:
			out = append(out, b[j])
			j++
		default:
			if a[i].timestamp > b[j].timestamp {
				out = append(out, a[i])
			} else {
				out = append(out, b[j])
			}
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// foldMerge reduces a sequence of already key-ordered packs to a
// single ordered stream by repeated pairwise merging — the rotating
// two-tape fold the reference machinery uses, expressed without needing
// to preallocate explicit tape slots since Go slices already amortize.
func foldMerge(packs [][]ref) []ref {
	if len(packs) == 0 {
		return nil
	}
	tape := packs[0]
	for _, next := range packs[1:] {
		tape = mergeSort(tape, next)
	}
	return tape
}

// sourceKey identifies a run by the (level, header) pair spec.md's scan
// and compaction passes cache file reads by.
type sourceKey struct {
	level  int
	header rundir.Header
}

// fileCache memoizes whole-run value reads across a single Scan or
// Compact call, and is released when that call returns.
type fileCache struct {
	e      *Engine
	values map[sourceKey][][]byte
}

func newFileCache(e *Engine) *fileCache {
	return &fileCache{e: e, values: make(map[sourceKey][][]byte)}
}

func (c *fileCache) valueAt(r ref) []byte {
	key := sourceKey{level: r.level, header: r.header}
	values, ok := c.values[key]
	if !ok {
		path := c.e.dir.FilePath(r.level, r.header)
		v, err := sst.ReadValues(path, c.e.bloomFilterSize, r.header.Length)
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine: IO-open %s: %v\n", path, err)
			v = nil
		}
		c.values[key] = v
		values = v
	}
	if values == nil || r.pos >= len(values) {
		return nil
	}
	return values[r.pos]
}

// deleteOnce removes the run backing (level, header) from disk the
// first time it is seen via this cache, mirroring the reference's
// "delete after first read" compaction policy. It is a no-op on later
// calls for the same (level, header).
func (c *fileCache) deleteOnce(deleted map[sourceKey]bool, level int, header rundir.Header) {
	key := sourceKey{level: level, header: header}
	if deleted[key] {
		return
	}
	deleted[key] = true
	if err := c.e.dir.Remove(level, header); err != nil {
		fmt.Fprintf(os.Stderr, "engine: IO-unlink: %v\n", err)
	}
}

// Scan returns the visible (key, value) pairs with low <= key <= high
// in ascending key order, MemTable entries taking precedence over
// on-disk entries for the same key. Runs are selected with the same
// asymmetric overlap test compaction uses (max key >= low, min key <
// high): keys held by a run whose min key equals high are not returned.
func (e *Engine) Scan(low, high uint64) []memtable.Record {
	out := e.mem.Scan(low, high)
	filtered := out[:0]
	for _, rec := range out {
		if !isTombstone(rec.Value) {
			filtered = append(filtered, rec)
		}
	}
	out = filtered

	var packs [][]ref
	for _, be := range e.buffer {
		h := be.summary.Header
		if h.MinKey < high && h.MaxKey >= low {
			if p := pack(be.level, be.summary, low, high); len(p) > 0 {
				packs = append(packs, p)
			}
		}
	}
	stream := foldMerge(packs)

	cache := newFileCache(e)
	result := make([]memtable.Record, 0, len(out)+len(stream))
	outIdx := 0
	for _, r := range stream {
		for outIdx < len(out) && out[outIdx].Key < r.key {
			result = append(result, out[outIdx])
			outIdx++
		}
		if outIdx < len(out) && out[outIdx].Key == r.key {
			continue
		}
		v := cache.valueAt(r)
		if v == nil || isTombstone(v) {
			continue
		}
		result = append(result, memtable.Record{Key: r.key, Value: append([]byte(nil), v...)})
	}
	result = append(result, out[outIdx:]...)
	return result
}

// compact merges victims (all from one source level) with the
// overlapping runs at nextLevel, writes size-bounded output files at
// nextLevel, and recurses if nextLevel now exceeds its budget.
func (e *Engine) compact(victims []entry, nextLevel int) error {
	if len(victims) == 0 {
		return nil
	}

	minKey, maxKey := victims[0].summary.Header.MinKey, victims[0].summary.Header.MaxKey
	for _, v := range victims[1:] {
		if v.summary.Header.MinKey < minKey {
			minKey = v.summary.Header.MinKey
		}
		if v.summary.Header.MaxKey > maxKey {
			maxKey = v.summary.Header.MaxKey
		}
	}

	overlap := e.selectOverlap(nextLevel, minKey, maxKey)

	sourceLevel := nextLevel - 1
	packs := make([][]ref, 0, len(victims)+len(overlap))
	for _, v := range victims {
		packs = append(packs, fullPack(sourceLevel, v.summary))
	}
	for _, v := range overlap {
		packs = append(packs, fullPack(nextLevel, v.summary))
	}
	stream := foldMerge(packs)

	e.removeFromBuffer(victims)
	e.removeFromBuffer(overlap)

	cache := newFileCache(e)
	deleted := make(map[sourceKey]bool)

	var batch []memtable.Record
	var size int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.writeRun(nextLevel, batch); err != nil {
			return err
		}
		batch = nil
		size = 0
		return nil
	}

	for _, r := range stream {
		v := cache.valueAt(r)
		cache.deleteOnce(deleted, r.level, r.header)

		if v == nil || isTombstone(v) {
			continue
		}
		size += int64(8 + 4 + len(v))
		batch = append(batch, memtable.Record{Key: r.key, Value: append([]byte(nil), v...)})

		if size >= int64(e.maxSize-e.bloomFilterSize) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if e.needCompaction(nextLevel) {
		return e.compact(e.selectVictims(nextLevel), nextLevel+1)
	}
	return nil
}

// fullPack builds the unfiltered key-ordered reference sequence for a
// victim summary: every key it holds participates in the merge, unlike
// pack which is range-limited for Scan.
func fullPack(level int, summary *sst.Summary) []ref {
	out := make([]ref, len(summary.Index))
	for i, e := range summary.Index {
		out[i] = ref{key: e.Key, level: level, header: summary.Header, pos: i, timestamp: summary.Header.Timestamp}
	}
	return out
}
