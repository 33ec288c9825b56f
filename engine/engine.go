// Package engine ties the skip-list MemTable, the Bloom-filtered run
// summaries, and the run writer/reader together into the ordered
// key-value store: Put/Get/Del/Scan/Reset, flush-on-threshold, and
// leveled compaction. It is the only package in this module that
// touches the filesystem layout as a whole rather than a single file.
package engine

import (
	"fmt"
	"os"
	"sort"

	"github.com/Priyanshu23/lsmkv/memtable"
	"github.com/Priyanshu23/lsmkv/rundir"
	"github.com/Priyanshu23/lsmkv/sst"
)

// Tombstone is the sentinel value marking a logical deletion. It is
// never returned to callers.
const Tombstone = "~DELETED~"

const (
	defaultMaxSize         = 2 * 1024 * 1024
	defaultBloomFilterSize = 10240
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxSize overrides the byte threshold (MemTable footprint plus the
// Bloom filter reservation) that triggers a flush.
func WithMaxSize(maxSize int) Option {
	return func(e *Engine) {
		e.maxSize = maxSize
	}
}

// WithBloomFilterSize overrides the per-run Bloom filter bit-array
// size, clamped by package bloom to 1<<16.
func WithBloomFilterSize(bloomFilterSize int) Option {
	return func(e *Engine) {
		e.bloomFilterSize = bloomFilterSize
	}
}

// entry is one (level, summary) pair held in the engine's resident
// buffer — the only directory catalog the engine keeps.
type entry struct {
	level   int
	summary *sst.Summary
}

// Engine is the single-writer, single-threaded LSM store. All methods
// must be called from one goroutine at a time; callers needing
// concurrent access must serialize externally.
type Engine struct {
	mem             memtable.Memtable
	buffer          []entry
	currentSize     int64
	maxSize         int
	bloomFilterSize int
	timestamp       uint64
	dir             *rundir.Dir
}

// New returns an Engine rooted at outputPath. outputPath is created on
// demand the first time a level directory is needed.
func New(outputPath string, opts ...Option) *Engine {
	e := &Engine{
		mem:             memtable.New(),
		maxSize:         defaultMaxSize,
		bloomFilterSize: defaultBloomFilterSize,
		dir:             rundir.New(outputPath),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func isTombstone(value []byte) bool {
	return string(value) == Tombstone
}

// Put inserts or overwrites key with value, flushing the MemTable to a
// new level-0 run (and cascading compaction, if triggered) once the
// estimated byte footprint crosses maxSize-bloomFilterSize.
func (e *Engine) Put(key uint64, value []byte) error {
	r := e.mem.Insert(key, value)
	if r.Replaced {
		e.currentSize += int64(len(value)) - int64(r.PrevLen)
	} else {
		e.currentSize += int64(8 + 4 + len(value))
	}

	if e.currentSize >= int64(e.maxSize-e.bloomFilterSize) {
		return e.flushMemtable()
	}
	return nil
}

func (e *Engine) flushMemtable() error {
	e.timestamp++
	batch := e.mem.ScanAll()

	if err := e.writeRun(0, batch); err != nil {
		return err
	}
	if e.needCompaction(0) {
		victims := e.selectVictims(0)
		if err := e.compact(victims, 1); err != nil {
			return err
		}
	}

	e.currentSize = 0
	e.mem.Reset()
	return nil
}

// writeRun serializes batch to a new run at level via package sst and
// appends its summary to the resident buffer. The file is built and
// written before the buffer is mutated, so a failed write leaves
// engine state unchanged.
func (e *Engine) writeRun(level int, batch []memtable.Record) error {
	if len(batch) == 0 {
		return nil
	}

	summary := sst.BuildSummary(e.timestamp, batch, e.bloomFilterSize)
	path, err := e.dir.UniqueFilePath(level, summary.Header)
	if err != nil {
		return fmt.Errorf("engine: IO-mkdir: %w", err)
	}
	if err := sst.WriteFile(path, summary, batch); err != nil {
		return err
	}

	e.buffer = append(e.buffer, entry{level: level, summary: summary})
	return nil
}

// lookup is the shared resolution path for Get, Exist, and Del: find
// the visible entry for key across the MemTable and resident
// summaries, newest-wins.
type lookup struct {
	value     []byte
	tombstone bool
	found     bool
}

func (e *Engine) resolve(key uint64) lookup {
	if v, ok := e.mem.Search(key); ok {
		return lookup{value: v, tombstone: isTombstone(v), found: true}
	}

	var best *entry
	var bestIdx int
	for i := range e.buffer {
		candidate := &e.buffer[i]
		if best != nil && candidate.summary.Header.Timestamp <= best.summary.Header.Timestamp {
			continue
		}
		if !candidate.summary.Contains(key) {
			continue
		}
		idx, ok := candidate.summary.Find(key)
		if !ok {
			continue
		}
		best = candidate
		bestIdx = idx
	}
	if best == nil {
		return lookup{}
	}

	path := e.dir.FilePath(best.level, best.summary.Header)
	value, err := sst.ReadValueAt(path, e.bloomFilterSize, best.summary.Header.Length, bestIdx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: IO-open %s: %v\n", path, err)
		return lookup{}
	}
	return lookup{value: value, tombstone: isTombstone(value), found: true}
}

// Get returns the value visible for key, or nil if the key is absent
// or its most recent write was a deletion.
func (e *Engine) Get(key uint64) []byte {
	r := e.resolve(key)
	if !r.found || r.tombstone {
		return nil
	}
	return r.value
}

// Exist reports whether key currently has a visible, non-tombstone
// value.
func (e *Engine) Exist(key uint64) bool {
	r := e.resolve(key)
	return r.found && !r.tombstone
}

// Del marks key as deleted by writing the tombstone sentinel, and
// reports whether the key was visible beforehand.
func (e *Engine) Del(key uint64) bool {
	if !e.Exist(key) {
		return false
	}
	if err := e.Put(key, []byte(Tombstone)); err != nil {
		fmt.Fprintf(os.Stderr, "engine: del(%d): %v\n", key, err)
		return false
	}
	return true
}

// Reset empties the MemTable only; on-disk runs and their resident
// summaries are untouched.
func (e *Engine) Reset() {
	e.mem.Reset()
	e.currentSize = 0
}

func maxFiles(level int) int {
	return 1 << (level + 1)
}

func (e *Engine) countAtLevel(level int) int {
	n := 0
	for _, be := range e.buffer {
		if be.level == level {
			n++
		}
	}
	return n
}

func (e *Engine) needCompaction(level int) bool {
	return e.countAtLevel(level) > maxFiles(level)
}

// selectVictims picks the entries at level that a compaction to
// level+1 should consume: all of level 0, or the oldest
// (timestamp, max_key)-ordered excess beyond the level's budget
// elsewhere.
func (e *Engine) selectVictims(level int) []entry {
	var atLevel []entry
	for _, be := range e.buffer {
		if be.level == level {
			atLevel = append(atLevel, be)
		}
	}

	if level == 0 {
		return atLevel
	}

	sort.SliceStable(atLevel, func(i, j int) bool {
		hi, hj := atLevel[i].summary.Header, atLevel[j].summary.Header
		if hi.Timestamp != hj.Timestamp {
			return hi.Timestamp < hj.Timestamp
		}
		return hi.MaxKey < hj.MaxKey
	})

	excess := len(atLevel) - maxFiles(level)
	if excess <= 0 {
		return nil
	}
	return atLevel[:excess]
}

// selectOverlap picks the entries at level whose key range overlaps
// [minKey, maxKey]. The asymmetric test (next.max >= min, next.min <
// max) is kept exactly as the reference compaction machinery uses it.
func (e *Engine) selectOverlap(level int, minKey, maxKey uint64) []entry {
	var hits []entry
	for _, be := range e.buffer {
		h := be.summary.Header
		if be.level == level && h.MaxKey >= minKey && h.MinKey < maxKey {
			hits = append(hits, be)
		}
	}
	return hits
}

// removeFromBuffer drops every entry in victims from the resident
// buffer. Entries are identified by summary pointer identity.
func (e *Engine) removeFromBuffer(victims []entry) {
	drop := make(map[*sst.Summary]bool, len(victims))
	for _, v := range victims {
		drop[v.summary] = true
	}

	kept := e.buffer[:0]
	for _, be := range e.buffer {
		if !drop[be.summary] {
			kept = append(kept, be)
		}
	}
	e.buffer = kept
}
