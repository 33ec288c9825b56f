// Package sst serializes sorted batches of records to the on-disk run
// format and reads them back: a fixed header, a raw Bloom filter bit
// array, a sparse index of (key, value offset) pairs, and the
// concatenated value bytes. Package rundir owns path and filename
// bookkeeping; package sst owns the bytes inside a run file.
package sst

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Priyanshu23/lsmkv/bloom"
	"github.com/Priyanshu23/lsmkv/memtable"
	"github.com/Priyanshu23/lsmkv/rundir"
)

// headerSize is the byte width of the four u64 header fields:
// timestamp, length, max_key, min_key.
const headerSize = 32

// indexEntrySize is the byte width of one sparse index entry: an 8-byte
// key followed by a 4-byte value offset.
const indexEntrySize = 12

// IndexEntry is one sparse-index row: a key and the byte offset (from
// the start of the value region) at which its value begins.
type IndexEntry struct {
	Key    uint64
	Offset uint32
}

// Summary is everything about a run kept resident in memory once it is
// flushed or produced by compaction: its identity header, its Bloom
// filter, and its sparse index. Values themselves are never held here —
// only the run file on disk holds those.
type Summary struct {
	Header rundir.Header
	Filter *bloom.Filter
	Index  []IndexEntry
}

// Contains reports whether key might be present in the run, consulting
// only the resident Bloom filter.
func (s *Summary) Contains(key uint64) bool {
	return s.Filter.Contains(key)
}

// Find returns the positional index of key in the sparse index (for
// dereferencing its value from the run file) and whether it was found.
// The index is small enough, and searched rarely enough relative to
// Bloom-filtered-out lookups, that a linear scan matches the reference
// behavior without needing a binary search invariant to maintain.
func (s *Summary) Find(key uint64) (int, bool) {
	for i, e := range s.Index {
		if e.Key == key {
			return i, true
		}
	}
	return 0, false
}

// BuildSummary computes a run's header, Bloom filter, and sparse index
// from a batch already sorted ascending by key. It performs no I/O; the
// caller passes the result to WriteFile to persist it.
func BuildSummary(timestamp uint64, batch []memtable.Record, bloomSize int) *Summary {
	header := rundir.Header{
		Timestamp: timestamp,
		Length:    uint64(len(batch)),
		MinKey:    ^uint64(0),
		MaxKey:    0,
	}

	filter := bloom.New(bloomSize)
	index := make([]IndexEntry, len(batch))

	var pos uint32
	for i, rec := range batch {
		if rec.Key < header.MinKey {
			header.MinKey = rec.Key
		}
		if rec.Key > header.MaxKey {
			header.MaxKey = rec.Key
		}
		filter.Insert(rec.Key)
		index[i] = IndexEntry{Key: rec.Key, Offset: pos}
		pos += uint32(len(rec.Value))
	}

	return &Summary{Header: header, Filter: filter, Index: index}
}

// WriteFile writes summary and the values in batch (in the same order
// summary's index was built from) to path as a run file.
func WriteFile(path string, summary *Summary, batch []memtable.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sst: failed to create %s: %w", path, err)
	}
	defer f.Close()

	var headerBuf [headerSize]byte
	binary.LittleEndian.PutUint64(headerBuf[0:8], summary.Header.Timestamp)
	binary.LittleEndian.PutUint64(headerBuf[8:16], summary.Header.Length)
	binary.LittleEndian.PutUint64(headerBuf[16:24], summary.Header.MaxKey)
	binary.LittleEndian.PutUint64(headerBuf[24:32], summary.Header.MinKey)
	if _, err := f.Write(headerBuf[:]); err != nil {
		return fmt.Errorf("sst: failed to write header to %s: %w", path, err)
	}

	if _, err := f.Write(summary.Filter.Bytes()); err != nil {
		return fmt.Errorf("sst: failed to write filter to %s: %w", path, err)
	}

	indexBuf := make([]byte, len(summary.Index)*indexEntrySize)
	for i, e := range summary.Index {
		off := i * indexEntrySize
		binary.LittleEndian.PutUint64(indexBuf[off:off+8], e.Key)
		binary.LittleEndian.PutUint32(indexBuf[off+8:off+12], e.Offset)
	}
	if _, err := f.Write(indexBuf); err != nil {
		return fmt.Errorf("sst: failed to write index to %s: %w", path, err)
	}

	for _, rec := range batch {
		if _, err := f.Write(rec.Value); err != nil {
			return fmt.Errorf("sst: failed to write values to %s: %w", path, err)
		}
	}

	return nil
}

// ReadSummary reconstructs a run's resident Summary by reading its
// header, Bloom filter, and sparse index back from disk. bloomSize must
// be the same clamped filter size the run was originally built with —
// it is fixed for the lifetime of the engine that owns path, and is not
// itself stored in the file.
func ReadSummary(path string, bloomSize int) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var headerBuf [headerSize]byte
	if _, err := io.ReadFull(f, headerBuf[:]); err != nil {
		return nil, fmt.Errorf("sst: failed to read header from %s: %w", path, err)
	}
	header := rundir.Header{
		Timestamp: binary.LittleEndian.Uint64(headerBuf[0:8]),
		Length:    binary.LittleEndian.Uint64(headerBuf[8:16]),
		MaxKey:    binary.LittleEndian.Uint64(headerBuf[16:24]),
		MinKey:    binary.LittleEndian.Uint64(headerBuf[24:32]),
	}

	filterBytes := make([]byte, clampedSize(bloomSize))
	if _, err := io.ReadFull(f, filterBytes); err != nil {
		return nil, fmt.Errorf("sst: failed to read filter from %s: %w", path, err)
	}

	indexBuf := make([]byte, int(header.Length)*indexEntrySize)
	if _, err := io.ReadFull(f, indexBuf); err != nil {
		return nil, fmt.Errorf("sst: failed to read index from %s: %w", path, err)
	}
	index := make([]IndexEntry, header.Length)
	for i := range index {
		off := i * indexEntrySize
		index[i] = IndexEntry{
			Key:    binary.LittleEndian.Uint64(indexBuf[off : off+8]),
			Offset: binary.LittleEndian.Uint32(indexBuf[off+8 : off+12]),
		}
	}

	return &Summary{Header: header, Filter: bloom.FromBytes(filterBytes), Index: index}, nil
}

func clampedSize(m int) int {
	if m > bloom.MaxSize {
		return bloom.MaxSize
	}
	if m <= 0 {
		return 1
	}
	return m
}
