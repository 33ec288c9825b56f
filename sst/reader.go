package sst

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// valuesStart returns the byte offset of the value region given a
// run's filter size and entry count.
func valuesStart(bloomSize int, length uint64) int64 {
	return int64(headerSize) + int64(clampedSize(bloomSize)) + int64(length)*indexEntrySize
}

// ReadValueAt dereferences the value at positional index idx (as
// produced by Summary.Find) in the run file at path, without reading
// the rest of the value region. length is the run's entry count
// (summary.Header.Length) and bloomSize is the filter size the run was
// built with.
func ReadValueAt(path string, bloomSize int, length uint64, idx int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sst: failed to stat %s: %w", path, err)
	}

	entryOffset := int64(headerSize) + int64(clampedSize(bloomSize)) + int64(idx)*indexEntrySize
	thisOffset, err := readOffsetField(f, entryOffset)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to read index entry %d from %s: %w", idx, path, err)
	}

	base := valuesStart(bloomSize, length)
	start := base + int64(thisOffset)

	var end int64
	if uint64(idx)+1 < length {
		nextOffset, err := readOffsetField(f, entryOffset+indexEntrySize)
		if err != nil {
			return nil, fmt.Errorf("sst: failed to read index entry %d from %s: %w", idx+1, path, err)
		}
		end = base + int64(nextOffset)
	} else {
		end = info.Size()
	}

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("sst: failed to read value for index entry %d from %s: %w", idx, path, err)
	}
	return buf, nil
}

func readOffsetField(f *os.File, entryOffset int64) (uint32, error) {
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], entryOffset+8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadValues reads every value in the run file at path in positional
// order, for callers (Scan, compaction) that need the whole run's
// contents at once rather than a single dereference. The caller is
// expected to cache the result per distinct run rather than call this
// repeatedly for the same file.
func ReadValues(path string, bloomSize int, length uint64) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to open %s: %w", path, err)
	}
	defer f.Close()

	indexOffset := int64(headerSize) + int64(clampedSize(bloomSize))
	if _, err := f.Seek(indexOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sst: failed to seek to index in %s: %w", path, err)
	}
	indexBuf := make([]byte, int(length)*indexEntrySize)
	if _, err := io.ReadFull(f, indexBuf); err != nil {
		return nil, fmt.Errorf("sst: failed to read index from %s: %w", path, err)
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to read values from %s: %w", path, err)
	}

	values := make([][]byte, length)
	for i := uint64(0); i < length; i++ {
		off := int(i) * indexEntrySize
		start := binary.LittleEndian.Uint32(indexBuf[off+8 : off+12])
		var end uint32
		if i+1 < length {
			nextOff := off + indexEntrySize
			end = binary.LittleEndian.Uint32(indexBuf[nextOff+8 : nextOff+12])
		} else {
			end = uint32(len(rest))
		}
		values[i] = rest[start:end]
	}
	return values, nil
}
