// Package bloom implements the fixed-capacity, four-lane Bloom filter
// used to guard point lookups against unnecessary file reads. The bit
// array is serialized one byte per bit, matching the on-disk run
// format exactly: this filter's state IS a slice of the run file, not
// a separate packed representation.
package bloom

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// MaxSize is the sentinel cap on the bit array: a configured m larger
// than this is clamped down to it.
const MaxSize = 1 << 16

// lanes is the fixed number of hash lanes per key (k in the textbook
// sense). The reference this filter is modeled on derives all four
// lanes from one seeded MurmurHash3-x64-128 call rather than k
// independent hash functions.
const lanes = 4

// seed is fixed so that two filters built from the same keys produce
// bit-for-bit identical output — required for the run file's contents
// to be a pure function of its input batch.
const seed = 1

// Filter is a fixed-size bit array with Insert/Contains, one byte per
// bit. No deletion is supported.
type Filter struct {
	m    int
	bits []byte
}

// New returns an empty filter with capacity m, clamped to MaxSize.
func New(m int) *Filter {
	if m > MaxSize {
		m = MaxSize
	}
	if m <= 0 {
		m = 1
	}
	return &Filter{m: m, bits: make([]byte, m)}
}

// lanePositions returns the four bit positions a key hashes to.
func lanePositions(key uint64, m int) [lanes]int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)

	h1, h2 := murmur3.Sum128WithSeed(buf[:], seed)

	var pos [lanes]int
	pos[0] = int(uint32(h1) % uint32(m))
	pos[1] = int(uint32(h1>>32) % uint32(m))
	pos[2] = int(uint32(h2) % uint32(m))
	pos[3] = int(uint32(h2>>32) % uint32(m))
	return pos
}

// Insert adds key to the set.
func (f *Filter) Insert(key uint64) {
	for _, p := range lanePositions(key, f.m) {
		f.bits[p] = 1
	}
}

// Contains reports whether key may be a member (false positives
// possible, false negatives never).
func (f *Filter) Contains(key uint64) bool {
	for _, p := range lanePositions(key, f.m) {
		if f.bits[p] == 0 {
			return false
		}
	}
	return true
}

// Size returns the bit array's length, m.
func (f *Filter) Size() int {
	return f.m
}

// Bytes returns the raw one-byte-per-bit array as written to and read
// from a run file. The caller must not mutate the returned slice.
func (f *Filter) Bytes() []byte {
	return f.bits
}

// FromBytes wraps a byte slice read from a run file as a Filter
// without copying or reinterpreting it.
func FromBytes(bits []byte) *Filter {
	return &Filter{m: len(bits), bits: bits}
}
