package main

import (
	"github.com/Priyanshu23/lsmkv/engine"
	"github.com/Priyanshu23/lsmkv/memtable"
)

// DB is the public surface over the LSM engine: point writes, point
// reads, deletions, range scans, and a MemTable-only reset.
type DB interface {
	Put(key uint64, value []byte) error
	Get(key uint64) []byte
	Del(key uint64) bool
	Scan(low, high uint64) []memtable.Record
	Reset()
}

var _ DB = (*engine.Engine)(nil)

// Open returns a DB rooted at dir, using the engine's default
// thresholds unless overridden.
func Open(dir string, opts ...engine.Option) DB {
	return engine.New(dir, opts...)
}

func main() {
}
