// Package kvstore persists ledger state in an ordered key-value engine.
package kvstore

import (
	"errors"
	"fmt"
	"strings"
)

// Reader is a consistent read view over the key space.
type Reader interface {
	// Get returns the value stored at key.
	Get(key []byte) ([]byte, bool, error)
	// Last returns the greatest key in [start, limit) and its value.
	Last(start, limit []byte) ([]byte, []byte, bool, error)
	// Ascend calls fn for every key in [start, limit), in byte order.
	// A nil limit means no upper bound.
	Ascend(start, limit []byte, fn func(key, value []byte) error) error
}

// Txn is a read-write transaction.
type Txn interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

// KV is an ordered key-value engine with atomic update transactions.
type KV interface {
	// Update runs fn in a transaction that commits when fn returns nil and is
	// discarded otherwise.
	Update(fn func(Txn) error) error
	// View runs fn against a snapshot.
	View(fn func(Reader) error) error
	Close() error
}

// Engine names accepted by Open.
const (
	EngineLevelDB = "leveldb"
	EngineBadger  = "badger"
)

// ErrUnknownEngine is returned by Open for an unsupported engine name.
var ErrUnknownEngine = errors.New("unknown kv engine")

// Open opens the named engine at path. An empty path or ":memory:" keeps the
// data in memory.
func Open(engine, path string) (KV, error) {
	memory := path == "" || path == ":memory:"
	switch strings.ToLower(engine) {
	case "", EngineLevelDB:
		if memory {
			return OpenLevelDBMemory()
		}
		return OpenLevelDB(path)
	case EngineBadger:
		if memory {
			return OpenBadgerMemory()
		}
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
