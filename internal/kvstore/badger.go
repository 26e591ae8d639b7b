package kvstore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Badger is a KV backed by badger.
type Badger struct {
	db *badger.DB
}

var (
	_ KV = (*Badger)(nil)
	_ KV = (*LevelDB)(nil)
)

// OpenBadger opens or creates a badger directory.
func OpenBadger(path string) (*Badger, error) {
	return openBadger(badger.DefaultOptions(path))
}

// OpenBadgerMemory opens a badger instance without disk files.
func OpenBadgerMemory() (*Badger, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*Badger, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Update(fn func(Txn) error) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
}

func (b *Badger) View(fn func(Reader) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) Get(key []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t badgerTxn) Last(start, limit []byte) ([]byte, []byte, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := t.txn.NewIterator(opts)
	defer it.Close()

	// Reverse Seek lands on the greatest key <= its argument.
	if limit == nil {
		it.Rewind()
	} else {
		it.Seek(limit)
	}
	for ; it.Valid(); it.Next() {
		item := it.Item()
		k := item.Key()
		if limit != nil && bytes.Compare(k, limit) >= 0 {
			continue
		}
		if bytes.Compare(k, start) < 0 {
			return nil, nil, false, nil
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, false, err
		}
		return item.KeyCopy(nil), v, true, nil
	}
	return nil, nil, false, nil
}

// Ascend buffers the range before calling fn: a read-write badger
// transaction allows one open iterator at a time.
func (t badgerTxn) Ascend(start, limit []byte, fn func(key, value []byte) error) error {
	type kv struct{ k, v []byte }
	var items []kv

	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	for it.Seek(start); it.Valid(); it.Next() {
		item := it.Item()
		if limit != nil && bytes.Compare(item.Key(), limit) >= 0 {
			break
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		items = append(items, kv{k: item.KeyCopy(nil), v: v})
	}
	it.Close()

	for _, e := range items {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

func (t badgerTxn) Put(key, value []byte) error {
	return t.txn.Set(copyBytes(key), copyBytes(value))
}

func (t badgerTxn) Delete(key []byte) error {
	return t.txn.Delete(copyBytes(key))
}
