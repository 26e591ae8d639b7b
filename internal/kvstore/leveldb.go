package kvstore

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a KV backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a database directory.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// OpenLevelDBMemory opens a database that lives in memory only.
func OpenLevelDBMemory() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memory: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Update(fn func(Txn) error) error {
	tr, err := l.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	if err := fn(levelTxn{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		tr.Discard()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (l *LevelDB) View(fn func(Reader) error) error {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer snap.Release()
	return fn(levelReader{src: snap})
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// levelSource is the read surface shared by snapshots and transactions.
type levelSource interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelReader struct {
	src levelSource
}

func (r levelReader) Get(key []byte) ([]byte, bool, error) {
	v, err := r.src.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r levelReader) Last(start, limit []byte) ([]byte, []byte, bool, error) {
	it := r.src.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer it.Release()
	if !it.Last() {
		return nil, nil, false, it.Error()
	}
	return copyBytes(it.Key()), copyBytes(it.Value()), true, it.Error()
}

func (r levelReader) Ascend(start, limit []byte, fn func(key, value []byte) error) error {
	it := r.src.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(copyBytes(it.Key()), copyBytes(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t levelTxn) reader() levelReader { return levelReader{src: t.tr} }

func (t levelTxn) Get(key []byte) ([]byte, bool, error) { return t.reader().Get(key) }

func (t levelTxn) Last(start, limit []byte) ([]byte, []byte, bool, error) {
	return t.reader().Last(start, limit)
}

func (t levelTxn) Ascend(start, limit []byte, fn func(key, value []byte) error) error {
	return t.reader().Ascend(start, limit, fn)
}

func (t levelTxn) Put(key, value []byte) error { return t.tr.Put(key, value, nil) }

func (t levelTxn) Delete(key []byte) error { return t.tr.Delete(key, nil) }
