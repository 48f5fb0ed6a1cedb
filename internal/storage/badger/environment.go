// Package badger implements the transactional KV adapter on top of a raw
// badger.DB. Apart from MetaStore (metastore.go), the one struct stored
// through badgerhold, this package hands out raw key/value bytes:
// everything above it (internal/codec) owns its own binary layout, so an
// ORM that encodes Go structs would only get in the way.
package badger

import (
	"os"
	"sync"

	bdg "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/common"
)

// Database is one of the engine's 15 logical named databases. Badger has a
// single flat keyspace, so a Database is realised as a one-byte key
// prefix, the same trick LMDB-backed engines reserve for sub-databases
// when a store doesn't support them natively.
type Database uint8

const (
	DBMain Database = iota + 1
	DBWord
	DBWordPrefix
	DBDocidWordPositions
	DBWordPairProximity
	DBWordPrefixPairProximity
	DBWordPositionLevels
	DBWordPrefixPositionLevels
	DBFieldWordCount
	DBFacetNumberLevels
	DBFacetStringLevels // (field-id, normalized-string) -> (original, bitmap)
	DBFieldDocidFacetNumber
	DBFieldDocidFacetString
	DBDocuments  // docid -> OBKV
	DBGeoPoints  // docid -> (lat,lng) 16 bytes, the geo R-tree's backing store
)

// Prefix returns the one-byte key prefix for this database.
func (d Database) Prefix() byte { return byte(d) }

// WithPrefix prepends this database's prefix byte to key.
func (d Database) WithPrefix(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, d.Prefix())
	return append(out, key...)
}

// Environment opens one transactional store: a single badger.DB, a write
// mutex enforcing the single-writer contract (badger itself already
// serialises writers, but the mutex makes "no nested write transactions"
// an explicit, testable invariant rather than something incidentally true
// of badger's own locking), and many-reader snapshot isolation supplied
// natively by badger's MVCC.
type Environment struct {
	db       *bdg.DB
	logger   arbor.ILogger
	config   *common.BadgerConfig
	writeMu  sync.Mutex
	closed   bool
	closedMu sync.RWMutex
}

// Open creates or opens the environment at config.Path.
func Open(logger arbor.ILogger, config *common.BadgerConfig) (*Environment, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, common.NewInternalError(common.ErrIoError, err, "failed to create index directory %q", config.Path)
	}

	opts := bdg.DefaultOptions(config.Path)
	opts.Logger = nil // arbor replaces badger's own logger
	if config.MaxMapSizeMB > 0 {
		opts.ValueLogFileSize = config.MaxMapSizeMB * 1024 * 1024
	}

	db, err := bdg.Open(opts)
	if err != nil {
		return nil, common.NewInternalError(common.ErrIoError, err, "failed to open badger database")
	}

	logger.Debug().Str("path", config.Path).Msg("badger environment opened")

	return &Environment{db: db, logger: logger, config: config}, nil
}

// Close releases the environment. Safe to call once; a second call is a
// no-op.
func (e *Environment) Close() error {
	e.closedMu.Lock()
	defer e.closedMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// WriteTxn begins the single, exclusive write transaction. It blocks until
// any prior writer has committed or discarded.
func (e *Environment) WriteTxn() (*Txn, error) {
	e.writeMu.Lock()
	txn := e.db.NewTransaction(true)
	return &Txn{env: e, txn: txn, writable: true, release: e.writeMu.Unlock}, nil
}

// ReadTxn begins a many-reader, snapshot-isolated read transaction. The
// snapshot it sees is fixed for the transaction's entire lifetime
// regardless of concurrent commits.
func (e *Environment) ReadTxn() *Txn {
	txn := e.db.NewTransaction(false)
	return &Txn{env: e, txn: txn, writable: false}
}

// Txn wraps a badger.Txn with a strict commit/rollback discipline: a
// failed write txn rolls back fully, and no nested write transactions are
// ever opened from inside one.
type Txn struct {
	env      *Environment
	txn      *bdg.Txn
	writable bool
	release  func() // unlocks Environment.writeMu; nil for read txns
	done     bool
}

// Get reads a single key's value from db.
func (t *Txn) Get(db Database, key []byte) ([]byte, error) {
	item, err := t.txn.Get(db.WithPrefix(key))
	if err != nil {
		if err == bdg.ErrKeyNotFound {
			return nil, nil
		}
		return nil, common.NewInternalError(common.ErrStoreError, err, "get failed")
	}
	return item.ValueCopy(nil)
}

// Put writes key->value in db. Only valid on a write txn.
func (t *Txn) Put(db Database, key, value []byte) error {
	if !t.writable {
		return common.NewInternalError(common.ErrStoreError, nil, "put called on a read-only transaction")
	}
	if err := t.txn.Set(db.WithPrefix(key), value); err != nil {
		if err == bdg.ErrTxnTooBig {
			return common.NewInternalError(common.ErrStorageFull, err, "transaction exceeded badger's size limit")
		}
		return common.NewInternalError(common.ErrStoreError, err, "put failed")
	}
	return nil
}

// Delete removes key from db. Only valid on a write txn.
func (t *Txn) Delete(db Database, key []byte) error {
	if !t.writable {
		return common.NewInternalError(common.ErrStoreError, nil, "delete called on a read-only transaction")
	}
	if err := t.txn.Delete(db.WithPrefix(key)); err != nil {
		return common.NewInternalError(common.ErrStoreError, err, "delete failed")
	}
	return nil
}

// IterOptions configures a prefix scan.
type IterOptions struct {
	Prefix       []byte // additional prefix within db, after db's own byte
	Reverse      bool
	PrefetchSize int
}

// Iterate walks all keys in db matching opts.Prefix in key order, calling
// fn(key, value) for each. fn's key has db's prefix byte stripped. Iteration
// stops early if fn returns false.
func (t *Txn) Iterate(db Database, opts IterOptions, fn func(key, value []byte) (bool, error)) error {
	itOpts := bdg.DefaultIteratorOptions
	itOpts.Reverse = opts.Reverse
	if opts.PrefetchSize > 0 {
		itOpts.PrefetchValues = true
		itOpts.PrefetchSize = opts.PrefetchSize
	}
	it := t.txn.NewIterator(itOpts)
	defer it.Close()

	prefix := db.WithPrefix(opts.Prefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return common.NewInternalError(common.ErrStoreError, err, "iterate value copy failed")
		}
		key := item.KeyCopy(nil)[1:] // strip db prefix byte
		cont, err := fn(key, val)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// Commit makes the transaction's writes atomically visible to new read
// transactions. No-op, returning nil, on a read txn (mirrors the source's
// convention of letting callers defer Commit unconditionally).
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.release != nil {
		defer t.release()
	}
	if !t.writable {
		t.txn.Discard()
		return nil
	}
	if err := t.txn.Commit(); err != nil {
		if err == bdg.ErrTxnTooBig {
			return common.NewInternalError(common.ErrStorageFull, err, "commit exceeded badger's size limit")
		}
		return common.NewInternalError(common.ErrStoreError, err, "commit failed")
	}
	return nil
}

// Abort discards the transaction's writes. Safe to call after Commit
// (no-op) so callers can unconditionally `defer txn.Abort()` and still
// call Commit explicitly on the success path, matching Go's usual
// defer-rollback idiom for SQL transactions.
func (t *Txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	if t.release != nil {
		defer t.release()
	}
	t.txn.Discard()
}
