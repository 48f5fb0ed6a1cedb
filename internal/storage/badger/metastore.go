package badger

import (
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// IndexMeta is the one struct-shaped record this package stores through
// badgerhold rather than through raw Txn.Put: it never sits on the
// indexing or search hot path, so the convenience of struct (de)serialization
// outweighs hand-rolling a codec for it. Everything performance-sensitive
// (postings, facet levels, OBKV documents) goes through Txn directly.
type IndexMeta struct {
	Key       string `boltholdKey:"Key"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const metaSingletonKey = "index-meta"

// MetaStore wraps a badgerhold.Store opened against a dedicated
// sub-directory so its keyspace never collides with Environment's raw
// badger.DB keys.
type MetaStore struct {
	store *badgerhold.Store
}

// OpenMetaStore opens (or creates) the meta singleton store rooted at
// dir. internal/index keeps this in a ".meta" sibling directory next to
// the raw Environment so an index's created_at/updated_at bookkeeping
// never shares a keyspace with Environment's postings.
func OpenMetaStore(dir string) (*MetaStore, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}
	return &MetaStore{store: store}, nil
}

// LoadOrInit returns the index's creation/update timestamps, creating the
// singleton with CreatedAt=now on first open.
func (m *MetaStore) LoadOrInit(now time.Time) (*IndexMeta, error) {
	var meta IndexMeta
	err := m.store.Get(metaSingletonKey, &meta)
	if err == badgerhold.ErrNotFound {
		meta = IndexMeta{Key: metaSingletonKey, CreatedAt: now, UpdatedAt: now}
		if err := m.store.Insert(metaSingletonKey, &meta); err != nil {
			return nil, err
		}
		return &meta, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Touch bumps UpdatedAt. lexidx calls it each time a write operation's
// Execute succeeds; the txn that operation wrote into may not be
// committed yet.
func (m *MetaStore) Touch(now time.Time) error {
	var meta IndexMeta
	if err := m.store.Get(metaSingletonKey, &meta); err != nil {
		return err
	}
	meta.UpdatedAt = now
	return m.store.Update(metaSingletonKey, &meta)
}

func (m *MetaStore) Close() error {
	return m.store.Close()
}
