// Package lexidx is an embeddable, on-disk full-text search engine: every
// indexing and search operation runs inside a single process, reading and
// writing a directory of files it owns exclusively. A host embeds it the
// way it would embed badger or bbolt, not the way it would call out to a
// search service over the network.
//
// Open returns an Index; every operation against it is built through a
// small request type (IndexDocuments, ClearDocuments, Settings, Search,
// FacetDistribution), configured by chainable setters, and run once via
// Execute. Every request is explicitly handed a *Txn: a write txn for
// indexing operations, a read txn for search and facet distribution,
// matching the single-writer/many-reader contract internal/storage/badger
// enforces.
package lexidx

import (
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
	"github.com/lexidx/lexidx/internal/writer"
)

// Txn re-exports the storage layer's transaction handle so callers never
// need to import internal/storage/badger directly.
type Txn = badger.Txn

// Options configures Open. A nil Options (or a zero-value one passed by
// pointer) falls back to common.DefaultConfig(path) and the process-wide
// logger returned by common.GetLogger.
type Options struct {
	Config *common.Config
	Logger arbor.ILogger
}

// Index is one opened engine instance: a transactional store plus the
// small amount of bookkeeping (creation/update timestamps, in-flight
// update tracking) that sits outside any one transaction's snapshot.
type Index struct {
	env     *badger.Environment
	meta    *badger.MetaStore
	config  *common.Config
	logger  arbor.ILogger
	updates *updateRegistry
}

// Open creates or opens an index rooted at path. Passing options as nil
// opens with defaults.
func Open(path string, options *Options) (*Index, error) {
	if options == nil {
		options = &Options{}
	}
	cfg := options.Config
	if cfg == nil {
		cfg = common.DefaultConfig(path)
	} else if cfg.Storage.Badger.Path == "" {
		cfg.Storage.Badger.Path = path
	}
	logger := options.Logger
	if logger == nil {
		logger = common.GetLogger()
	}

	env, err := badger.Open(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, err
	}

	meta, err := badger.OpenMetaStore(filepath.Join(cfg.Storage.Badger.Path, ".meta"))
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	if _, err := meta.LoadOrInit(time.Now()); err != nil {
		_ = env.Close()
		_ = meta.Close()
		return nil, err
	}

	logger.Info().Str("path", cfg.Storage.Badger.Path).Msg("index opened")

	return &Index{
		env:     env,
		meta:    meta,
		config:  cfg,
		logger:  logger,
		updates: newUpdateRegistry(),
	}, nil
}

// Close releases every resource the index holds. Safe to call once; the
// caller must not use the Index afterward.
func (idx *Index) Close() error {
	if err := idx.meta.Close(); err != nil {
		idx.logger.Warn().Err(err).Msg("failed to close index metadata store")
	}
	return idx.env.Close()
}

// WriteTxn begins the single, exclusive write transaction every indexing
// operation (IndexDocuments, ClearDocuments, Settings) runs inside.
func (idx *Index) WriteTxn() (*Txn, error) {
	return idx.env.WriteTxn()
}

// ReadTxn begins a snapshot-isolated read transaction, the kind Search and
// FacetDistribution run against.
func (idx *Index) ReadTxn() *Txn {
	return idx.env.ReadTxn()
}

// touch bumps the index's updated-at timestamp; called once a write
// operation's Execute has succeeded. The txn it wrote into may not be
// committed yet.
func (idx *Index) touch() {
	if err := idx.meta.Touch(time.Now()); err != nil {
		idx.logger.Warn().Err(err).Msg("failed to update index metadata timestamp")
	}
}

// loadFields reads the field-id map as of txn's snapshot.
func loadFields(txn *Txn) (*fieldmap.FieldsMap, error) {
	return writer.LoadFieldsMap(txn)
}
