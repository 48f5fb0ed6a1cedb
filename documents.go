package lexidx

import (
	"encoding/csv"
	"io"

	"github.com/bytedance/sonic"

	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/settings"
	"github.com/lexidx/lexidx/internal/transform"
	"github.com/lexidx/lexidx/internal/writer"
)

// Method re-exports the replace-vs-update ingest semantics so callers
// outside the module can name them; internal/transform owns the behavior.
type Method = transform.Method

const (
	// MethodReplace overwrites an existing document wholesale.
	MethodReplace = transform.MethodReplace
	// MethodUpdate merges the incoming fields over the stored document,
	// newer field wins, untouched fields survive.
	MethodUpdate = transform.MethodUpdate
)

// Format selects how IndexDocuments.Execute's reader is decoded.
type Format int

const (
	// FormatJSON expects a single top-level JSON array of documents.
	FormatJSON Format = iota
	// FormatJSONLines expects one JSON object per line (ndjson).
	FormatJSONLines
	// FormatCSV expects a header row followed by one document per row;
	// every cell is staged as a string, never type-inferred.
	FormatCSV
)

// indexAPI decodes numbers as json.Number, mirroring internal/documents'
// own decode configuration so staged values round-trip identically
// whether they arrive as a whole blob or through this streaming path.
var indexAPI = sonic.Config{UseNumber: true}.Froze()

// ProgressFunc reports how many of the batch's documents have been
// processed so far. IndexDocuments.Execute always passes 0 as total.
type ProgressFunc func(processed, total int)

// IndexDocuments builds one add-documents operation: decode, resolve
// primary keys and ids, transform, extract, and commit, all inside the
// write txn the caller supplies.
type IndexDocuments struct {
	idx    *Index
	txn    *Txn
	handle *updateHandle

	method       transform.Method
	format       Format
	autogenerate bool

	threadPoolSize int
	maxMemoryBytes int64
	maxNbChunks    int
	gzipChunks     bool
	logEveryN      int
	cacheSize      int
}

// ID identifies this operation for AbortUpdate/UpdateStatus. Valid as soon
// as NewIndexDocuments returns, before Execute is ever called.
func (r *IndexDocuments) ID() uint64 { return r.handle.id }

// IndexResult summarizes one completed IndexDocuments.Execute call.
type IndexResult struct {
	Received int
	Inserted int
	Updated  int
}

// NewIndexDocuments builds a request seeded with the index's configured
// defaults for worker count and sorter memory ceiling; every field can be
// overridden through the chainable setters before calling Execute.
func (idx *Index) NewIndexDocuments(txn *Txn) *IndexDocuments {
	cfg := idx.config.Indexing
	return &IndexDocuments{
		idx:            idx,
		txn:            txn,
		handle:         idx.updates.register(),
		method:         transform.MethodReplace,
		format:         FormatJSON,
		threadPoolSize: cfg.ThreadPoolSize,
		maxMemoryBytes: int64(cfg.MaxMemoryMB) << 20,
		maxNbChunks:    cfg.MaxNbChunks,
		gzipChunks:     cfg.ChunkCompressionGzip,
		logEveryN:      cfg.LogEveryN,
	}
}

func (r *IndexDocuments) WithMethod(m Method) *IndexDocuments        { r.method = m; return r }
func (r *IndexDocuments) WithFormat(f Format) *IndexDocuments        { r.format = f; return r }
func (r *IndexDocuments) WithAutogenerateIDs(v bool) *IndexDocuments { r.autogenerate = v; return r }
func (r *IndexDocuments) WithThreadPoolSize(n int) *IndexDocuments {
	if n > 0 {
		r.threadPoolSize = n
	}
	return r
}
func (r *IndexDocuments) WithMaxMemoryMB(mb int) *IndexDocuments {
	if mb > 0 {
		r.maxMemoryBytes = int64(mb) << 20
	}
	return r
}
func (r *IndexDocuments) WithMaxNbChunks(n int) *IndexDocuments {
	if n > 0 {
		r.maxNbChunks = n
	}
	return r
}
func (r *IndexDocuments) WithChunkCompressionGzip(v bool) *IndexDocuments { r.gzipChunks = v; return r }

// WithLinkedHashMapSize sizes the write-through posting cache some hosts
// configure in front of the word-docids sorter. The sorters here buffer
// up to the memory ceiling directly, so the value folds into the same
// budget: it widens the sorters' in-memory buffer rather than
// configuring a separate cache.
func (r *IndexDocuments) WithLinkedHashMapSize(n int) *IndexDocuments {
	if n > 0 {
		r.cacheSize = n
	}
	return r
}
func (r *IndexDocuments) WithLogEveryN(n int) *IndexDocuments {
	if n > 0 {
		r.logEveryN = n
	}
	return r
}

// batchSize bounds how many documents are staged and transformed before
// they are extracted and written into the txn. The registered update's
// cancellation context is checked before each document is decoded and by
// the extraction pool, never inside writer.Commit.
const batchSize = 1000

// Execute decodes reader per the request's Format, resolves each
// document's primary key and merge semantics, extracts the result, and
// commits everything in one pass. Cancellable via AbortUpdate(r.ID()): the
// abort is noticed before the next document is decoded or during
// extraction, and Execute then returns an ErrAborted error.
func (r *IndexDocuments) Execute(reader io.Reader, progress ProgressFunc) (IndexResult, error) {
	handle := r.handle
	id := handle.id
	r.idx.updates.setState(id, UpdateProcessing)

	fields, err := loadFields(r.txn)
	if err != nil {
		return IndexResult{}, err
	}
	current, err := settings.Load(r.txn)
	if err != nil {
		return IndexResult{}, err
	}
	existingPK, err := writer.LoadPrimaryKey(r.txn)
	if err != nil {
		return IndexResult{}, err
	}

	ext, err := writer.LoadOrNewExternalIDs(r.txn)
	if err != nil {
		return IndexResult{}, err
	}
	existingDocids, err := documentsBitmap(r.txn)
	if err != nil {
		return IndexResult{}, err
	}
	allocator := newDocidAllocator(existingDocids)
	lookup := &existingLookup{txn: r.txn, ext: ext}
	xform := transform.New(fields, lookup, allocator, r.method)

	var result IndexResult
	var staged []extract.StagedDocument
	var writes []writer.DocumentWrite
	var replays []extract.StagedDocument
	var newEntries []fieldmap.Entry
	resolvedPK := existingPK

	// the ceiling is split across the four main sorter families
	sorterOpts := extract.SorterOptions{
		MaxMemoryBytes: (r.maxMemoryBytes + int64(r.cacheSize)) / 4,
		MaxNbChunks:    r.maxNbChunks,
		CompressChunks: r.gzipChunks,
	}

	flush := func() error {
		if len(staged) == 0 {
			return nil
		}
		staged, writes = dedupeByDocid(staged, writes)

		extractCtx := buildExtractContext(fields, current)
		pool := extract.NewPool(extractCtx, fields, r.threadPoolSize, sorterOpts, r.idx.logger)
		sorters, err := pool.Run(handle.ctx, staged)
		if err != nil {
			return err
		}

		// replaced documents: extract their prior versions so the commit
		// can subtract the stale postings before applying the new ones,
		// and back their field counts out of the distribution.
		var removals *extract.Sorters
		dist := xform.Distribution
		if len(replays) > 0 {
			rpool := extract.NewPool(extractCtx, fields, r.threadPoolSize, sorterOpts, r.idx.logger)
			removals, err = rpool.Run(handle.ctx, replays)
			if err != nil {
				return err
			}
			for _, prior := range replays {
				for k := range prior.Flat {
					dist[k]--
				}
			}
		}

		sortEntries(newEntries)
		if err := ext.Rebuild(newEntries); err != nil {
			return err
		}

		if err := writer.Commit(r.txn, &writer.Batch{
			Fields:           fields,
			ExternalIDs:      ext,
			Sorters:          sorters,
			Removals:         removals,
			Documents:        writes,
			FacetedNumberIDs: facetedFieldIDs(extractCtx),
			DistributionDiff: dist,
			PrimaryKey:       resolvedPK,
		}); err != nil {
			return err
		}

		xform.ResetBatch()
		staged = staged[:0]
		writes = writes[:0]
		replays = replays[:0]
		newEntries = newEntries[:0]
		return nil
	}

	err = decodeDocuments(reader, r.format, func(raw map[string]any) error {
		select {
		case <-handle.ctx.Done():
			return common.NewUserError(common.ErrAborted, "update %d aborted", id)
		default:
		}

		if resolvedPK == "" {
			pk, err := documents.ResolvePrimaryKeyName(existingPK, raw, r.autogenerate)
			if err != nil {
				return err
			}
			resolvedPK = pk
		}
		extID, err := documents.ResolveDocumentID(resolvedPK, raw, r.autogenerate)
		if err != nil {
			return err
		}

		flat := documents.Flatten(raw)
		res, replay, err := xform.Run(transform.InputDocument{ExternalID: extID, Original: raw, Flat: flat})
		if err != nil {
			return err
		}
		if replay != nil {
			replays = append(replays, extract.StagedDocument{Docid: replay.Docid, Flat: replay.FlattenedDoc})
		}

		staged = append(staged, extract.StagedDocument{Docid: res.Docid, Flat: res.FlattenedDoc})
		writes = append(writes, writer.DocumentWrite{Docid: res.Docid, OBKV: res.OriginalOBKV})
		if res.IsNew {
			newEntries = append(newEntries, fieldmap.Entry{ExternalID: extID, Docid: res.Docid})
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Received++

		if progress != nil && result.Received%r.logEveryN == 0 {
			progress(result.Received, 0)
		}
		if len(staged) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		r.idx.updates.setState(id, UpdateFailed)
		return result, err
	}
	if err := flush(); err != nil {
		r.idx.updates.setState(id, UpdateFailed)
		return result, err
	}

	r.idx.touch()
	r.idx.updates.setState(id, UpdateProcessed)
	return result, nil
}

// dedupeByDocid keeps only the last staged version of each docid, in
// the order those last versions were staged. The transformer already folds every earlier
// occurrence into the last one's flat map and OBKV, so the earlier
// entries are fully superseded; extracting them too would union stale
// postings back in.
func dedupeByDocid(staged []extract.StagedDocument, writes []writer.DocumentWrite) ([]extract.StagedDocument, []writer.DocumentWrite) {
	last := make(map[uint32]int, len(staged))
	for i, d := range staged {
		last[d.Docid] = i
	}
	if len(last) == len(staged) {
		return staged, writes
	}
	outStaged := staged[:0]
	outWrites := writes[:0]
	for i := range staged {
		if last[staged[i].Docid] == i {
			outStaged = append(outStaged, staged[i])
			outWrites = append(outWrites, writes[i])
		}
	}
	return outStaged, outWrites
}

// sortEntries sorts ascending by external id, the order fieldmap.Rebuild
// requires for inserting into the FST.
func sortEntries(entries []fieldmap.Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].ExternalID > entries[j].ExternalID; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// decodeDocuments streams raw documents from reader per format, invoking
// fn once per document in order.
func decodeDocuments(reader io.Reader, format Format, fn func(map[string]any) error) error {
	switch format {
	case FormatJSON:
		return decodeJSONArray(reader, fn)
	case FormatJSONLines:
		return decodeJSONLines(reader, fn)
	case FormatCSV:
		return decodeCSV(reader, fn)
	default:
		return common.NewUserError(common.ErrInvalidSettings, "unknown document format")
	}
}

func decodeJSONArray(reader io.Reader, fn func(map[string]any) error) error {
	dec := indexAPI.NewDecoder(reader)
	if _, err := dec.Token(); err != nil {
		return common.NewUserError(common.ErrSerdeJSON, "expected a JSON array of documents: %v", err)
	}
	for dec.More() {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			return common.NewUserError(common.ErrSerdeJSON, "invalid document in array: %v", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func decodeJSONLines(reader io.Reader, fn func(map[string]any) error) error {
	dec := indexAPI.NewDecoder(reader)
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return common.NewUserError(common.ErrSerdeJSON, "invalid document line: %v", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func decodeCSV(reader io.Reader, fn func(map[string]any) error) error {
	cr := csv.NewReader(reader)
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return common.NewUserError(common.ErrCSV, "failed to read csv header: %v", err)
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return common.NewUserError(common.ErrCSV, "failed to read csv row: %v", err)
		}
		doc := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				doc[col] = row[i]
			}
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}
