// Package transform implements the indexing pipeline's fan-in stage:
// resolve each incoming document's external id against
// the existing mapping, replay the prior OBKV when an update needs to be
// merged against it, and hand the canonical per-docid stream plus the
// updated field-id map and field distribution to the writer stage.
package transform

import (
	"sort"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

// Method selects replace-vs-update semantics for documents whose external
// id already exists.
type Method int

const (
	MethodReplace Method = iota
	MethodUpdate
)

// InputDocument is one document handed to Transform after primary-key
// resolution: its external id, its original (non-flattened) JSON tree,
// and its flattened dotted-path form.
type InputDocument struct {
	ExternalID string
	Original   map[string]any
	Flat       map[string]any
}

// ExistingLookup resolves an external id to its current internal docid
// and (if any) its previously stored original-form OBKV document, so
// MethodUpdate can merge the new document's fields against it.
type ExistingLookup interface {
	Lookup(externalID string) (docid uint32, obkv []byte, exists bool, err error)
}

// AvailableIDs hands out fresh internal docids, backed by the complement
// of the documents-ids bitmap.
type AvailableIDs interface {
	Next() uint32
}

// Result is one document's outcome after transform: its resolved docid,
// whether it's brand new, and its rebuilt original/flattened OBKV
// payloads ready for the database writer and for extraction respectively.
type Result struct {
	Docid         uint32
	ExternalID    string
	IsNew         bool
	OriginalOBKV  []byte
	FlattenedDoc  map[string]any
}

// Transformer runs the fan-in stage over one batch: field-id assignment,
// existing-id resolution, replace/update merge, and field distribution
// maintenance.
type Transformer struct {
	Fields    *fieldmap.FieldsMap
	Existing  ExistingLookup
	Available AvailableIDs
	Method    Method

	// Distribution accumulates "field name -> number of documents
	// containing it" across the batch; callers merge it into the
	// persisted field distribution at commit time.
	Distribution map[string]int

	seenInBatch map[string]uint32 // externalID -> docid, for intra-batch dedup

	// per-docid state of the latest version produced this batch, so a
	// second document with the same external id can merge against (or
	// supersede) the first without it ever touching disk.
	batchFlat map[uint32]map[string]any
	batchOBKV map[uint32][]byte
}

// New builds a Transformer. fields/existing/available are shared across
// the whole batch; Distribution starts empty and accumulates as Run is
// called.
func New(fields *fieldmap.FieldsMap, existing ExistingLookup, available AvailableIDs, method Method) *Transformer {
	return &Transformer{
		Fields:       fields,
		Existing:     existing,
		Available:    available,
		Method:       method,
		Distribution: map[string]int{},
		seenInBatch:  map[string]uint32{},
		batchFlat:    map[uint32]map[string]any{},
		batchOBKV:    map[uint32][]byte{},
	}
}

// ResetBatch clears the intra-batch state after the caller commits a
// flush, so a document re-ingested in a later flush resolves against the
// now-committed store (and gets replayed for removal) instead of being
// mistaken for an intra-batch duplicate. The accumulated Distribution is
// cleared too; callers merge it into the persisted distribution before
// resetting.
func (t *Transformer) ResetBatch() {
	t.Distribution = map[string]int{}
	t.seenInBatch = map[string]uint32{}
	t.batchFlat = map[uint32]map[string]any{}
	t.batchOBKV = map[uint32][]byte{}
}

// Run processes one document, returning its Result plus, if the document
// already existed before this batch, the replayed prior version's Result
// (so the caller can re-extract it and subtract its postings before
// inserting the merged version).
func (t *Transformer) Run(doc InputDocument) (result Result, replay *Result, err error) {
	docid, priorOBKV, existsOnDisk, err := t.resolveDocid(doc.ExternalID)
	if err != nil {
		return Result{}, nil, err
	}

	isNew := !existsOnDisk
	_, seen := t.seenInBatch[doc.ExternalID]
	if seen {
		// a later document in the same batch for an id already processed
		// this batch: it is never "new" from the replay's point of view,
		// and there is nothing to replay a second time.
		isNew = false
	} else if existsOnDisk {
		prior, rerr := t.replayExisting(doc.ExternalID, docid, priorOBKV)
		if rerr != nil {
			return Result{}, nil, rerr
		}
		replay = prior
	}
	t.seenInBatch[doc.ExternalID] = docid

	flat := doc.Flat
	if t.Method == MethodUpdate {
		if seen {
			flat = mergeFlat(t.batchFlat[docid], doc.Flat)
		} else if existsOnDisk && len(priorOBKV) > 0 {
			flat, err = t.mergeWithPrior(priorOBKV, doc.Flat)
			if err != nil {
				return Result{}, nil, err
			}
		}
	}

	obkv, err := documents.BuildOBKV(t.Fields, flatten(doc.Original))
	if err != nil {
		return Result{}, nil, err
	}
	if t.Method == MethodUpdate {
		if seen {
			obkv, err = mergeOriginalOBKV(t.batchOBKV[docid], obkv)
		} else if existsOnDisk && len(priorOBKV) > 0 {
			obkv, err = mergeOriginalOBKV(priorOBKV, obkv)
		}
		if err != nil {
			return Result{}, nil, err
		}
	}

	if seen {
		// the earlier version this batch is superseded, so its field
		// counts come back out before the final version's go in.
		for k := range t.batchFlat[docid] {
			t.Distribution[k]--
		}
	}
	t.recordDistribution(flat)
	t.batchFlat[docid] = flat
	t.batchOBKV[docid] = obkv

	return Result{
		Docid:        docid,
		ExternalID:   doc.ExternalID,
		IsNew:        isNew,
		OriginalOBKV: obkv,
		FlattenedDoc: flat,
	}, replay, nil
}

func (t *Transformer) resolveDocid(externalID string) (docid uint32, priorOBKV []byte, exists bool, err error) {
	if d, seen := t.seenInBatch[externalID]; seen {
		return d, nil, true, nil
	}
	d, obkv, exists, err := t.Existing.Lookup(externalID)
	if err != nil {
		return 0, nil, false, err
	}
	if exists {
		return d, obkv, true, nil
	}
	return t.Available.Next(), nil, false, nil
}

// replayExisting decodes the document's prior original-form OBKV back
// into flattened form so extraction can emit a "remove" pass for it ahead
// of the new version's "add" pass; the actual removal bookkeeping lives
// in the writer stage, which diffs old-vs-new bitmaps per key.
func (t *Transformer) replayExisting(externalID string, docid uint32, priorOBKV []byte) (*Result, error) {
	if len(priorOBKV) == 0 {
		return nil, nil
	}
	flat, err := decodeOBKVToFlat(t.Fields, priorOBKV)
	if err != nil {
		return nil, err
	}
	return &Result{
		Docid:        docid,
		ExternalID:   externalID,
		IsNew:        false,
		OriginalOBKV: priorOBKV,
		FlattenedDoc: flat,
	}, nil
}

// mergeWithPrior merges newFlat over the prior document's flattened form,
// field-wise, for MethodUpdate: fields present in newFlat win; fields
// only present in the prior document survive unchanged.
func (t *Transformer) mergeWithPrior(priorOBKV []byte, newFlat map[string]any) (map[string]any, error) {
	prior, err := decodeOBKVToFlat(t.Fields, priorOBKV)
	if err != nil {
		return nil, err
	}
	return mergeFlat(prior, newFlat), nil
}

func mergeFlat(prior, newFlat map[string]any) map[string]any {
	merged := make(map[string]any, len(prior)+len(newFlat))
	for k, v := range prior {
		merged[k] = v
	}
	for k, v := range newFlat {
		merged[k] = v
	}
	return merged
}

func decodeOBKVToFlat(fields *fieldmap.FieldsMap, obkv []byte) (map[string]any, error) {
	out := map[string]any{}
	r := codec.NewOBKVReader(obkv)
	var decodeErr error
	r.ForEach(func(fieldID uint16, value []byte) bool {
		name, ok := fields.Name(fieldID)
		if !ok {
			decodeErr = common.NewInternalError(common.ErrFieldIDMapMissingEntry, nil, "field id %d missing from fields map", fieldID)
			return false
		}
		var v any
		if err := decodeValue(value, &v); err != nil {
			decodeErr = err
			return false
		}
		out[name] = v
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

func decodeValue(raw []byte, out *any) error {
	v, err := documents.DecodeValue(raw)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

// mergeOriginalOBKV combines an existing original-form OBKV document with
// a newly built one, field-wise, newer wins (update semantics); for
// MethodReplace this function is never called: the latest version
// simply wins wholesale.
func mergeOriginalOBKV(prior, next []byte) ([]byte, error) {
	merged := map[uint16][]byte{}
	var order []uint16
	add := func(raw []byte) {
		r := codec.NewOBKVReader(raw)
		r.ForEach(func(fieldID uint16, value []byte) bool {
			if _, ok := merged[fieldID]; !ok {
				order = append(order, fieldID)
			}
			merged[fieldID] = value
			return true
		})
	}
	add(prior)
	add(next)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	w := &codec.OBKVWriter{}
	for _, fid := range order {
		w.Add(fid, merged[fid])
	}
	return w.Build(), nil
}

func (t *Transformer) recordDistribution(flat map[string]any) {
	for k := range flat {
		t.Distribution[k]++
	}
}

// flatten applies internal/documents.Flatten, exposed here under a local
// name so this file reads top-to-bottom without an extra import alias at
// every call site.
func flatten(doc map[string]any) map[string]any {
	return documents.Flatten(doc)
}
