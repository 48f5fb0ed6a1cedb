// Package settings applies the index's configuration: primary key,
// searchable/displayed/filterable/sortable fields, criteria order,
// synonyms, stop-words, and the distinct field. A change
// that affects how documents are extracted schedules a full
// re-extraction from the stored OBKVs; everything else is metadata-only.
package settings

import (
	"context"
	"sort"

	"github.com/bytedance/sonic"
	validator "github.com/go-playground/validator/v10"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
	"github.com/lexidx/lexidx/internal/writer"
)

// Stored is the settings singleton's persisted form, kept in DB 1 behind
// codec.MainSettingsKey.
type Stored struct {
	PrimaryKey       string              `json:"primaryKey"`
	SearchableFields []string            `json:"searchableFields"`
	DisplayedFields  []string            `json:"displayedFields"`
	FilterableFields []string            `json:"filterableFields" validate:"dive,min=1"`
	SortableFields   []string            `json:"sortableFields" validate:"dive,min=1"`
	Criteria         []string            `json:"criteria" validate:"dive,min=1"`
	Synonyms         map[string][]string `json:"synonyms"`
	StopWords        []string            `json:"stopWords"`
	DistinctField    string              `json:"distinctField"`
}

// DefaultCriteria is the criterion order a fresh index (or a reset) uses.
func DefaultCriteria() []string {
	return []string{"words", "typo", "proximity", "attribute", "exactness"}
}

// defaultDisplayedFields ("*") means every field is returned.
func defaultDisplayedFields() []string { return []string{"*"} }

// Default returns a fresh index's settings.
func Default() Stored {
	return Stored{
		DisplayedFields: defaultDisplayedFields(),
		Criteria:        DefaultCriteria(),
	}
}

var validate = validator.New()

// Load reads the persisted settings, returning Default() for a brand new
// index that has never had settings saved.
func Load(txn *badger.Txn) (Stored, error) {
	blob, err := writer.LoadSettingsBlob(txn)
	if err != nil {
		return Stored{}, err
	}
	if len(blob) == 0 {
		return Default(), nil
	}
	var s Stored
	if err := sonic.Unmarshal(blob, &s); err != nil {
		return Stored{}, common.NewInternalError(common.ErrSerdeJSON, err, "failed to decode settings")
	}
	return s, nil
}

func save(txn *badger.Txn, s Stored) error {
	blob, err := sonic.Marshal(s)
	if err != nil {
		return common.NewInternalError(common.ErrSerdeJSON, err, "failed to encode settings")
	}
	return writer.SaveSettingsBlob(txn, blob)
}

// ProgressFunc reports re-extraction progress (processed documents out of
// total); called only when a layout-affecting change triggers one.
type ProgressFunc func(processed, total int)

// Applier accumulates setter calls and applies them atomically on
// Execute, one chainable Set/Reset pair per setting.
type Applier struct {
	txn     *badger.Txn
	fields  *fieldmap.FieldsMap
	current Stored
	pending Stored
}

// New builds an Applier seeded with the index's current settings.
func New(txn *badger.Txn, fields *fieldmap.FieldsMap) (*Applier, error) {
	current, err := Load(txn)
	if err != nil {
		return nil, err
	}
	return &Applier{txn: txn, fields: fields, current: current, pending: current}, nil
}

func (a *Applier) SetPrimaryKey(name string) *Applier     { a.pending.PrimaryKey = name; return a }
func (a *Applier) ResetPrimaryKey() *Applier               { a.pending.PrimaryKey = ""; return a }

func (a *Applier) SetSearchableFields(names []string) *Applier { a.pending.SearchableFields = names; return a }
func (a *Applier) ResetSearchableFields() *Applier              { a.pending.SearchableFields = nil; return a }

func (a *Applier) SetDisplayedFields(names []string) *Applier { a.pending.DisplayedFields = names; return a }
func (a *Applier) ResetDisplayedFields() *Applier {
	a.pending.DisplayedFields = defaultDisplayedFields()
	return a
}

func (a *Applier) SetFilterableFields(names []string) *Applier { a.pending.FilterableFields = names; return a }
func (a *Applier) ResetFilterableFields() *Applier              { a.pending.FilterableFields = nil; return a }

func (a *Applier) SetSortableFields(names []string) *Applier { a.pending.SortableFields = names; return a }
func (a *Applier) ResetSortableFields() *Applier               { a.pending.SortableFields = nil; return a }

func (a *Applier) SetCriteria(criteria []string) *Applier { a.pending.Criteria = criteria; return a }
func (a *Applier) ResetCriteria() *Applier                 { a.pending.Criteria = DefaultCriteria(); return a }

func (a *Applier) SetSynonyms(synonyms map[string][]string) *Applier { a.pending.Synonyms = synonyms; return a }
func (a *Applier) ResetSynonyms() *Applier                            { a.pending.Synonyms = nil; return a }

func (a *Applier) SetStopWords(words []string) *Applier { a.pending.StopWords = words; return a }
func (a *Applier) ResetStopWords() *Applier               { a.pending.StopWords = nil; return a }

func (a *Applier) SetDistinctField(name string) *Applier { a.pending.DistinctField = name; return a }
func (a *Applier) ResetDistinctField() *Applier            { a.pending.DistinctField = ""; return a }

// Execute validates the accumulated changes, persists them, and — when a
// layout-affecting field changed — replays every stored document through
// extraction with the new context, rebuilding every derived database.
func (a *Applier) Execute(progress ProgressFunc) error {
	if err := validate.Struct(a.pending); err != nil {
		return common.NewUserError(common.ErrInvalidSettings, "invalid settings: %v", err)
	}

	if a.pending.PrimaryKey != a.current.PrimaryKey && a.current.PrimaryKey != "" {
		hasDocs, err := indexHasDocuments(a.txn)
		if err != nil {
			return err
		}
		if hasDocs {
			return common.NewUserError(common.ErrPrimaryKeyCannotBeChanged,
				"primary key %q is already set; clear all documents before changing it", a.current.PrimaryKey)
		}
	}

	needsReextract := layoutAffecting(a.current, a.pending)

	if err := save(a.txn, a.pending); err != nil {
		return err
	}
	a.current = a.pending

	if !needsReextract {
		return nil
	}
	return reextract(a.txn, a.fields, a.pending, progress)
}

func indexHasDocuments(txn *badger.Txn) (bool, error) {
	blob, err := writer.LoadDocumentsIDsBitmap(txn)
	if err != nil {
		return false, err
	}
	if len(blob) == 0 {
		return false, nil
	}
	bm, err := codec.DecodeBitmap(blob)
	if err != nil {
		return false, err
	}
	return !bm.IsEmpty(), nil
}

// layoutAffecting reports whether any setting that changes how documents
// are extracted differs between old and new: primary key,
// searchable/filterable/sortable fields, the distinct field (extraction
// facets it), stop-words, or synonyms. Displayed fields are metadata-only.
func layoutAffecting(old, new Stored) bool {
	if old.PrimaryKey != new.PrimaryKey {
		return true
	}
	if old.DistinctField != new.DistinctField {
		return true
	}
	if !sameSet(old.SearchableFields, new.SearchableFields) {
		return true
	}
	if !sameSet(old.FilterableFields, new.FilterableFields) {
		return true
	}
	if !sameSet(old.SortableFields, new.SortableFields) {
		return true
	}
	if !sameSet(old.StopWords, new.StopWords) {
		return true
	}
	if !sameSynonyms(old.Synonyms, new.Synonyms) {
		return true
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func sameSynonyms(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !sameSet(v, ov) {
			return false
		}
	}
	return true
}

// reextract iterates every document in DB 14, reconstructs its flattened
// form, and replays it through a fresh extraction pass built from s's
// field configuration, after wiping every derived database so the replay
// starts from a clean slate.
func reextract(txn *badger.Txn, fields *fieldmap.FieldsMap, s Stored, progress ProgressFunc) error {
	blob, err := writer.LoadDocumentsIDsBitmap(txn)
	if err != nil {
		return err
	}
	var docids []uint32
	if len(blob) > 0 {
		bm, err := codec.DecodeBitmap(blob)
		if err != nil {
			return err
		}
		it := bm.Iterator()
		for it.HasNext() {
			docids = append(docids, it.Next())
		}
	}

	extractCtx := buildExtractContext(fields, s)

	staged := make([]extract.StagedDocument, 0, len(docids))
	for i, docid := range docids {
		obkv, err := writer.GetDocument(txn, docid)
		if err != nil {
			return err
		}
		flat, err := decodeOBKVToFlat(fields, obkv)
		if err != nil {
			return err
		}
		staged = append(staged, extract.StagedDocument{Docid: docid, Flat: flat})
		if progress != nil {
			progress(i+1, len(docids))
		}
	}

	if err := writer.ClearDerivedDatabases(txn); err != nil {
		return err
	}
	if err := writer.ClearDerivedMainKeys(txn); err != nil {
		return err
	}
	facetedIDs := facetedFieldIDs(extractCtx)
	if err := writer.ClearFacetExists(txn, facetedIDs); err != nil {
		return err
	}

	pool := extract.NewPool(extractCtx, fields, 1, extract.SorterOptions{MaxMemoryBytes: 256 << 20}, nil)
	sorters, err := pool.Run(context.Background(), staged)
	if err != nil {
		return err
	}

	return writer.Commit(txn, &writer.Batch{
		Fields:           fields,
		Sorters:          sorters,
		FacetedNumberIDs: facetedIDs,
	})
}

func facetedFieldIDs(ctx *extract.Context) []uint16 {
	ids := make([]uint16, 0, len(ctx.FacetedFieldIDs))
	for id := range ctx.FacetedFieldIDs {
		ids = append(ids, id)
	}
	return ids
}

func buildExtractContext(fields *fieldmap.FieldsMap, s Stored) *extract.Context {
	ctx := extract.NewContext()

	if s.PrimaryKey != "" {
		if id, ok := fields.Lookup(s.PrimaryKey); ok {
			ctx.PrimaryKeyFieldID = id
		}
	}

	for _, name := range s.SearchableFields {
		if id, ok := fields.Lookup(name); ok {
			ctx.SearchableFieldIDs[id] = true
		}
	}

	faceted := map[string]bool{}
	for _, name := range s.FilterableFields {
		faceted[name] = true
	}
	for _, name := range s.SortableFields {
		faceted[name] = true
	}
	if s.DistinctField != "" {
		faceted[s.DistinctField] = true
	}
	for name := range faceted {
		if id, ok := fields.Lookup(name); ok {
			ctx.FacetedFieldIDs[id] = true
		}
	}

	for _, w := range s.StopWords {
		ctx.StopWords[w] = true
	}

	if latID, ok := fields.Lookup("_geo.lat"); ok {
		if lngID, ok2 := fields.Lookup("_geo.lng"); ok2 {
			ctx.GeoLatFieldID = latID
			ctx.GeoLngFieldID = lngID
			ctx.HasGeoFields = true
		}
	}

	return ctx
}

// decodeOBKVToFlat turns a document's original-form OBKV blob back into a
// field-name-keyed map, the same shape internal/transform builds before
// extraction. Written independently here rather than exported from
// internal/transform, since that package's decoder is an implementation
// detail of merge replay, not a general OBKV-to-map utility.
func decodeOBKVToFlat(fields *fieldmap.FieldsMap, obkv []byte) (map[string]any, error) {
	flat := map[string]any{}
	r := codec.NewOBKVReader(obkv)
	var decodeErr error
	r.ForEach(func(fieldID uint16, value []byte) bool {
		name, ok := fields.Name(fieldID)
		if !ok {
			return true
		}
		v, err := documents.DecodeValue(value)
		if err != nil {
			decodeErr = err
			return false
		}
		flat[name] = v
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return flat, nil
}
