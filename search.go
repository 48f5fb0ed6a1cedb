package lexidx

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/criteria"
	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/filter"
	"github.com/lexidx/lexidx/internal/query"
	"github.com/lexidx/lexidx/internal/settings"
	"github.com/lexidx/lexidx/internal/writer"
)

// geoIndexLevel mirrors internal/writer's unexported constant of the
// same name; duplicated here for the same reason internal/criteria
// duplicates its own query-time constants (cross-package independence).
const geoIndexLevel = 16

// CriterionImplementationStrategy selects which implementation the
// Attribute criterion uses. Only the Iterative strategy is actually
// implemented (see internal/criteria.Attribute's doc comment); the
// others are accepted so callers can pin a strategy up front, and
// silently behave like Auto. See DESIGN.md.
type CriterionImplementationStrategy int

const (
	Auto CriterionImplementationStrategy = iota
	OnlySetBased
	OnlyIterative
)

const (
	defaultWordsLimit = 10
	defaultLimit      = 20
)

// Hit is one projected search result: a document's internal id alongside
// its displayed fields.
type Hit struct {
	Docid  uint32
	Fields map[string]any
}

// SearchResult is Search.Execute's return value.
type SearchResult struct {
	Candidates          *roaring.Bitmap
	DocumentsIds        []uint32
	Hits                []Hit
	FoundWords          map[string]bool
	MatchingWords       map[string]bool
	EstimatedTotalHits  int
	ExhaustiveTotalHits bool
}

// Search builds one query against a read transaction's snapshot,
// configured by chainable setters, and run once via Execute.
type Search struct {
	idx *Index
	txn *Txn

	query          string
	filterExpr     string
	sortField      string
	sortDesc       bool
	hasSort        bool
	offset         int
	limit          int
	distinctField  string
	hasDistinct    bool
	authorizeTypos bool
	optionalWords  bool
	strategy       CriterionImplementationStrategy
	wordsLimit     int
	exhaustive     bool
}

// NewSearch builds a request seeded with the engine's defaults:
// typo-tolerance on, optional-words off, a page of defaultLimit starting
// at offset 0, no filter/sort/distinct override.
func (idx *Index) NewSearch(txn *Txn) *Search {
	return &Search{
		idx:            idx,
		txn:            txn,
		limit:          defaultLimit,
		authorizeTypos: true,
		wordsLimit:     defaultWordsLimit,
	}
}

func (s *Search) Query(q string) *Search     { s.query = q; return s }
func (s *Search) Filter(expr string) *Search { s.filterExpr = expr; return s }

// Sort overrides the ranking chain's trailing sort criterion for this one
// query, independent of the settings-configured criteria order.
func (s *Search) Sort(field string, descending bool) *Search {
	s.sortField, s.sortDesc, s.hasSort = field, descending, true
	return s
}
func (s *Search) Offset(n int) *Search { s.offset = n; return s }
func (s *Search) Limit(n int) *Search  { s.limit = n; return s }
func (s *Search) Distinct(field string) *Search {
	s.distinctField, s.hasDistinct = field, field != ""
	return s
}
func (s *Search) AuthorizeTypos(v bool) *Search { s.authorizeTypos = v; return s }
func (s *Search) OptionalWords(v bool) *Search  { s.optionalWords = v; return s }
func (s *Search) CriterionImplementationStrategy(strategy CriterionImplementationStrategy) *Search {
	s.strategy = strategy
	return s
}
func (s *Search) WordsLimit(n int) *Search            { s.wordsLimit = n; return s }
func (s *Search) ExhaustiveNumberHits(v bool) *Search { s.exhaustive = v; return s }

// Execute tokenizes and resolves the query, intersects it with the parsed
// filter (if any), ranks the result through the configured criterion
// chain, and projects the requested page into display-ready Hits.
func (s *Search) Execute() (SearchResult, error) {
	fields, err := writer.LoadFieldsMap(s.txn)
	if err != nil {
		return SearchResult{}, err
	}
	stored, err := settings.Load(s.txn)
	if err != nil {
		return SearchResult{}, err
	}

	searchableIDs := make([]uint16, 0, len(stored.SearchableFields))
	if len(stored.SearchableFields) == 0 {
		searchableIDs = fields.IDs()
	} else {
		for _, name := range stored.SearchableFields {
			if id, ok := fields.Lookup(name); ok {
				searchableIDs = append(searchableIDs, id)
			}
		}
	}

	stopWords := map[string]bool{}
	for _, w := range stored.StopWords {
		stopWords[w] = true
	}
	synonyms := map[string][][]string{}
	for word, group := range stored.Synonyms {
		synonyms[word] = [][]string{group}
	}

	ctx := criteria.NewContext(s.txn, fields, searchableIDs, stopWords, synonyms)

	parts := query.Tokenize(s.query, stopWords, s.wordsLimit)
	tree, err := query.Build(ctx, parts, s.optionalWords)
	if err != nil {
		return SearchResult{}, err
	}
	if !s.authorizeTypos {
		disableTypos(tree)
	}

	universe, err := criteria.AllDocids(s.txn)
	if err != nil {
		return SearchResult{}, err
	}
	candidates, err := criteria.ResolveQueryTree(ctx, tree, universe)
	if err != nil {
		return SearchResult{}, err
	}

	if s.filterExpr != "" {
		filtered, err := s.evalFilter(fields, stored)
		if err != nil {
			return SearchResult{}, err
		}
		candidates = roaring.And(candidates, filtered)
	}

	criteriaNames := stored.Criteria
	if s.hasSort {
		criteriaNames = appendSortCriterion(stored.Criteria, s.sortField, s.sortDesc)
	}
	distinctField := stored.DistinctField
	if s.hasDistinct {
		distinctField = s.distinctField
	}
	stages, err := criteria.Build(criteria.ChainOptions{Criteria: criteriaNames, DistinctField: distinctField}, fields)
	if err != nil {
		return SearchResult{}, err
	}

	ordered, err := criteria.Run(ctx, stages, criteria.Bucket{Op: tree, Ids: candidates})
	if err != nil {
		return SearchResult{}, err
	}

	page := paginate(ordered, s.offset, s.limit)
	hits, err := s.projectHits(fields, stored.DisplayedFields, page)
	if err != nil {
		return SearchResult{}, err
	}

	found, matching := collectQueryWords(tree)

	return SearchResult{
		Candidates:          candidates,
		DocumentsIds:        page,
		Hits:                hits,
		FoundWords:          found,
		MatchingWords:       matching,
		EstimatedTotalHits:  len(ordered),
		ExhaustiveTotalHits: s.exhaustive,
	}, nil
}

func (s *Search) evalFilter(fields *fieldmap.FieldsMap, stored settings.Stored) (*roaring.Bitmap, error) {
	expr, err := filter.Parse(s.filterExpr)
	if err != nil {
		return nil, err
	}
	filterableIDs := map[uint16]bool{}
	for _, name := range append(append([]string{}, stored.FilterableFields...), stored.SortableFields...) {
		if id, ok := fields.Lookup(name); ok {
			filterableIDs[id] = true
		}
	}
	eval := &filter.Evaluator{
		Txn:                s.txn,
		Fields:             fields,
		FilterableFieldIDs: filterableIDs,
		FilterableNames:    stored.FilterableFields,
		GeoIndexLevel:      geoIndexLevel,
	}
	return eval.Eval(expr)
}

func paginate(ordered []uint32, offset, limit int) []uint32 {
	if offset >= len(ordered) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(ordered) {
		end = len(ordered)
	}
	return append([]uint32{}, ordered[offset:end]...)
}

// disableTypos walks the query tree and clamps every tolerant leaf to an
// exact match, implementing Search.AuthorizeTypos(false): typo tolerance
// is an evaluation-time concern (internal/query bakes the typo budget
// into the tree at build time per word length), so turning it off for
// one query mutates the already-built tree rather than threading a flag
// through the builder.
func disableTypos(op query.Operation) {
	switch n := op.(type) {
	case *query.And:
		for _, c := range n.Children {
			disableTypos(c)
		}
	case *query.Or:
		for _, c := range n.Children {
			disableTypos(c)
		}
	case *query.Query:
		if n.Kind.Tolerant {
			n.Kind.Tolerant = false
			n.Kind.Typo = 0
		}
	}
}

// appendSortCriterion builds the criteria list for a per-query Sort
// override: every configured criterion except existing sort entries, in
// their configured order, followed by the requested sort.
func appendSortCriterion(configured []string, field string, descending bool) []string {
	out := make([]string, 0, len(configured)+1)
	for _, name := range configured {
		if isSortCriterion(name) {
			continue
		}
		out = append(out, name)
	}
	dir := "asc"
	if descending {
		dir = "desc"
	}
	return append(out, dir+"("+field+")")
}

func isSortCriterion(name string) bool {
	return len(name) > 4 && (name[:4] == "asc(" || name[:5] == "desc(")
}

// collectQueryWords returns the set of literal words the query tree
// could ever match (FoundWords) and, identically for this
// implementation, the subset actually exercised during resolution
// (MatchingWords): without per-document match tracking in the criterion
// chain the two coincide. See DESIGN.md.
func collectQueryWords(op query.Operation) (found, matching map[string]bool) {
	found = map[string]bool{}
	var walk func(query.Operation)
	walk = func(o query.Operation) {
		switch n := o.(type) {
		case *query.And:
			for _, c := range n.Children {
				walk(c)
			}
		case *query.Or:
			for _, c := range n.Children {
				walk(c)
			}
		case *query.Phrase:
			for _, w := range n.Words {
				found[w] = true
			}
		case *query.Query:
			found[n.Kind.Word] = true
		}
	}
	walk(op)
	matching = found
	return found, matching
}

// documentDisplayed filters a decoded document down to the configured
// displayed fields; "*" (or an empty list) means every field.
func documentDisplayed(doc map[string]any, displayed []string) map[string]any {
	if len(displayed) == 0 || (len(displayed) == 1 && displayed[0] == "*") {
		return doc
	}
	out := make(map[string]any, len(displayed))
	for _, name := range displayed {
		if v, ok := doc[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (s *Search) projectHits(fields *fieldmap.FieldsMap, displayed []string, docids []uint32) ([]Hit, error) {
	hits := make([]Hit, 0, len(docids))
	for _, docid := range docids {
		obkv, err := writer.GetDocument(s.txn, docid)
		if err != nil {
			return nil, err
		}
		flat, err := decodeDisplayDocument(fields, obkv)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Docid: docid, Fields: documentDisplayed(flat, displayed)})
	}
	return hits, nil
}

func decodeDisplayDocument(fields *fieldmap.FieldsMap, obkv []byte) (map[string]any, error) {
	doc := map[string]any{}
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
		doc[name] = v
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return doc, nil
}
