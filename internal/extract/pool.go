package extract

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

// StagedDocument is one document already staged by internal/documents:
// its internal docid and its flattened field map.
type StagedDocument struct {
	Docid uint32
	Flat  map[string]any
}

// Pool runs extraction across a fixed number of worker goroutines, each
// with its own Sorters so no shared mutable state is touched while
// extracting. Run merges every worker's Sorters together at the end.
type Pool struct {
	ctx        *Context
	fields     *fieldmap.FieldsMap
	numWorkers int
	sorterOpts SorterOptions
	logger     arbor.ILogger
}

// NewPool builds a pool with numWorkers extraction goroutines, each
// sharing sorterOpts' memory budget (the caller is expected to have
// already divided a batch-wide ceiling across the four main sorter
// families).
func NewPool(extractCtx *Context, fields *fieldmap.FieldsMap, numWorkers int, sorterOpts SorterOptions, logger arbor.ILogger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{ctx: extractCtx, fields: fields, numWorkers: numWorkers, sorterOpts: sorterOpts, logger: logger}
}

// Run fans docs out across the pool's workers and returns one Sorters per
// database, each holding the union of every worker's output merged
// together.
func (p *Pool) Run(pctx context.Context, docs []StagedDocument) (*Sorters, error) {
	chunks := splitDocs(docs, p.numWorkers)
	perWorker := make([]*Sorters, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		i, chunk := i, chunk
		// SafeGo rather than SafeGoWithContext: the latter skips fn
		// entirely on an already-cancelled context, which would leave
		// wg.Done undone; the loop below checks pctx per document anyway.
		common.SafeGo(p.logger, "extract-worker", func() {
			defer wg.Done()
			s := NewSorters(p.sorterOpts)
			perWorker[i] = s
			for _, doc := range chunk {
				select {
				case <-pctx.Done():
					return
				default:
				}
				if err := Document(p.ctx, doc.Docid, doc.Flat, p.fields.Lookup, s); err != nil {
					errs[i] = err
					return
				}
			}
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := pctx.Err(); err != nil {
		// workers bailed mid-chunk; their sorters are incomplete and must
		// not be committed
		return nil, common.NewUserError(common.ErrAborted, "extraction aborted")
	}

	return mergeWorkerSorters(perWorker, p.sorterOpts)
}

func splitDocs(docs []StagedDocument, n int) [][]StagedDocument {
	if n < 1 {
		n = 1
	}
	chunks := make([][]StagedDocument, n)
	for i, d := range docs {
		chunks[i%n] = append(chunks[i%n], d)
	}
	// drop empty chunks so Run doesn't spin up idle goroutines for a
	// small batch split across many workers
	out := chunks[:0]
	for _, c := range chunks {
		if len(c) > 0 {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, nil)
	}
	return out
}

// mergeWorkerSorters combines each database's per-worker sorter into one
// by draining every worker's already-sorted stream through a fresh sorter
// sharing the same merge function, producing a single sorted, fully
// merged stream per database for the writer stage to consume.
func mergeWorkerSorters(workers []*Sorters, opts SorterOptions) (*Sorters, error) {
	combined := NewSorters(opts)

	if err := drainAll(workers, func(s *Sorters) finisher { return s.WordDocids }, combined.WordDocids); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.ExactWordDocids }, combined.ExactWordDocids); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.DocidWordPositions }, combined.DocidWordPositions); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.WordPositionLevel0 }, combined.WordPositionLevel0); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.WordPairProximity }, combined.WordPairProximity); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FieldWordCount }, combined.FieldWordCount); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FacetNumbers }, combined.FacetNumbers); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FacetStrings }, combined.FacetStrings); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FacetExists }, combined.FacetExists); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FacetNumberLevel0 }, combined.FacetNumberLevel0); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.FacetStringLevel0 }, combined.FacetStringLevel0); err != nil {
		return nil, err
	}
	if err := drainAll(workers, func(s *Sorters) finisher { return s.GeoPoints }, combined.GeoPoints); err != nil {
		return nil, err
	}

	return combined, nil
}

// finisher is the subset of *sorter.Sorter this package drains through.
type finisher interface {
	Finish(fn func(key, value []byte) error) error
}

type pushCloser interface {
	Push(key, value []byte) error
}

func drainAll(workers []*Sorters, pick func(*Sorters) finisher, dst pushCloser) error {
	for _, w := range workers {
		if w == nil {
			continue
		}
		src := pick(w)
		if err := src.Finish(func(key, value []byte) error {
			return dst.Push(key, value)
		}); err != nil {
			return err
		}
	}
	return nil
}
