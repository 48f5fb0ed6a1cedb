package extract

import (
	"github.com/lexidx/lexidx/internal/sorter"
)

// SorterOptions configures every sub-sorter an extraction worker owns;
// each sub-sorter takes MaxMemoryBytes as its own spill threshold, so
// callers pass a share of the batch's memory ceiling (see NewPool).
type SorterOptions struct {
	MaxMemoryBytes int64
	MaxNbChunks    int
	TmpDir         string
	CompressChunks bool
}

func newSub(opts SorterOptions, mergeFn sorter.MergeFunc) *sorter.Sorter {
	return sorter.New(mergeFn, sorter.Options{
		MaxMemoryBytes: opts.MaxMemoryBytes,
		MaxNbChunks:    opts.MaxNbChunks,
		TmpDir:         opts.TmpDir,
		CompressChunks: opts.CompressChunks,
	})
}

var (
	mergeRoaring                = sorter.MergeRoaring
	keepFirst                   = sorter.KeepFirst
	concatU32s                  = sorter.ConcatU32s
	keepFirstPrefixMergeRoaring = sorter.KeepFirstPrefixValueMergeRoaring
)
