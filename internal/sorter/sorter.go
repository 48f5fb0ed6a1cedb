// Package sorter implements the external-merge spillable sorter every
// extraction stage funnels its (key, value) pairs through: buffer in
// memory up to a budget, spill a sorted/pre-merged run to a temporary file
// on overflow, and k-way merge every run (plus whatever's left in memory)
// at Finish, applying the caller's merge function across key collisions.
package sorter

import (
	"bufio"
	"compress/gzip"
	"container/heap"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/lexidx/lexidx/internal/common"
)

// MergeFunc combines every value recorded for one key, in the order they
// were pushed, into the single value stored downstream.
type MergeFunc func(values [][]byte) ([]byte, error)

// Options configures a Sorter.
type Options struct {
	MaxMemoryBytes int64  // spill when the in-memory buffer exceeds this
	MaxNbChunks    int    // force an interim merge after this many spilled runs
	TmpDir         string // directory for spill files
	CompressChunks bool   // gzip spill files
}

type kv struct {
	key   []byte
	value []byte
}

// Sorter accumulates (key, value) pairs and produces them back out in
// ascending key order, merging colliding keys with MergeFunc.
type Sorter struct {
	mergeFn MergeFunc
	opts    Options

	buf     []kv
	bufSize int64

	runs      []*run
	tmpFiles  []string
	closeOnce bool
}

// New creates a sorter. mergeFn is called once per distinct key at Finish
// time (and during interim run merges) with every value recorded for that
// key, oldest first.
func New(mergeFn MergeFunc, opts Options) *Sorter {
	if opts.MaxMemoryBytes <= 0 {
		opts.MaxMemoryBytes = 64 << 20
	}
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	return &Sorter{mergeFn: mergeFn, opts: opts}
}

// Push records one (key, value) pair. Values must be independently
// copyable; Push copies both key and value so the caller's buffers can be
// reused immediately.
func (s *Sorter) Push(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	s.buf = append(s.buf, kv{key: k, value: v})
	s.bufSize += int64(len(k) + len(v))
	if s.bufSize >= s.opts.MaxMemoryBytes {
		return s.spill()
	}
	return nil
}

// spill sorts and pre-merges the in-memory buffer, writes it as one run to
// a temporary file, and clears the buffer.
func (s *Sorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	sort.SliceStable(s.buf, func(i, j int) bool { return string(s.buf[i].key) < string(s.buf[j].key) })
	merged, err := s.mergeAdjacent(s.buf)
	if err != nil {
		return err
	}

	path := filepath.Join(s.opts.TmpDir, "lexidx-sort-"+uuid.New().String()+".run")
	if err := writeRunFile(path, merged, s.opts.CompressChunks); err != nil {
		return err
	}
	s.tmpFiles = append(s.tmpFiles, path)

	r, err := openRunFile(path, s.opts.CompressChunks)
	if err != nil {
		return err
	}
	s.runs = append(s.runs, r)

	s.buf = nil
	s.bufSize = 0

	if s.opts.MaxNbChunks > 0 && len(s.runs) > s.opts.MaxNbChunks {
		return s.compactRuns()
	}
	return nil
}

// mergeAdjacent collapses runs of equal adjacent keys in a sorted slice
// using mergeFn.
func (s *Sorter) mergeAdjacent(sorted []kv) ([]kv, error) {
	if len(sorted) == 0 {
		return nil, nil
	}
	out := make([]kv, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && string(sorted[j].key) == string(sorted[i].key) {
			j++
		}
		if j == i+1 {
			out = append(out, sorted[i])
		} else {
			values := make([][]byte, 0, j-i)
			for k := i; k < j; k++ {
				values = append(values, sorted[k].value)
			}
			merged, err := s.mergeFn(values)
			if err != nil {
				return nil, err
			}
			out = append(out, kv{key: sorted[i].key, value: merged})
		}
		i = j
	}
	return out, nil
}

// compactRuns merges every spilled run on disk into one, keeping the
// spilled-file count bounded regardless of how many Push/spill cycles a
// large batch triggers.
func (s *Sorter) compactRuns() error {
	merged, err := s.mergeRuns(s.runs)
	if err != nil {
		return err
	}
	for _, r := range s.runs {
		r.close()
	}
	for _, path := range s.tmpFiles {
		os.Remove(path)
	}
	s.tmpFiles = nil
	s.runs = nil

	path := filepath.Join(s.opts.TmpDir, "lexidx-sort-"+uuid.New().String()+".run")
	if err := writeRunFile(path, merged, s.opts.CompressChunks); err != nil {
		return err
	}
	s.tmpFiles = []string{path}
	r, err := openRunFile(path, s.opts.CompressChunks)
	if err != nil {
		return err
	}
	s.runs = []*run{r}
	return nil
}

// mergeRuns performs a k-way merge across every open run, fully
// materializing the result (used only for interim compaction, where the
// result is immediately re-spilled).
func (s *Sorter) mergeRuns(runs []*run) ([]kv, error) {
	readers := make([]*run, len(runs))
	copy(readers, runs)
	for _, r := range readers {
		if err := r.reset(); err != nil {
			return nil, err
		}
	}

	var out []kv
	err := kWayMerge(readers, s.mergeFn, func(k, v []byte) error {
		out = append(out, kv{key: k, value: v})
		return nil
	})
	return out, err
}

// Finish performs the final k-way merge across every spilled run plus
// whatever remains in the in-memory buffer, calling fn once per distinct
// key in ascending order. Finish consumes the sorter; it must not be
// reused afterward.
func (s *Sorter) Finish(fn func(key, value []byte) error) error {
	defer s.Close()

	sort.SliceStable(s.buf, func(i, j int) bool { return string(s.buf[i].key) < string(s.buf[j].key) })
	memRun, err := s.mergeAdjacent(s.buf)
	if err != nil {
		return err
	}

	if len(s.runs) == 0 {
		for _, e := range memRun {
			if err := fn(e.key, e.value); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range s.runs {
		if err := r.reset(); err != nil {
			return err
		}
	}

	sources := make([]mergeSource, 0, len(s.runs)+1)
	for _, r := range s.runs {
		sources = append(sources, r)
	}
	if len(memRun) > 0 {
		sources = append(sources, &memRunSource{entries: memRun})
	}

	return kWayMergeSources(sources, s.mergeFn, fn)
}

// Close releases every temporary spill file. Safe to call more than once.
func (s *Sorter) Close() {
	if s.closeOnce {
		return
	}
	s.closeOnce = true
	for _, r := range s.runs {
		r.close()
	}
	for _, path := range s.tmpFiles {
		os.Remove(path)
	}
}

// --- run file format: a sequence of (keylen:u32 LE, key, vallen:u32 LE, value) records ---

func writeRunFile(path string, entries []kv, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return common.NewInternalError(common.ErrIoError, err, "failed to create sorter spill file")
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriter(w)

	var lenBuf [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.key)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(e.key); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.value)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(e.value); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	return nil
}

// run is one spilled, sorted, pre-merged file.
type run struct {
	path     string
	compress bool

	f  *os.File
	gz *gzip.Reader
	br *bufio.Reader

	cur     kv
	hasNext bool
}

func openRunFile(path string, compress bool) (*run, error) {
	r := &run{path: path, compress: compress}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// reset rewinds the run to its first record, used both on initial open and
// before every merge pass that re-reads it.
func (r *run) reset() error {
	if r.gz != nil {
		r.gz.Close()
		r.gz = nil
	}
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return common.NewInternalError(common.ErrIoError, err, "failed to reopen sorter spill file")
	}
	r.f = f

	var reader io.Reader = f
	if r.compress {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return common.NewInternalError(common.ErrIoError, err, "failed to decompress sorter spill file")
		}
		r.gz = gz
		reader = gz
	}
	r.br = bufio.NewReader(reader)
	return r.advance()
}

func (r *run) advance() error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		if err == io.EOF {
			r.hasNext = false
			return nil
		}
		return common.NewInternalError(common.ErrIoError, err, "failed to read sorter spill record")
	}
	keyLen := binary.LittleEndian.Uint32(lenBuf[:])
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r.br, key); err != nil {
		return common.NewInternalError(common.ErrIoError, err, "truncated sorter spill record")
	}
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return common.NewInternalError(common.ErrIoError, err, "truncated sorter spill record")
	}
	valLen := binary.LittleEndian.Uint32(lenBuf[:])
	val := make([]byte, valLen)
	if _, err := io.ReadFull(r.br, val); err != nil {
		return common.NewInternalError(common.ErrIoError, err, "truncated sorter spill record")
	}
	r.cur = kv{key: key, value: val}
	r.hasNext = true
	return nil
}

func (r *run) close() {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.f != nil {
		r.f.Close()
	}
}

// mergeSource abstracts over a run file and the leftover in-memory buffer
// so kWayMergeSources can treat them uniformly.
type mergeSource interface {
	peek() (kv, bool)
	advance() error
}

func (r *run) peek() (kv, bool) { return r.cur, r.hasNext }

type memRunSource struct {
	entries []kv
	idx     int
}

func (m *memRunSource) peek() (kv, bool) {
	if m.idx >= len(m.entries) {
		return kv{}, false
	}
	return m.entries[m.idx], true
}

func (m *memRunSource) advance() error {
	m.idx++
	return nil
}

// heapItem is one entry in the k-way merge's min-heap.
type heapItem struct {
	kv       kv
	srcIndex int
}

type kvHeap []heapItem

func (h kvHeap) Len() int            { return len(h) }
func (h kvHeap) Less(i, j int) bool {
	if ki, kj := string(h[i].kv.key), string(h[j].kv.key); ki != kj {
		return ki < kj
	}
	return h[i].srcIndex < h[j].srcIndex // equal keys: older source first
}
func (h kvHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *kvHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *kvHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kWayMergeSources merges every source in ascending key order, applying
// mergeFn across values sharing a key regardless of which source(s) they
// came from, and calls fn once per distinct key.
func kWayMergeSources(sources []mergeSource, mergeFn MergeFunc, fn func(key, value []byte) error) error {
	h := &kvHeap{}
	heap.Init(h)
	for i, s := range sources {
		if kv, ok := s.peek(); ok {
			heap.Push(h, heapItem{kv: kv, srcIndex: i})
		}
	}

	for h.Len() > 0 {
		first := heap.Pop(h).(heapItem)
		key := first.kv.key
		values := [][]byte{first.kv.value}

		if err := sources[first.srcIndex].advance(); err != nil {
			return err
		}
		if kv, ok := sources[first.srcIndex].peek(); ok {
			heap.Push(h, heapItem{kv: kv, srcIndex: first.srcIndex})
		}

		for h.Len() > 0 && string((*h)[0].kv.key) == string(key) {
			next := heap.Pop(h).(heapItem)
			values = append(values, next.kv.value)
			if err := sources[next.srcIndex].advance(); err != nil {
				return err
			}
			if kv, ok := sources[next.srcIndex].peek(); ok {
				heap.Push(h, heapItem{kv: kv, srcIndex: next.srcIndex})
			}
		}

		value := values[0]
		if len(values) > 1 {
			merged, err := mergeFn(values)
			if err != nil {
				return err
			}
			value = merged
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// kWayMerge is kWayMergeSources specialised for a slice of *run, used by
// interim compaction.
func kWayMerge(runs []*run, mergeFn MergeFunc, fn func(key, value []byte) error) error {
	sources := make([]mergeSource, len(runs))
	for i, r := range runs {
		sources[i] = r
	}
	return kWayMergeSources(sources, mergeFn, fn)
}
