package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

type fakeLookup struct {
	docs map[string]fakeDoc
}

type fakeDoc struct {
	docid uint32
	obkv  []byte
}

func (f *fakeLookup) Lookup(externalID string) (uint32, []byte, bool, error) {
	d, ok := f.docs[externalID]
	if !ok {
		return 0, nil, false, nil
	}
	return d.docid, d.obkv, true, nil
}

type seqIDs struct{ next uint32 }

func (s *seqIDs) Next() uint32 {
	id := s.next
	s.next++
	return id
}

func buildOBKV(t *testing.T, fields *fieldmap.FieldsMap, flat map[string]any) []byte {
	t.Helper()
	obkv, err := documents.BuildOBKV(fields, flat)
	require.NoError(t, err)
	return obkv
}

func newTransformer(method Method, existing map[string]fakeDoc) (*Transformer, *fieldmap.FieldsMap) {
	fields := fieldmap.New()
	return New(fields, &fakeLookup{docs: existing}, &seqIDs{}, method), fields
}

func TestTransformNewDocument(t *testing.T) {
	xform, _ := newTransformer(MethodReplace, nil)

	doc := map[string]any{"id": "a", "title": "hello"}
	res, replay, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)

	assert.True(t, res.IsNew)
	assert.Nil(t, replay)
	assert.Equal(t, uint32(0), res.Docid)
	assert.Equal(t, doc, res.FlattenedDoc)
	assert.Equal(t, map[string]int{"id": 1, "title": 1}, xform.Distribution)
}

func TestTransformReplaceExistingReplaysPrior(t *testing.T) {
	fields := fieldmap.New()
	prior := map[string]any{"id": "a", "title": "old", "extra": "gone"}
	priorOBKV := buildOBKV(t, fields, prior)
	xform := New(fields, &fakeLookup{docs: map[string]fakeDoc{"a": {docid: 5, obkv: priorOBKV}}}, &seqIDs{next: 6}, MethodReplace)

	doc := map[string]any{"id": "a", "title": "new"}
	res, replay, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)

	assert.False(t, res.IsNew)
	assert.Equal(t, uint32(5), res.Docid)
	assert.Equal(t, doc, res.FlattenedDoc)

	require.NotNil(t, replay)
	assert.Equal(t, uint32(5), replay.Docid)
	assert.Equal(t, prior, replay.FlattenedDoc)
}

func TestTransformUpdateMergesPriorFields(t *testing.T) {
	fields := fieldmap.New()
	prior := map[string]any{"id": "a", "title": "old", "extra": "kept"}
	priorOBKV := buildOBKV(t, fields, prior)
	xform := New(fields, &fakeLookup{docs: map[string]fakeDoc{"a": {docid: 5, obkv: priorOBKV}}}, &seqIDs{next: 6}, MethodUpdate)

	doc := map[string]any{"id": "a", "title": "new"}
	res, replay, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)

	require.NotNil(t, replay)
	assert.Equal(t, "new", res.FlattenedDoc["title"])
	assert.Equal(t, "kept", res.FlattenedDoc["extra"])
}

func TestTransformIntraBatchReplaceSupersedes(t *testing.T) {
	xform, _ := newTransformer(MethodReplace, nil)

	first := map[string]any{"id": "a", "title": "v1", "only_v1": true}
	res1, _, err := xform.Run(InputDocument{ExternalID: "a", Original: first, Flat: first})
	require.NoError(t, err)

	second := map[string]any{"id": "a", "title": "v2"}
	res2, replay, err := xform.Run(InputDocument{ExternalID: "a", Original: second, Flat: second})
	require.NoError(t, err)

	assert.Equal(t, res1.Docid, res2.Docid)
	assert.Nil(t, replay)
	assert.False(t, res2.IsNew)
	assert.Equal(t, second, res2.FlattenedDoc)

	// the superseded first version's counts come back out
	assert.Equal(t, map[string]int{"id": 1, "title": 1}, nonZero(xform.Distribution))
}

func TestTransformIntraBatchUpdateMerges(t *testing.T) {
	xform, _ := newTransformer(MethodUpdate, nil)

	first := map[string]any{"id": "a", "title": "v1", "only_v1": true}
	_, _, err := xform.Run(InputDocument{ExternalID: "a", Original: first, Flat: first})
	require.NoError(t, err)

	second := map[string]any{"id": "a", "title": "v2"}
	res2, _, err := xform.Run(InputDocument{ExternalID: "a", Original: second, Flat: second})
	require.NoError(t, err)

	assert.Equal(t, "v2", res2.FlattenedDoc["title"])
	assert.Equal(t, true, res2.FlattenedDoc["only_v1"])
}

func TestTransformResetBatchReplaysAgain(t *testing.T) {
	fields := fieldmap.New()
	prior := map[string]any{"id": "a", "title": "old"}
	priorOBKV := buildOBKV(t, fields, prior)
	xform := New(fields, &fakeLookup{docs: map[string]fakeDoc{"a": {docid: 5, obkv: priorOBKV}}}, &seqIDs{next: 6}, MethodReplace)

	doc := map[string]any{"id": "a", "title": "mid"}
	_, replay1, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)
	require.NotNil(t, replay1)

	// same id again without a reset: intra-batch duplicate, nothing to replay
	_, replay2, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)
	assert.Nil(t, replay2)

	xform.ResetBatch()
	assert.Empty(t, xform.Distribution)

	_, replay3, err := xform.Run(InputDocument{ExternalID: "a", Original: doc, Flat: doc})
	require.NoError(t, err)
	require.NotNil(t, replay3)
	assert.Equal(t, uint32(5), replay3.Docid)
}

func TestTransformAllocatesDistinctIDs(t *testing.T) {
	xform, _ := newTransformer(MethodReplace, nil)

	a := map[string]any{"id": "a"}
	resA, _, err := xform.Run(InputDocument{ExternalID: "a", Original: a, Flat: a})
	require.NoError(t, err)
	b := map[string]any{"id": "b"}
	resB, _, err := xform.Run(InputDocument{ExternalID: "b", Original: b, Flat: b})
	require.NoError(t, err)

	assert.NotEqual(t, resA.Docid, resB.Docid)
	assert.True(t, resA.IsNew)
	assert.True(t, resB.IsNew)
}

func nonZero(m map[string]int) map[string]int {
	out := map[string]int{}
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
