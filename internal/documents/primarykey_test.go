package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/common"
)

func TestResolvePrimaryKeyNameUsesExisting(t *testing.T) {
	name, err := ResolvePrimaryKeyName("sku", map[string]any{"id": "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, "sku", name)
}

func TestResolvePrimaryKeyNameScansForIDSubstring(t *testing.T) {
	doc, err := Decode([]byte(`{"productId":"p1","title":"widget"}`))
	require.NoError(t, err)

	name, err := ResolvePrimaryKeyName("", doc, false)
	require.NoError(t, err)
	assert.Equal(t, "productId", name)
}

func TestResolvePrimaryKeyNameFallsBackToAutoGenerate(t *testing.T) {
	doc, err := Decode([]byte(`{"title":"widget"}`))
	require.NoError(t, err)

	name, err := ResolvePrimaryKeyName("", doc, true)
	require.NoError(t, err)
	assert.Equal(t, "id", name)
}

func TestResolvePrimaryKeyNameMissingFails(t *testing.T) {
	doc, err := Decode([]byte(`{"title":"widget"}`))
	require.NoError(t, err)

	_, err = ResolvePrimaryKeyName("", doc, false)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrMissingPrimaryKey, ue.Code)
}

func TestResolveDocumentIDFromTopLevel(t *testing.T) {
	doc, err := Decode([]byte(`{"id":"sku-42"}`))
	require.NoError(t, err)

	id, err := ResolveDocumentID("id", doc, false)
	require.NoError(t, err)
	assert.Equal(t, "sku-42", id)
}

func TestResolveDocumentIDCoercesInteger(t *testing.T) {
	doc, err := Decode([]byte(`{"id":42}`))
	require.NoError(t, err)

	id, err := ResolveDocumentID("id", doc, false)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestResolveDocumentIDNestedPath(t *testing.T) {
	doc, err := Decode([]byte(`{"meta":{"id":"nested-1"}}`))
	require.NoError(t, err)

	id, err := ResolveDocumentID("meta.id", doc, false)
	require.NoError(t, err)
	assert.Equal(t, "nested-1", id)
}

func TestResolveDocumentIDMissingAutoGenerates(t *testing.T) {
	doc, err := Decode([]byte(`{"title":"widget"}`))
	require.NoError(t, err)

	id, err := ResolveDocumentID("id", doc, true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestResolveDocumentIDMissingWithoutAutoGenerateFails(t *testing.T) {
	doc, err := Decode([]byte(`{"title":"widget"}`))
	require.NoError(t, err)

	_, err = ResolveDocumentID("id", doc, false)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrMissingDocumentID, ue.Code)
}

func TestResolveDocumentIDInvalidCharactersFails(t *testing.T) {
	doc, err := Decode([]byte(`{"id":"has a space"}`))
	require.NoError(t, err)

	_, err = ResolveDocumentID("id", doc, false)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrInvalidDocumentID, ue.Code)
}

func TestResolveDocumentIDAmbiguousAcrossBranchesFails(t *testing.T) {
	doc := map[string]any{
		"id": []any{"a", "b"},
	}
	_, err := ResolveDocumentID("id", doc, false)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrTooManyDocumentIds, ue.Code)
}
