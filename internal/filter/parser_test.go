package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComparisons(t *testing.T) {
	cases := []struct {
		src  string
		want *Compare
	}{
		{`year = 2015`, &Compare{Field: "year", Op: OpEQ, Value: Value{Num: 2015, IsNumber: true}}},
		{`year != 2015`, &Compare{Field: "year", Op: OpNE, Value: Value{Num: 2015, IsNumber: true}}},
		{`year > 2015`, &Compare{Field: "year", Op: OpGT, Value: Value{Num: 2015, IsNumber: true}}},
		{`year >= 2015`, &Compare{Field: "year", Op: OpGE, Value: Value{Num: 2015, IsNumber: true}}},
		{`year < 2015`, &Compare{Field: "year", Op: OpLT, Value: Value{Num: 2015, IsNumber: true}}},
		{`year <= 2015`, &Compare{Field: "year", Op: OpLE, Value: Value{Num: 2015, IsNumber: true}}},
		{`genre = "sci-fi"`, &Compare{Field: "genre", Op: OpEQ, Value: Value{Str: "sci-fi"}}},
	}
	for _, c := range cases {
		expr, err := Parse(c.src)
		require.NoError(t, err, c.src)
		assert.Equal(t, c.want, expr, c.src)
	}
}

func TestParseAndOrNotPrecedence(t *testing.T) {
	// NOT binds tighter than AND/OR: "NOT a = 1 AND b = 2" is "(NOT a=1) AND b=2".
	expr, err := Parse(`NOT a = 1 AND b = 2`)
	require.NoError(t, err)
	and, ok := expr.(*And)
	require.True(t, ok)
	_, ok = and.Left.(*Not)
	assert.True(t, ok)
	_, ok = and.Right.(*Compare)
	assert.True(t, ok)
}

func TestParseRange(t *testing.T) {
	expr, err := Parse(`year 2000 TO 2015`)
	require.NoError(t, err)
	r, ok := expr.(*Range)
	require.True(t, ok)
	assert.Equal(t, "year", r.Field)
	assert.Equal(t, 2000.0, r.Low.Num)
	assert.Equal(t, 2015.0, r.High.Num)
}

func TestParseIn(t *testing.T) {
	expr, err := Parse(`genre IN ["sci-fi", "drama"]`)
	require.NoError(t, err)
	in, ok := expr.(*In)
	require.True(t, ok)
	assert.False(t, in.Negate)
	assert.Len(t, in.Values, 2)

	expr, err = Parse(`genre NOT IN ["sci-fi"]`)
	require.NoError(t, err)
	in, ok = expr.(*In)
	require.True(t, ok)
	assert.True(t, in.Negate)
}

func TestParseExists(t *testing.T) {
	expr, err := Parse(`tags EXISTS`)
	require.NoError(t, err)
	ex, ok := expr.(*Exists)
	require.True(t, ok)
	assert.False(t, ex.Negate)

	expr, err = Parse(`tags NOT EXISTS`)
	require.NoError(t, err)
	ex, ok = expr.(*Exists)
	require.True(t, ok)
	assert.True(t, ex.Negate)
}

func TestParseGeoRadius(t *testing.T) {
	expr, err := Parse(`_geoRadius(50.6299, 3.0569, 500000)`)
	require.NoError(t, err)
	g, ok := expr.(*GeoRadius)
	require.True(t, ok)
	assert.InDelta(t, 50.6299, g.Lat, 1e-9)
	assert.InDelta(t, 3.0569, g.Lng, 1e-9)
	assert.InDelta(t, 500000, g.Meters, 1e-9)
}

func TestParseParenthesesAndOr(t *testing.T) {
	expr, err := Parse(`(a = 1 OR b = 2) AND c = 3`)
	require.NoError(t, err)
	and, ok := expr.(*And)
	require.True(t, ok)
	_, ok = and.Left.(*Or)
	assert.True(t, ok)
}

func TestParseQuotedStringEscape(t *testing.T) {
	expr, err := Parse(`title = "it\'s \"great\""`)
	require.NoError(t, err)
	cmp, ok := expr.(*Compare)
	require.True(t, ok)
	assert.Equal(t, `it's "great"`, cmp.Value.Str)
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		``,
		`year =`,
		`year = 1 TO 2`,
		`(year = 1`,
		`year IN [1, 2`,
		`year BOGUS 1`,
	}
	for _, src := range cases {
		_, err := Parse(src)
		assert.Error(t, err, src)
	}
}
