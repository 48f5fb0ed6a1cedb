package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	counts   map[string]int
	synonyms map[string][][]string
}

func (f *fakeContext) WordDocumentCount(word string) (int, error) {
	return f.counts[word], nil
}

func (f *fakeContext) Synonyms(words []string) ([][]string, error) {
	if len(words) != 1 {
		return nil, nil
	}
	return f.synonyms[words[0]], nil
}

func TestBuildSingleWord(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{"hello": 10}}
	parts := Tokenize("hello", nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)

	or, ok := op.(*Or)
	require.True(t, ok, "single word with no alternatives should still be wrapped in Or")
	require.Len(t, or.Children, 1)
	q := or.Children[0].(*Query)
	require.Equal(t, "hello", q.Kind.Word)
	require.True(t, q.Prefix, "last bare word is prefix-eligible")
}

func TestBuildTypoBudgetByLength(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{}}
	for word, wantTypo := range map[string]uint8{
		"abcd":     0,
		"abcde":    1,
		"abcdefgh": 1,
		"abcdefghi": 2,
	} {
		parts := Tokenize(word, nil, 0)
		op, err := Build(ctx, parts, false)
		require.NoError(t, err)
		q := op.(*Or).Children[0].(*Query)
		require.Equal(t, wantTypo, q.Kind.Typo, "word %q", word)
		require.Equal(t, wantTypo > 0, q.Kind.Tolerant)
	}
}

func TestBuildPhrase(t *testing.T) {
	ctx := &fakeContext{}
	parts := Tokenize(`"new york"`, nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)
	ph, ok := op.(*Phrase)
	require.True(t, ok)
	require.Equal(t, []string{"new", "york"}, ph.Words)
}

func TestBuildSynonymAlternative(t *testing.T) {
	ctx := &fakeContext{
		counts:   map[string]int{},
		synonyms: map[string][][]string{"nyc": {{"nyc", "new york"}}},
	}
	parts := Tokenize("nyc", nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)
	or := op.(*Or)
	require.Len(t, or.Children, 2)
	syn := or.Children[1].(*Query)
	require.Equal(t, "new york", syn.Kind.Word)
	require.False(t, syn.Kind.Tolerant)
}

func TestBuildSplitAlternative(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{"new": 5, "york": 5}}
	parts := Tokenize("newyork", nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)
	or := op.(*Or)
	require.Len(t, or.Children, 2)
	ph := or.Children[1].(*Phrase)
	require.Equal(t, []string{"new", "york"}, ph.Words)
}

func TestBuildNgramAlternative(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{}}
	parts := Tokenize("new york", nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)
	and := op.(*And)
	require.Len(t, and.Children, 2)
	firstOr := and.Children[0].(*Or)
	require.Len(t, firstOr.Children, 2)
	bigram := firstOr.Children[1].(*Query)
	require.Equal(t, "newyork", bigram.Kind.Word)
	require.True(t, bigram.Kind.Tolerant, "concatenations are typo-corrected")
	require.Equal(t, uint8(1), bigram.Kind.Typo)
	require.True(t, bigram.Prefix, "prefix carries over from the window's last word")
}

func TestBuildTrigramAlternative(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{}}
	parts := Tokenize("new york city", nil, 0)
	op, err := Build(ctx, parts, false)
	require.NoError(t, err)
	and := op.(*And)
	require.Len(t, and.Children, 3)

	firstOr := and.Children[0].(*Or)
	require.Len(t, firstOr.Children, 3)
	bigram := firstOr.Children[1].(*Query)
	require.Equal(t, "newyork", bigram.Kind.Word)
	require.False(t, bigram.Prefix, "york is not the last query word")
	trigram := firstOr.Children[2].(*Query)
	require.Equal(t, "newyorkcity", trigram.Kind.Word)
	require.True(t, trigram.Kind.Tolerant)
	require.Equal(t, uint8(2), trigram.Kind.Typo)
	require.True(t, trigram.Prefix)

	secondOr := and.Children[1].(*Or)
	require.Len(t, secondOr.Children, 2)
	require.Equal(t, "yorkcity", secondOr.Children[1].(*Query).Kind.Word)
}

func TestBuildOptionalWordsTree(t *testing.T) {
	ctx := &fakeContext{counts: map[string]int{}}
	parts := Tokenize("red running shoes", nil, 0)
	op, err := Build(ctx, parts, true)
	require.NoError(t, err)
	or, ok := op.(*Or)
	require.True(t, ok)
	require.True(t, or.Optional)
	require.Len(t, or.Children, 3)

	full := or.Children[0].(*And)
	require.Len(t, full.Children, 3)
	smallest := or.Children[2].(*Or)
	_ = smallest // just the first word's alternatives, already unwrapped if single
}
