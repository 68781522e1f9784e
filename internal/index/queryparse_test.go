package index

import (
	"testing"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/document"
)

func TestParseQueryFieldTerm(t *testing.T) {
	q, err := ParseQuery("type:invoice", OperatorAnd)
	require.NoError(t, err)
	mq, ok := q.(*query.MatchQuery)
	require.True(t, ok)
	require.Equal(t, "type", mq.FieldVal)
	require.Equal(t, "invoice", mq.Match)
}

func TestParseQueryBareTermSearchesContent(t *testing.T) {
	q, err := ParseQuery("hello", OperatorAnd)
	require.NoError(t, err)
	mq, ok := q.(*query.MatchQuery)
	require.True(t, ok)
	require.Equal(t, ContentField, mq.FieldVal)
}

func TestParseQueryPhrase(t *testing.T) {
	q, err := ParseQuery(`name:"Anna Bauer"`, OperatorAnd)
	require.NoError(t, err)
	pq, ok := q.(*query.MatchPhraseQuery)
	require.True(t, ok)
	require.Equal(t, "name", pq.FieldVal)
	require.Equal(t, "Anna Bauer", pq.MatchPhrase)
}

func TestParseQueryWildcard(t *testing.T) {
	q, err := ParseQuery("title:inv*", OperatorAnd)
	require.NoError(t, err)
	wq, ok := q.(*query.WildcardQuery)
	require.True(t, ok)
	require.Equal(t, "title", wq.FieldVal)
	require.Equal(t, "inv*", wq.Wildcard)
}

func TestParseQueryEscapedWildcardIsLiteral(t *testing.T) {
	q, err := ParseQuery(`title:inv\*`, OperatorAnd)
	require.NoError(t, err)
	_, ok := q.(*query.MatchQuery)
	require.True(t, ok, "escaped wildcard must not produce a wildcard query")
}

func TestParseQueryAndBindsTighterThanOr(t *testing.T) {
	q, err := ParseQuery("a OR b AND c", OperatorAnd)
	require.NoError(t, err)
	dq, ok := q.(*query.DisjunctionQuery)
	require.True(t, ok)
	require.Len(t, dq.Disjuncts, 2)
	_, ok = dq.Disjuncts[1].(*query.ConjunctionQuery)
	require.True(t, ok, "right disjunct must be the AND group")
}

func TestParseQueryImplicitDefaultOperator(t *testing.T) {
	q, err := ParseQuery("a b", OperatorAnd)
	require.NoError(t, err)
	cq, ok := q.(*query.ConjunctionQuery)
	require.True(t, ok)
	require.Len(t, cq.Conjuncts, 2)

	q, err = ParseQuery("a b", OperatorOr)
	require.NoError(t, err)
	dq, ok := q.(*query.DisjunctionQuery)
	require.True(t, ok)
	require.Len(t, dq.Disjuncts, 2)
}

func TestParseQueryParenGrouping(t *testing.T) {
	q, err := ParseQuery(`($readaccess:ANONYMOUS OR $readaccess:"alice") AND (type:invoice)`, OperatorAnd)
	require.NoError(t, err)
	cq, ok := q.(*query.ConjunctionQuery)
	require.True(t, ok)
	require.Len(t, cq.Conjuncts, 2)
	_, ok = cq.Conjuncts[0].(*query.DisjunctionQuery)
	require.True(t, ok)
}

func TestParseQuerySyntaxErrors(t *testing.T) {
	for _, bad := range []string{
		"(a OR b",
		"a AND",
		`name:"unterminated`,
		"field:",
		") stray",
		"",
	} {
		_, err := ParseQuery(bad, OperatorAnd)
		require.Error(t, err, "query %q must fail", bad)
		require.True(t, document.IsQueryNotUnderstandable(err), "query %q must yield a query error, got %v", bad, err)
	}
}

func TestParseQueryFieldNameLowercased(t *testing.T) {
	q, err := ParseQuery("Type:invoice", OperatorAnd)
	require.NoError(t, err)
	mq := q.(*query.MatchQuery)
	require.Equal(t, "type", mq.FieldVal)
}
