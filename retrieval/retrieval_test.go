package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRetrieve(t *testing.T) {
	var got retrieveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"results":[
			{"text":"Go is a programming language.","score":0.91},
			{"text":"Gophers are rodents.","score":0.42}
		]}`)
	}))
	defer server.Close()

	snippets, err := NewClient(server.URL).Retrieve(context.Background(), "what is Go?", 2)
	require.NoError(t, err)

	assert.Equal(t, "what is Go?", got.Query)
	assert.Equal(t, 2, got.K)
	require.Len(t, snippets, 2)
	assert.Equal(t, "Go is a programming language.", snippets[0].Text)
	assert.InDelta(t, 0.91, snippets[0].Score, 0.0001)
}

func TestClientRetrieveServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type stubRetriever struct {
	snippets []Snippet
	err      error
	gotQuery string
	gotK     int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, k int) ([]Snippet, error) {
	s.gotQuery = query
	s.gotK = k
	return s.snippets, s.err
}

func TestAssemblerFormatsSnippets(t *testing.T) {
	retriever := &stubRetriever{snippets: []Snippet{
		{Text: "first snippet", Score: 0.9},
		{Text: "  second snippet\n", Score: 0.5},
	}}
	a := NewAssembler(retriever, 5)

	block, err := a.Assemble(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "[1] first snippet\n[2] second snippet", block)
	assert.Equal(t, "query", retriever.gotQuery)
	assert.Equal(t, 5, retriever.gotK)
}

func TestAssemblerEmptyResults(t *testing.T) {
	a := NewAssembler(&stubRetriever{}, 0)
	block, err := a.Assemble(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, block)
}

func TestAssemblerDefaultTopK(t *testing.T) {
	retriever := &stubRetriever{}
	a := NewAssembler(retriever, 0)
	_, err := a.Assemble(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, defaultTopK, retriever.gotK)
}

func TestAssemblerPropagatesRetrieverError(t *testing.T) {
	a := NewAssembler(&stubRetriever{err: assert.AnError}, 3)
	_, err := a.Assemble(context.Background(), "query")
	require.ErrorIs(t, err, assert.AnError)
}
