package exa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

func TestSearchUnavailableWhenNoAPIKey(t *testing.T) {
	a := New(http.DefaultClient, Config{})
	results, err := a.Search(context.Background(), "q", types.DateRange{}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "testkey", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"results":[{"id":"1","url":"https://example.com","title":"Example","publishedDate":"2021-06-15T00:00:00Z","text":"hello","score":0.9}]}`))
	}))
	defer srv.Close()

	a := New(srv.Client(), Config{APIKey: "testkey"})
	a.apiBase = srv.URL
	results, err := a.Search(context.Background(), "example", types.DateRange{Start: "2021-01-01", End: "2021-12-31"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "hello", results[0].Text)
}

func TestFetchDerivesTimestampFromPublishedDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"1","url":"https://example.com","publishedDate":"2021-06-15T00:00:00Z","text":"hello"}]}`))
	}))
	defer srv.Close()

	a := New(srv.Client(), Config{APIKey: "testkey"})
	a.apiBase = srv.URL
	res, err := a.Fetch(context.Background(), "https://example.com", types.DateRange{})
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, "20210615000000", res.Timestamp)
}
