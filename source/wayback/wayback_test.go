package wayback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	a := New(srv.Client(), cfg)
	a.cdxAPI = srv.URL
	a.baseURL = srv.URL
	a.saveAPI = srv.URL
	return a, srv
}

func TestListSnapshotsEmptyURLIsPrecondition(t *testing.T) {
	a := New(http.DefaultClient, DefaultConfig())
	_, err := a.ListSnapshots(context.Background(), "", types.DateRange{}, 10)
	require.Error(t, err)
}

func TestListSnapshotsInvalidDateRangeIsPrecondition(t *testing.T) {
	a := New(http.DefaultClient, DefaultConfig())
	_, err := a.ListSnapshots(context.Background(), "https://example.com", types.DateRange{Start: "2024-12-31", End: "2024-01-01"}, 10)
	require.Error(t, err)
}

func TestQueryCDXParsesRowsSkippingHeader(t *testing.T) {
	payload := [][]string{
		{"timestamp", "original", "statuscode", "mimetype", "digest"},
		{"20240115120000", "https://example.com/", "200", "text/html", "abc123"},
		{"20230101000000", "https://example.com/", "200", "text/html", "def456"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	rows, err := a.queryCDX(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "20240115120000", rows[0].Timestamp)
	require.Equal(t, "abc123", rows[0].Digest)
}

func TestQueryCDXEmptyWhenOnlyHeader(t *testing.T) {
	payload := [][]string{{"timestamp", "original", "statuscode", "mimetype", "digest"}}
	body, _ := json.Marshal(payload)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	})

	rows, err := a.queryCDX(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestQueryCDXNonOKStatus(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := a.queryCDX(context.Background(), nil)
	require.Error(t, err)
}

func TestSortSnapshotsDesc(t *testing.T) {
	snaps := []types.Snapshot{
		{Timestamp: "20200101000000"},
		{Timestamp: "20230101000000"},
		{Timestamp: "20100101000000"},
	}
	sortSnapshotsDesc(snaps)
	require.Equal(t, "20230101000000", snaps[0].Timestamp)
	require.Equal(t, "20200101000000", snaps[1].Timestamp)
	require.Equal(t, "20100101000000", snaps[2].Timestamp)
}

func TestFetchEmptyURLIsPrecondition(t *testing.T) {
	a := New(http.DefaultClient, DefaultConfig())
	_, err := a.Fetch(context.Background(), "", types.DateRange{})
	require.Error(t, err)
}

func TestSavePageNowSuccess(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "https://example.com", r.FormValue("url"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	result, err := a.SavePageNow(context.Background(), "https://example.com", false, false)
	require.NoError(t, err)
	require.Equal(t, "submitted", result.Status)
}

func TestSavePageNowFailureStatus(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result, err := a.SavePageNow(context.Background(), "https://example.com", false, false)
	require.NoError(t, err)
	require.Equal(t, "failed", result.Status)
}

func TestListSnapshotsEndToEnd(t *testing.T) {
	payload := [][]string{
		{"timestamp", "original", "statuscode", "mimetype", "digest"},
		{"20240115120000", "https://example.com/", "200", "text/html", "abc123"},
	}
	body, _ := json.Marshal(payload)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	})

	snaps, err := a.ListSnapshots(context.Background(), "https://example.com/", types.DateRange{}, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "20240115120000", snaps[0].Timestamp)
	require.Contains(t, snaps[0].ViewURL, "id_/")
}

func TestListSnapshotsNegatesPositiveLimitToFetchNewest(t *testing.T) {
	var gotLimit string
	payload := [][]string{
		{"timestamp", "original", "statuscode", "mimetype", "digest"},
	}
	body, _ := json.Marshal(payload)

	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write(body)
	})

	_, err := a.ListSnapshots(context.Background(), "https://example.com/", types.DateRange{}, 10)
	require.NoError(t, err)
	require.Equal(t, "-10", gotLimit)
}

func TestFetchEndToEnd(t *testing.T) {
	callCount := 0
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			payload := [][]string{
				{"timestamp", "original", "statuscode", "mimetype", "digest"},
				{"20240115120000", "https://example.com/", "200", "text/html", "abc123"},
			}
			body, _ := json.Marshal(payload)
			w.Write(body)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hi</html>"))
	})

	res, err := a.Fetch(context.Background(), "https://example.com/", types.DateRange{})
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, "<html>hi</html>", res.HTML)
}

func TestNewDefaultsToHTTPDefaultClientWhenNil(t *testing.T) {
	a := New(nil, DefaultConfig())
	require.Equal(t, http.DefaultClient, a.client)
}

func TestDefaultConfigCollapsePolicy(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "timestamp:8", cfg.Collapse)
	require.False(t, cfg.IncludeErrorStatuses)
	require.Greater(t, cfg.Timeout, time.Duration(0))
}

func TestFetchAtUsesExactTimestamp(t *testing.T) {
	var gotPath string
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("<html>pinned</html>"))
	})
	res, err := a.FetchAt(context.Background(), "https://example.com/", "20200101000000")
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, "20200101000000", res.Timestamp)
	require.Contains(t, gotPath, "20200101000000id_")
}

func TestFetchPrefixSendsRangeHeaderAndTruncates(t *testing.T) {
	var gotRange string
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789abcdefgh"))
	})
	prefix, ok := a.FetchPrefix(context.Background(), "https://example.com/", "20200101000000", 10)
	require.True(t, ok)
	require.Equal(t, "bytes=0-9", gotRange)
	require.Len(t, prefix, 10)
}
