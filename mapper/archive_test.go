package mapper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

type fakeLister struct {
	byTarget map[string][]types.Snapshot
	errFor   map[string]error
}

func (f *fakeLister) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	if err, ok := f.errFor[target]; ok {
		return nil, err
	}
	return f.byTarget[target], nil
}

func TestArchiveSourceFansOutAcrossDomainPatterns(t *testing.T) {
	lister := &fakeLister{byTarget: map[string][]types.Snapshot{
		"example.com": {
			{URL: "https://example.com/", Timestamp: "20200101000000"},
		},
		"example.com/*": {
			{URL: "https://example.com/about", Timestamp: "20200102000000"},
		},
		"www.example.com/*": {
			{URL: "https://www.example.com/blog", Timestamp: "20200103000000"},
		},
	}}

	src := NewArchiveSource("wayback", lister, 100)
	require.Equal(t, "archive:wayback", src.Name())

	var urls []string
	for item := range src.Discover(context.Background(), "example.com") {
		urls = append(urls, item.URL)
		require.Equal(t, "example.com", item.Domain)
		require.Equal(t, "archive:wayback", item.Source)
	}
	require.ElementsMatch(t, []string{"https://example.com/", "https://example.com/about", "https://www.example.com/blog"}, urls)
}

func TestArchiveSourceDedupsSameURLAcrossPatterns(t *testing.T) {
	lister := &fakeLister{byTarget: map[string][]types.Snapshot{
		"example.com":       {{URL: "https://example.com/", Timestamp: "20200101000000"}},
		"example.com/*":     {{URL: "https://example.com/", Timestamp: "20200101000000"}},
		"www.example.com/*": {{URL: "https://example.com/", Timestamp: "20200101000000"}},
	}}

	src := NewArchiveSource("wayback", lister, 100)
	var count int
	for range src.Discover(context.Background(), "example.com") {
		count++
	}
	require.Equal(t, 1, count)
}

func TestArchiveSourceOnePatternFailureDoesNotDropOthers(t *testing.T) {
	lister := &fakeLister{
		byTarget: map[string][]types.Snapshot{
			"example.com/*": {{URL: "https://example.com/ok", Timestamp: "20200101000000"}},
		},
		errFor: map[string]error{
			"example.com": errors.New("boom"),
		},
	}

	src := NewArchiveSource("wayback", lister, 100)
	var urls []string
	for item := range src.Discover(context.Background(), "example.com") {
		urls = append(urls, item.URL)
	}
	require.Equal(t, []string{"https://example.com/ok"}, urls)
}

func TestSnapshotToDiscoveredCarriesMeta(t *testing.T) {
	s := types.Snapshot{
		URL:        "https://example.com/page",
		Timestamp:  "20220615120000",
		MIME:       "text/html",
		StatusCode: 200,
		ViewURL:    "https://web.archive.org/web/20220615120000/https://example.com/page",
	}
	d := snapshotToDiscovered(s, "example.com", "archive:wayback")
	require.Equal(t, "20220615120000", d.Meta["timestamp"])
	require.Equal(t, "text/html", d.Meta["mime"])
	require.Equal(t, "200", d.Meta["status"])
	require.Equal(t, s.ViewURL, d.ArchiveView)
}
