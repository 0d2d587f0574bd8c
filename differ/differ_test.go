package differ

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/mapper"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

type fakeMapperSource struct {
	name  string
	items []types.DiscoveredURL
}

func (f *fakeMapperSource) Name() string { return f.name }

func (f *fakeMapperSource) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL, len(f.items))
	for _, it := range f.items {
		out <- it
	}
	close(out)
	return out
}

type fakeFetcher struct {
	// bodies keyed by url|timestamp
	bodies map[string]string
}

func (f *fakeFetcher) FetchAt(ctx context.Context, url, timestamp string) (types.FetchResult, error) {
	body, ok := f.bodies[url+"|"+timestamp]
	if !ok {
		return types.FetchResult{}, nil
	}
	return types.FetchResult{URL: url, Timestamp: timestamp, Source: "fake", HTML: body}, nil
}

type fakeLister struct {
	snaps []types.Snapshot
}

func (f *fakeLister) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	return f.snaps, nil
}

func TestDomainEvolutionGroupsByYearAndDerivesAppearedRemoved(t *testing.T) {
	src := &fakeMapperSource{name: "a", items: []types.DiscoveredURL{
		{URL: "https://example.com/2020page", Meta: map[string]string{"timestamp": "20200101000000"}},
		{URL: "https://example.com/both", Meta: map[string]string{"timestamp": "20200601000000"}},
		{URL: "https://example.com/both", Meta: map[string]string{"timestamp": "20210601000000"}},
		{URL: "https://example.com/2021only", Meta: map[string]string{"timestamp": "20210101000000"}},
	}}
	m := mapper.New(mapper.DefaultConfig(), src)
	d := New(DefaultConfig(), m, nil, nil)

	evo := d.DomainEvolution(context.Background(), "example.com")
	require.Len(t, evo.Periods, 2)
	require.Contains(t, evo.URLsAppeared, "https://example.com/2021only")
	require.Contains(t, evo.URLsRemoved, "https://example.com/2020page")
	require.Equal(t, 3, evo.TotalObserved)
}

func TestComparePeriodsSplitsByTimestampCutoff(t *testing.T) {
	src := &fakeMapperSource{name: "a", items: []types.DiscoveredURL{
		{URL: "https://example.com/old", Meta: map[string]string{"timestamp": "20190101000000"}},
		{URL: "https://example.com/new", Meta: map[string]string{"timestamp": "20230101000000"}},
	}}
	m := mapper.New(mapper.DefaultConfig(), src)
	d := New(DefaultConfig(), m, nil, nil)

	cmp := d.ComparePeriods(context.Background(), "example.com", "2020", "2024", false)
	require.Contains(t, cmp.URLsAdded, "https://example.com/new")
	require.Contains(t, cmp.URLsCommon, "https://example.com/old")
}

func TestComparePeriodsFetchesContentForIntersection(t *testing.T) {
	src := &fakeMapperSource{name: "a", items: []types.DiscoveredURL{
		{URL: "https://example.com/page", Meta: map[string]string{"timestamp": "20180101000000"}},
	}}
	m := mapper.New(mapper.DefaultConfig(), src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.com/page|20201231235959": "<html><body>hello world one</body></html>",
		"https://example.com/page|20241231235959": "<html><body>totally different content now</body></html>",
	}}
	d := New(DefaultConfig(), m, fetcher, nil)

	cmp := d.ComparePeriods(context.Background(), "example.com", "2020", "2024", true)
	require.Len(t, cmp.ContentChanged, 1)
	require.Less(t, cmp.ContentChanged[0].Similarity, 0.95)
	require.NotEqual(t, types.ChangeIdentical, cmp.ContentChanged[0].Category)
}

func TestPageHistoryDetectsChangesByHash(t *testing.T) {
	lister := &fakeLister{snaps: []types.Snapshot{
		{URL: "https://example.com/p", Timestamp: "20220101000000"},
		{URL: "https://example.com/p", Timestamp: "20230101000000"},
	}}
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.com/p|20220101000000": "<html><body>version one</body></html>",
		"https://example.com/p|20230101000000": "<html><body>version two, very different</body></html>",
	}}
	d := New(DefaultConfig(), nil, fetcher, lister)

	versions, changes := d.PageHistory(context.Background(), "https://example.com/p", 10, true)
	require.Len(t, versions, 2)
	require.Len(t, changes, 1)
}

func TestPageHistoryWithoutContentFetchEmitsNoChanges(t *testing.T) {
	lister := &fakeLister{snaps: []types.Snapshot{
		{URL: "https://example.com/p", Timestamp: "20220101000000"},
		{URL: "https://example.com/p", Timestamp: "20230101000000"},
	}}
	d := New(DefaultConfig(), nil, nil, lister)

	versions, changes := d.PageHistory(context.Background(), "https://example.com/p", 10, false)
	require.Len(t, versions, 2)
	require.Empty(t, changes)
}

func TestFindContentChangeAppeared(t *testing.T) {
	src := &fakeMapperSource{name: "a", items: []types.DiscoveredURL{
		{URL: "https://example.com/p", Meta: map[string]string{"timestamp": "20200101000000"}},
		{URL: "https://example.com/p", Meta: map[string]string{"timestamp": "20210101000000"}},
	}}
	m := mapper.New(mapper.DefaultConfig(), src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.com/p|20200101000000": "<html><body>nothing here</body></html>",
		"https://example.com/p|20210101000000": "<html><body>john smith joined the board</body></html>",
	}}
	d := New(DefaultConfig(), m, fetcher, nil)

	result := d.FindContentChange(context.Background(), "example.com", "john smith", ChangeAppeared)
	require.True(t, result.Found)
	require.Equal(t, "20210101000000", result.Timestamp)
}

func TestFindContentChangeDisappearedCarriesSourceURL(t *testing.T) {
	src := &fakeMapperSource{name: "a", items: []types.DiscoveredURL{
		{URL: "https://example.com/p", Meta: map[string]string{"timestamp": "20200101000000"}},
		{URL: "https://example.com/p", Meta: map[string]string{"timestamp": "20210101000000"}},
	}}
	m := mapper.New(mapper.DefaultConfig(), src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.com/p|20200101000000": "<html><body>john smith joined the board</body></html>",
		"https://example.com/p|20210101000000": "<html><body>nothing here</body></html>",
	}}
	d := New(DefaultConfig(), m, fetcher, nil)

	result := d.FindContentChange(context.Background(), "example.com", "john smith", ChangeDisappeared)
	require.True(t, result.Found)
	require.Equal(t, "20210101000000", result.Timestamp)
	require.Equal(t, "https://example.com/p", result.URL)
}

func TestSampleTimestampsExhaustiveAtLowEnd(t *testing.T) {
	ts := []string{"1", "2", "3", "4", "5"}
	require.Equal(t, ts, sampleTimestamps(ts, 20))
}

func TestSampleTimestampsStridesWhenLarge(t *testing.T) {
	ts := make([]string, 100)
	for i := range ts {
		ts[i] = string(rune('a' + i%26))
	}
	sampled := sampleTimestamps(ts, 20)
	require.LessOrEqual(t, len(sampled), 21)
}
