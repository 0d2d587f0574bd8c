package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// fakeAdapter is a minimal source.Adapter for orchestrator tests.
type fakeAdapter struct {
	name      types.ArchiveSource
	delay     time.Duration
	result    types.FetchResult
	err       error
	snaps     []types.Snapshot
	existsVal bool
}

func (f *fakeAdapter) Name() types.ArchiveSource { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, url string, dr types.DateRange) (types.FetchResult, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return types.FetchResult{}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeAdapter) Exists(ctx context.Context, url string, dr types.DateRange) (bool, error) {
	return f.existsVal, f.err
}

func (f *fakeAdapter) ListSnapshots(ctx context.Context, url string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	return f.snaps, f.err
}

func TestFetchReturnsFirstSuccessInInsertionOrder(t *testing.T) {
	fast := &fakeAdapter{name: "fast", delay: time.Millisecond, result: types.FetchResult{URL: "u", Source: "fast", HTML: "<p>fast</p>"}}
	slowFail := &fakeAdapter{name: "slow", delay: 2 * time.Millisecond, result: types.FetchResult{URL: "u"}}
	o := New(DefaultConfig(slowFail, fast))
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "", time.Second)
	require.NoError(t, err)
	require.True(t, res.Success())
	require.Equal(t, types.ArchiveSource("fast"), res.Source)
}

func TestFetchPreferOnlyTriesNamedSource(t *testing.T) {
	a := &fakeAdapter{name: "a", result: types.FetchResult{URL: "u", Source: "a", HTML: "x"}}
	b := &fakeAdapter{name: "b", result: types.FetchResult{URL: "u", Source: "b", HTML: "y"}}
	o := New(DefaultConfig(a, b))
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "b", time.Second)
	require.NoError(t, err)
	require.Equal(t, types.ArchiveSource("b"), res.Source)
}

func TestFetchNoEnabledSourcesReturnsEmptyImmediately(t *testing.T) {
	o := New(DefaultConfig())
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "", time.Second)
	require.NoError(t, err)
	require.False(t, res.Success())
}

func TestFetchSwallowsAdapterErrors(t *testing.T) {
	bad := &fakeAdapter{name: "bad", err: errors.New("boom")}
	good := &fakeAdapter{name: "good", result: types.FetchResult{URL: "u", Source: "good", HTML: "ok"}}
	o := New(DefaultConfig(bad, good))
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "", time.Second)
	require.NoError(t, err)
	require.True(t, res.Success())
}

func TestFetchTimeoutReturnsEmpty(t *testing.T) {
	slow := &fakeAdapter{name: "slow", delay: 50 * time.Millisecond, result: types.FetchResult{URL: "u", Source: "slow", HTML: "late"}}
	o := New(DefaultConfig(slow))
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "", 5*time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.Success())
}

func TestTrueRaceReturnsFastestSuccess(t *testing.T) {
	fast := &fakeAdapter{name: "fast", delay: time.Millisecond, result: types.FetchResult{URL: "u", Source: "fast", HTML: "fast"}}
	slow := &fakeAdapter{name: "slow", delay: 50 * time.Millisecond, result: types.FetchResult{URL: "u", Source: "slow", HTML: "slow"}}
	cfg := DefaultConfig(slow, fast)
	cfg.TrueRace = true
	o := New(cfg)
	res, err := o.Fetch(context.Background(), "https://example.com", types.DateRange{}, "", time.Second)
	require.NoError(t, err)
	require.Equal(t, types.ArchiveSource("fast"), res.Source)
}

func TestListSnapshotsDedupsAndSortsDescending(t *testing.T) {
	a := &fakeAdapter{name: "a", snaps: []types.Snapshot{
		{URL: "u", Timestamp: "20230101000000", Digest: "d1"},
		{URL: "u", Timestamp: "20240101000000", Digest: "d2"},
	}}
	b := &fakeAdapter{name: "b", snaps: []types.Snapshot{
		{URL: "u", Timestamp: "20230101000000", Digest: "d1"}, // duplicate across sources
		{URL: "u", Timestamp: "20250101000000", Digest: "d3"},
	}}
	o := New(DefaultConfig(a, b))
	snaps, err := o.ListSnapshots(context.Background(), "u", types.DateRange{}, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i := 1; i < len(snaps); i++ {
		require.GreaterOrEqual(t, snaps[i-1].Timestamp, snaps[i].Timestamp)
	}
}

func TestExistsTrueIfAnySourceTrue(t *testing.T) {
	no := &fakeAdapter{name: "no", existsVal: false}
	yes := &fakeAdapter{name: "yes", existsVal: true}
	o := New(DefaultConfig(no, yes))
	ok, err := o.Exists(context.Background(), "u", types.DateRange{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatchFetchIndependentPerURL(t *testing.T) {
	a := &fakeAdapter{name: "a", result: types.FetchResult{URL: "u", Source: "a", HTML: "ok"}}
	o := New(DefaultConfig(a))
	results, err := o.BatchFetch(context.Background(), []string{"https://x.com", "https://y.com"}, types.DateRange{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Success())
	}
}
