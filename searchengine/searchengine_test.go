package searchengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// fakeYearSource is a minimal in-memory YearSource for engine tests.
type fakeYearSource struct {
	name      types.ArchiveSource
	snapsByYr map[int][]types.Snapshot
	bodies    map[string]string // keyed by URL|timestamp
}

func (f *fakeYearSource) Name() types.ArchiveSource { return f.name }

func (f *fakeYearSource) Candidates(ctx context.Context, domain string, year int) ([]types.Snapshot, error) {
	return f.snapsByYr[year], nil
}

func (f *fakeYearSource) Fetch(ctx context.Context, snap types.Snapshot) (string, bool) {
	body, ok := f.bodies[snap.URL+"|"+snap.Timestamp]
	return body, ok
}

func (f *fakeYearSource) FetchPrefix(ctx context.Context, snap types.Snapshot, nBytes int) (string, bool) {
	body, ok := f.bodies[snap.URL+"|"+snap.Timestamp]
	if !ok {
		return "", false
	}
	if len(body) > nBytes {
		body = body[:nBytes]
	}
	return body, true
}

func drain(ch <-chan types.ArchiveEvent) []types.ArchiveEvent {
	var out []types.ArchiveEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestSearchEmitsHitForMatchingKeyword(t *testing.T) {
	src := &fakeYearSource{
		name: "fake",
		snapsByYr: map[int][]types.Snapshot{
			2023: {{URL: "https://example.com/about", Timestamp: "20230601000000"}},
		},
		bodies: map[string]string{
			"https://example.com/about|20230601000000": "<html><body>Our annual report is here</body></html>",
		},
	}
	e := New(DefaultConfig(), src)
	events := drain(e.Search(context.Background(), "example.com", []int{2023}, []string{"annual report"}))

	var hits, yearComplete int
	for _, ev := range events {
		if ev.Kind == types.EventHit {
			hits++
			require.Equal(t, "annual report", ev.Hit.Keyword)
			require.Contains(t, ev.Hit.Snippet, "annual report")
		}
		if ev.Kind == types.EventStatus && ev.State == "year_complete" {
			yearComplete++
		}
	}
	require.Equal(t, 1, hits)
	require.Equal(t, 1, yearComplete)
}

func TestSearchYearCompleteCountMatchesYearsRequested(t *testing.T) {
	src := &fakeYearSource{name: "fake", snapsByYr: map[int][]types.Snapshot{}}
	e := New(DefaultConfig(), src)
	events := drain(e.Search(context.Background(), "example.com", []int{2020, 2021, 2022}, nil))

	yearComplete := 0
	for _, ev := range events {
		if ev.Kind == types.EventStatus && ev.State == "year_complete" {
			yearComplete++
		}
	}
	require.Equal(t, 3, yearComplete)
}

func TestSearchSkipKeywordFilterEmitsEverySnapshot(t *testing.T) {
	src := &fakeYearSource{
		name: "fake",
		snapsByYr: map[int][]types.Snapshot{
			2023: {{URL: "https://example.com/", Timestamp: "20230101000000"}},
		},
		bodies: map[string]string{
			"https://example.com/|20230101000000": "<html><body>nothing special</body></html>",
		},
	}
	e := New(DefaultConfig(), src)
	events := drain(e.Search(context.Background(), "example.com", []int{2023}, nil))

	hits := 0
	for _, ev := range events {
		if ev.Kind == types.EventHit {
			hits++
		}
	}
	require.Equal(t, 1, hits)
}

func TestSearchNoMatchEmitsNoHits(t *testing.T) {
	src := &fakeYearSource{
		name: "fake",
		snapsByYr: map[int][]types.Snapshot{
			2023: {{URL: "https://example.com/", Timestamp: "20230101000000"}},
		},
		bodies: map[string]string{
			"https://example.com/|20230101000000": "<html><body>nothing special</body></html>",
		},
	}
	e := New(DefaultConfig(), src)
	events := drain(e.Search(context.Background(), "example.com", []int{2023}, []string{"unrelated phrase"}))

	for _, ev := range events {
		require.NotEqual(t, types.EventHit, ev.Kind)
	}
}

func TestSearchCancellationStopsProducers(t *testing.T) {
	src := &fakeYearSource{
		name: "fake",
		snapsByYr: map[int][]types.Snapshot{
			2023: {{URL: "https://example.com/", Timestamp: "20230101000000"}},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := New(DefaultConfig(), src)
	ch := e.Search(ctx, "example.com", []int{2023}, nil)
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("search did not terminate after cancellation")
	}
}

func TestRankSnapshotsBoostsDocumentExtensionAndKeywords(t *testing.T) {
	snaps := []types.Snapshot{
		{URL: "https://example.com/home", Timestamp: "20230101000000"},
		{URL: "https://example.com/annual-report.pdf", Timestamp: "20220101000000"},
	}
	ranked := rankSnapshots(snaps, []string{"annual", "report"}, DirectionBackwards)
	require.Equal(t, "https://example.com/annual-report.pdf", ranked[0].URL)
}
