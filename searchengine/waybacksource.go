package searchengine

import (
	"context"
	"fmt"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/wayback"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// WaybackYearSource adapts a wayback.Adapter to the engine's YearSource
// contract: candidate listing fans out across the URL pattern variants
// §4.8 step 1 names (host, host/*, www.host, www.host/*, *.host/*),
// unioned and deduplicated by (timestamp, url).
type WaybackYearSource struct {
	adapter *wayback.Adapter
}

func NewWaybackYearSource(adapter *wayback.Adapter) *WaybackYearSource {
	return &WaybackYearSource{adapter: adapter}
}

func (w *WaybackYearSource) Name() types.ArchiveSource { return types.SourceWaybackCDX }

func (w *WaybackYearSource) Candidates(ctx context.Context, domain string, year int) ([]types.Snapshot, error) {
	patterns := []string{
		domain,
		domain + "/*",
		"www." + domain,
		"www." + domain + "/*",
		"*." + domain + "/*",
	}
	dr := types.DateRange{
		Start: fmt.Sprintf("%04d-01-01", year),
		End:   fmt.Sprintf("%04d-12-31", year),
	}

	seen := make(map[string]bool)
	var out []types.Snapshot
	for _, p := range patterns {
		snaps, err := w.adapter.ListSnapshots(ctx, p, dr, 0)
		if err != nil {
			continue // one pattern's failure must not drop the others (§7)
		}
		for _, s := range snaps {
			key := s.Timestamp + "|" + s.URL
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func (w *WaybackYearSource) Fetch(ctx context.Context, snap types.Snapshot) (string, bool) {
	res, err := w.adapter.FetchAt(ctx, snap.URL, snap.Timestamp)
	if err != nil || !res.Success() {
		return "", false
	}
	if res.HTML != "" {
		return res.HTML, true
	}
	return res.Content, res.Content != ""
}

func (w *WaybackYearSource) FetchPrefix(ctx context.Context, snap types.Snapshot, nBytes int) (string, bool) {
	return w.adapter.FetchPrefix(ctx, snap.URL, snap.Timestamp, nBytes)
}

var _ YearSource = (*WaybackYearSource)(nil)
