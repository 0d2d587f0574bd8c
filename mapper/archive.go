package mapper

import (
	"context"
	"strconv"
	"time"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// snapshotLister is the capability the mapper's archive-enumeration
// sources need from a source.Adapter: list every known snapshot of a
// domain pattern. wayback.Adapter and ccidx.Adapter both satisfy this.
type snapshotLister interface {
	ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error)
}

// archiveSource wraps a snapshotLister into a mapper Source, emitting one
// DiscoveredURL per distinct snapshot URL it lists (§4.9 "archive
// enumerations").
type archiveSource struct {
	name   string
	lister snapshotLister
	limit  int
}

// NewArchiveSource wraps an archive adapter's ListSnapshots into a mapper
// discovery source, fanning out across the domain plus a domain/* and
// www.domain/* wildcard (three of the five patterns
// searchengine.WaybackYearSource uses; the bare www.domain and the
// *.domain/* subdomain wildcard are not queried here).
func NewArchiveSource(name string, lister snapshotLister, limit int) Source {
	return &archiveSource{name: "archive:" + name, lister: lister, limit: limit}
}

func (a *archiveSource) Name() string { return a.name }

func (a *archiveSource) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL)
	go func() {
		defer close(out)

		patterns := []string{domain, domain + "/*", "www." + domain + "/*"}
		seen := make(map[string]bool)
		for _, p := range patterns {
			snaps, err := a.lister.ListSnapshots(ctx, p, types.DateRange{}, a.limit)
			if err != nil {
				continue // one pattern's failure must not drop the others (§7)
			}
			for _, s := range snaps {
				if seen[s.URL] {
					continue
				}
				seen[s.URL] = true
				select {
				case out <- snapshotToDiscovered(s, domain, a.name):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func snapshotToDiscovered(s types.Snapshot, domain, source string) types.DiscoveredURL {
	discoveredAt := time.Now()
	if t, err := time.Parse(types.TimestampLayout, s.Timestamp); err == nil {
		discoveredAt = t
	}
	return types.DiscoveredURL{
		URL:          s.URL,
		Domain:       domain,
		Source:       source,
		DiscoveredAt: discoveredAt,
		ArchiveView:  s.ViewURL,
		Meta: map[string]string{
			"timestamp": s.Timestamp,
			"mime":      s.MIME,
			"status":    strconv.Itoa(s.StatusCode),
		},
	}
}
