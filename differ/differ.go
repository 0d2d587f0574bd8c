// Package differ tracks how a domain or a single page changed over time:
// domain evolution by year, period-to-period set comparison with optional
// content diffing, page version history, and content-appearance search
// (§4.10).
package differ

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/mapper"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/diffscore"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/extract"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// MaxSampleURLsPerPeriod is the cap on content-diffed intersection URLs in
// compare_periods (§4.10 "samples up to 20 intersection URLs").
const MaxSampleURLsPerPeriod = 20

// MaxSampleTimestamps and MaxURLsPerTimestamp bound find_content_change's
// scan (§4.10 "samples ~20 timestamps uniformly, samples 5 URLs per
// timestamp").
const (
	MaxSampleTimestamps = 20
	MaxURLsPerTimestamp = 5
)

// ContentFetcher is the capability the differ needs to retrieve a page at
// an exact archived timestamp, satisfied by wayback.Adapter or any other
// adapter that exposes an exact-timestamp FetchAt.
type ContentFetcher interface {
	FetchAt(ctx context.Context, url, timestamp string) (types.FetchResult, error)
}

// SnapshotLister is the capability the differ needs for page_history: list
// every known snapshot of one URL, sorted or not (the differ sorts itself).
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error)
}

// Config is the differ's explicit configuration record.
type Config struct {
	MaxConcurrent int
}

const DefaultMaxConcurrent = 10

func DefaultConfig() Config {
	return Config{MaxConcurrent: DefaultMaxConcurrent}
}

// Differ composes a mapper (URL discovery) with a ContentFetcher/
// SnapshotLister (content retrieval) to answer change-over-time questions.
type Differ struct {
	cfg     Config
	mapper  *mapper.Mapper
	fetcher ContentFetcher
	lister  SnapshotLister
	log     zerolog.Logger
}

func New(cfg Config, m *mapper.Mapper, fetcher ContentFetcher, lister SnapshotLister) *Differ {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Differ{cfg: cfg, mapper: m, fetcher: fetcher, lister: lister, log: log.With().Str("component", "differ").Logger()}
}

// DomainEvolution implements domain_evolution: maps the domain, groups
// URLs by the timestamp's year, and derives appeared/removed sets between
// consecutive years (§4.10).
func (d *Differ) DomainEvolution(ctx context.Context, domain string) types.DomainEvolution {
	domainMap := d.mapper.MapDomain(ctx, domain, mapper.Filters{DisableDedup: true})

	urlsByYear := make(map[string]map[string]bool)
	for _, u := range domainMap.URLs {
		year := yearOf(u)
		if year == "" {
			continue
		}
		if urlsByYear[year] == nil {
			urlsByYear[year] = make(map[string]bool)
		}
		urlsByYear[year][u.URL] = true
	}

	years := make([]string, 0, len(urlsByYear))
	for y := range urlsByYear {
		years = append(years, y)
	}
	sort.Strings(years)

	result := types.DomainEvolution{
		Domain:   domain,
		Earliest: domainMap.Earliest,
		Latest:   domainMap.Latest,
	}

	var prevYear string
	var prevURLs map[string]bool
	allURLs := make(map[string]bool)

	for _, year := range years {
		current := urlsByYear[year]
		for u := range current {
			allURLs[u] = true
		}

		result.Periods = append(result.Periods, types.YearPeriod{
			Year:    year,
			Count:   len(current),
			Samples: sampleKeys(current, 100),
		})

		if prevYear != "" {
			for u := range current {
				if !prevURLs[u] {
					result.URLsAppeared = append(result.URLsAppeared, u)
				}
			}
			for u := range prevURLs {
				if !current[u] {
					result.URLsRemoved = append(result.URLsRemoved, u)
				}
			}
		}
		prevYear, prevURLs = year, current
	}

	if len(result.URLsAppeared) > 500 {
		result.URLsAppeared = result.URLsAppeared[:500]
	}
	if len(result.URLsRemoved) > 500 {
		result.URLsRemoved = result.URLsRemoved[:500]
	}
	result.TotalObserved = len(allURLs)

	return result
}

func yearOf(u types.DiscoveredURL) string {
	ts := u.Meta["timestamp"]
	if len(ts) >= 4 {
		if _, err := strconv.Atoi(ts[:4]); err == nil {
			return ts[:4]
		}
	}
	return ""
}

func sampleKeys(set map[string]bool, limit int) []string {
	out := make([]string, 0, limit)
	for k := range set {
		if len(out) >= limit {
			break
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PeriodComparison is compare_periods' result: the pure URL set difference
// between two periods plus, when content comparison is requested, the
// page-change records for a sample of the intersection (§4.10).
type PeriodComparison struct {
	Domain         string
	Period1        string
	Period2        string
	URLsAdded      []string // in period2, not period1
	URLsRemoved    []string // in period1, not period2
	URLsCommon     []string
	ContentChanged []types.PageChange
}

// ComparePeriods implements compare_periods: maps the domain once, then
// splits its URLs by which period's timestamp they fall in, computes the
// pure set difference and intersection, and optionally diffs a sample of
// the intersection's content via exact-timestamp fetch (§4.10).
func (d *Differ) ComparePeriods(ctx context.Context, domain, period1, period2 string, fetchContent bool) PeriodComparison {
	ts1 := periodToTimestamp(period1)
	ts2 := periodToTimestamp(period2)

	domainMap := d.mapper.MapDomain(ctx, domain, mapper.Filters{DisableDedup: true})
	urls1 := urlsObservedBy(domainMap.URLs, ts1)
	urls2 := urlsObservedBy(domainMap.URLs, ts2)

	result := PeriodComparison{Domain: domain, Period1: period1, Period2: period2}
	for u := range urls2 {
		if !urls1[u] {
			result.URLsAdded = append(result.URLsAdded, u)
		}
	}
	for u := range urls1 {
		if !urls2[u] {
			result.URLsRemoved = append(result.URLsRemoved, u)
		}
		if urls2[u] {
			result.URLsCommon = append(result.URLsCommon, u)
		}
	}
	sort.Strings(result.URLsAdded)
	sort.Strings(result.URLsRemoved)
	sort.Strings(result.URLsCommon)

	if fetchContent && d.fetcher != nil && len(result.URLsCommon) > 0 {
		sampleSize := len(result.URLsCommon)
		if sampleSize > MaxSampleURLsPerPeriod {
			sampleSize = MaxSampleURLsPerPeriod
		}

		sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrent))
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, u := range result.URLsCommon[:sampleSize] {
			u := u
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				change, ok := d.comparePageVersions(ctx, u, ts1, ts2)
				if ok && change.Similarity < 0.95 {
					mu.Lock()
					result.ContentChanged = append(result.ContentChanged, change)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		sort.Slice(result.ContentChanged, func(i, j int) bool { return result.ContentChanged[i].URL < result.ContentChanged[j].URL })
	}

	return result
}

// urlsObservedBy returns the set of URLs whose earliest known timestamp is
// at or before cutoff (§4.10's period comparison treats a period as "state
// of the domain as of this date").
func urlsObservedBy(urls []types.DiscoveredURL, cutoff string) map[string]bool {
	out := make(map[string]bool)
	for _, u := range urls {
		ts := u.Meta["timestamp"]
		if ts == "" || ts <= cutoff {
			out[u.URL] = true
		}
	}
	return out
}

// periodToTimestamp normalizes a YYYY-MM-DD or YYYY period string to a
// 14-digit timestamp, matching original_source's period-bound widening.
func periodToTimestamp(period string) string {
	digits := strings.ReplaceAll(period, "-", "")
	switch len(digits) {
	case 4:
		return digits + "1231235959"
	case 8:
		return digits + "235959"
	default:
		return digits
	}
}

func (d *Differ) comparePageVersions(ctx context.Context, u, ts1, ts2 string) (types.PageChange, bool) {
	r1, err1 := d.fetcher.FetchAt(ctx, u, ts1)
	r2, err2 := d.fetcher.FetchAt(ctx, u, ts2)
	if err1 != nil || err2 != nil || !r1.Success() || !r2.Success() {
		return types.PageChange{}, false
	}

	content1 := extract.VisibleText(bodyOf(r1))
	content2 := extract.VisibleText(bodyOf(r2))
	if content1 == "" || content2 == "" {
		return types.PageChange{}, false
	}

	similarity := diffscore.Ratio(content1, content2)
	added, removed := diffscore.LineDiff(content1, content2)

	return types.PageChange{
		URL:          u,
		FromTS:       ts1,
		ToTS:         ts2,
		FromHash:     diffscore.ContentHash(content1),
		ToHash:       diffscore.ContentHash(content2),
		Category:     types.ClassifyChange(similarity),
		Similarity:   similarity,
		LinesAdded:   added,
		LinesRemoved: removed,
	}, true
}

func bodyOf(r types.FetchResult) string {
	if r.HTML != "" {
		return r.HTML
	}
	return r.Content
}

// PageHistory implements page_history: lists snapshots, sorts ascending by
// timestamp, and emits a PageChange whenever content hash differs between
// consecutive versions (§4.10). Content hashes are only populated when
// fetchContent is true; without it, every version's hash is empty and no
// changes are derived (matching the original's has-hash guard).
func (d *Differ) PageHistory(ctx context.Context, url string, maxVersions int, fetchContent bool) ([]types.PageVersion, []types.PageChange) {
	snaps, err := d.lister.ListSnapshots(ctx, url, types.DateRange{}, maxVersions)
	if err != nil {
		return nil, nil
	}

	versions := make([]types.PageVersion, len(snaps))
	for i, s := range snaps {
		versions[i] = types.PageVersion{URL: s.URL, Timestamp: s.Timestamp, Source: s.Source, Status: s.StatusCode}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Timestamp < versions[j].Timestamp })

	if fetchContent && d.fetcher != nil {
		for i := range versions {
			res, err := d.fetcher.FetchAt(ctx, url, versions[i].Timestamp)
			if err != nil || !res.Success() {
				continue
			}
			text := extract.VisibleText(bodyOf(res))
			versions[i].Hash = diffscore.ContentHash(text)
			versions[i].Length = len(text)
		}
	}

	var changes []types.PageChange
	var prev *types.PageVersion
	for i := range versions {
		v := &versions[i]
		if prev != nil && v.Hash != "" && prev.Hash != "" && v.Hash != prev.Hash {
			changes = append(changes, types.PageChange{
				URL:      url,
				FromTS:   prev.Timestamp,
				ToTS:     v.Timestamp,
				FromHash: prev.Hash,
				ToHash:   v.Hash,
				Category: types.ChangeModified,
			})
		}
		prev = v
	}

	return versions, changes
}

// ContentAppearance is find_content_change's result (§4.10).
type ContentAppearance struct {
	SearchText      string
	Domain          string
	ChangeType      string // "appeared" or "disappeared"
	URL             string
	Timestamp       string
	SurroundingText string
	Found           bool
}

// ChangeAppeared and ChangeDisappeared are find_content_change's two modes.
const (
	ChangeAppeared    = "appeared"
	ChangeDisappeared = "disappeared"
)

// FindContentChange implements find_content_change: maps the domain,
// groups URLs by timestamp, samples timestamps with the §9-resolved
// exhaustive-at-low-end stride, samples up to MaxURLsPerTimestamp URLs per
// sampled timestamp, fetches and scans for text (case-folded), and returns
// the first timestamp where the requested transition occurs (§4.10).
func (d *Differ) FindContentChange(ctx context.Context, domain, searchText, changeType string) ContentAppearance {
	result := ContentAppearance{SearchText: searchText, Domain: domain, ChangeType: changeType}
	if d.fetcher == nil {
		return result
	}

	domainMap := d.mapper.MapDomain(ctx, domain, mapper.Filters{DisableDedup: true})
	urlsByTS := make(map[string][]string)
	for _, u := range domainMap.URLs {
		ts := u.Meta["timestamp"]
		if ts == "" {
			continue
		}
		urlsByTS[ts] = append(urlsByTS[ts], u.URL)
	}

	sortedTS := make([]string, 0, len(urlsByTS))
	for ts := range urlsByTS {
		sortedTS = append(sortedTS, ts)
	}
	sort.Strings(sortedTS)

	sampleTS := sampleTimestamps(sortedTS, MaxSampleTimestamps)
	search := strings.ToLower(searchText)

	found := make(map[string]bool)
	var lastFoundURL string
	for i, ts := range sampleTS {
		urls := urlsByTS[ts]
		if len(urls) > MaxURLsPerTimestamp {
			urls = urls[:MaxURLsPerTimestamp]
		}

		anyFound := false
		var foundURL string
		for _, u := range urls {
			res, err := d.fetcher.FetchAt(ctx, u, ts)
			if err != nil || !res.Success() {
				continue
			}
			content := strings.ToLower(bodyOf(res))
			if strings.Contains(content, search) {
				anyFound = true
				foundURL = u
				break
			}
		}
		found[ts] = anyFound

		switch changeType {
		case ChangeAppeared:
			if anyFound && (i == 0 || !found[sampleTS[i-1]]) {
				return d.appearanceResult(ctx, searchText, domain, ChangeAppeared, foundURL, ts)
			}
		case ChangeDisappeared:
			if !anyFound && i > 0 && found[sampleTS[i-1]] {
				return ContentAppearance{
					SearchText: searchText, Domain: domain, ChangeType: ChangeDisappeared,
					URL: lastFoundURL, Timestamp: ts, Found: true,
				}
			}
		}

		if anyFound {
			lastFoundURL = foundURL
		}
	}

	return result
}

func (d *Differ) appearanceResult(ctx context.Context, searchText, domain, changeType, url, ts string) ContentAppearance {
	res, err := d.fetcher.FetchAt(ctx, url, ts)
	surrounding := ""
	if err == nil && res.Success() {
		content := strings.ToLower(bodyOf(res))
		pos := strings.Index(content, strings.ToLower(searchText))
		if pos >= 0 {
			start := pos - 100
			if start < 0 {
				start = 0
			}
			end := pos + len(searchText) + 100
			if end > len(content) {
				end = len(content)
			}
			surrounding = content[start:end]
		}
	}
	return ContentAppearance{
		SearchText: searchText, Domain: domain, ChangeType: changeType,
		URL: url, Timestamp: ts, SurroundingText: surrounding, Found: true,
	}
}

// sampleTimestamps applies the §9 Open Question resolution: stride
// max(1, len(ts)/20), but exhaustive (no sampling) when len(ts) <= 20.
func sampleTimestamps(ts []string, target int) []string {
	if len(ts) <= target {
		return ts
	}
	stride := len(ts) / target
	if stride < 1 {
		stride = 1
	}
	var out []string
	for i := 0; i < len(ts); i += stride {
		out = append(out, ts[i])
	}
	return out
}
