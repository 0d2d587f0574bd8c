// Package mapper implements the unified URL discovery pipeline (§4.9):
// map_domain/map_domain_stream fan out across ~15 discovery sources in six
// categories (subdomain enumeration, search-engine site: queries, archive
// enumerations, sitemap parsing, backlink APIs, local ES), merge their
// streams through a single bounded channel with one sentinel per producer,
// and dedup by normalized URL.
package mapper

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/urlnorm"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// Source is the capability every discovery producer exposes to the mapper:
// it writes DiscoveredURL items onto the returned channel and closes it
// exactly once when done (§4.9 "a single sentinel per producer signals
// completion" — channel close is that sentinel, per the same idiomatic
// translation the search engine uses).
type Source interface {
	Name() string
	Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL
}

// Filters narrows which source categories run. Zero value enables
// everything (§9 "the mapper's source-enable flags").
type Filters struct {
	EnableSubdomains  bool
	EnableSearchSite  bool
	EnableArchives    bool
	EnableSitemap     bool
	EnableBacklinks   bool
	EnableLocalES     bool
	DisableDedup      bool
	restrictToNames   map[string]bool
}

// allEnabled reports whether every category flag is false, meaning "no
// filter applied" (caller passed the zero value).
func (f Filters) allEnabled() bool {
	return !f.EnableSubdomains && !f.EnableSearchSite && !f.EnableArchives &&
		!f.EnableSitemap && !f.EnableBacklinks && !f.EnableLocalES
}

// WithSources restricts the merge to the named sources only (matched
// against Source.Name()); an empty/nil list means no restriction.
func (f Filters) WithSources(names ...string) Filters {
	if len(names) == 0 {
		return f
	}
	f.restrictToNames = make(map[string]bool, len(names))
	for _, n := range names {
		f.restrictToNames[n] = true
	}
	return f
}

func (f Filters) allows(name string) bool {
	if f.restrictToNames == nil {
		return true
	}
	return f.restrictToNames[name]
}

// Config is the mapper's explicit configuration record.
type Config struct {
	QueueSize int
}

const DefaultQueueSize = 256

func DefaultConfig() Config {
	return Config{QueueSize: DefaultQueueSize}
}

// Mapper owns the dedup set for the duration of one call (§3 Ownership:
// "the mapper owns the dedup set; discovered URLs are emitted by
// reference-free value").
type Mapper struct {
	cfg     Config
	sources []Source
	log     zerolog.Logger
}

func New(cfg Config, sources ...Source) *Mapper {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Mapper{cfg: cfg, sources: sources, log: log.With().Str("component", "mapper").Logger()}
}

// MapDomainStream fans domain discovery out across every enabled source and
// merges results onto one bounded channel in arrival order, applying
// URL-level dedup unless filters.DisableDedup is set (§4.9 "Stream
// merging"). The channel closes once every source has completed or ctx is
// cancelled.
func (m *Mapper) MapDomainStream(ctx context.Context, domain string, filters Filters) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL, m.cfg.QueueSize)

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		var mu sync.Mutex
		seen := make(map[string]bool)

		for _, src := range m.sources {
			if !m.enabled(src.Name(), filters) {
				continue
			}
			src := src
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range src.Discover(ctx, domain) {
					if !urlnorm.WithinDomain(item.URL, domain) {
						continue
					}
					if !filters.DisableDedup {
						key := urlnorm.Normalize(item.URL)
						mu.Lock()
						dup := seen[key]
						seen[key] = true
						mu.Unlock()
						if dup {
							continue
						}
					}
					select {
					case out <- item:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		wg.Wait()
	}()

	return out
}

func (m *Mapper) enabled(name string, filters Filters) bool {
	if !filters.allows(name) {
		return false
	}
	if filters.allEnabled() {
		return true
	}
	switch {
	case strings.HasPrefix(name, "subdomain:"):
		return filters.EnableSubdomains
	case strings.HasPrefix(name, "search:"):
		return filters.EnableSearchSite
	case strings.HasPrefix(name, "archive:"):
		return filters.EnableArchives
	case name == "sitemap":
		return filters.EnableSitemap
	case strings.HasPrefix(name, "backlink:"):
		return filters.EnableBacklinks
	case name == "local-es":
		return filters.EnableLocalES
	default:
		return true
	}
}

// DomainMap is map_domain's accumulated batch result (§4.9 "Batch
// result"): per-source counts, per-year timestamp counts, earliest/latest
// observations, unique/total URL counts.
type DomainMap struct {
	Domain         string
	URLs           []types.DiscoveredURL
	PerSourceCount map[string]int
	PerYearCount   map[string]int
	Earliest       string
	Latest         string
	UniqueCount    int
	TotalCount     int
	SourcesFailed  []string
}

// MapDomain accumulates MapDomainStream into a DomainMap (§4.9 "Batch
// result"). An empty DomainMap with every configured source listed in
// SourcesFailed means every source errored or produced nothing (§7
// "User-visible failures").
func (m *Mapper) MapDomain(ctx context.Context, domain string, filters Filters) DomainMap {
	result := DomainMap{
		Domain:         domain,
		PerSourceCount: make(map[string]int),
		PerYearCount:   make(map[string]int),
	}

	produced := make(map[string]bool)
	uniqueURLs := make(map[string]bool)
	for item := range m.MapDomainStream(ctx, domain, filters) {
		result.URLs = append(result.URLs, item)
		result.TotalCount++
		result.PerSourceCount[item.Source]++
		produced[item.Source] = true
		uniqueURLs[urlnorm.Normalize(item.URL)] = true

		if year := yearOf(item); year != "" {
			result.PerYearCount[year]++
		}
		ts := timestampOf(item)
		if ts != "" {
			if result.Earliest == "" || ts < result.Earliest {
				result.Earliest = ts
			}
			if result.Latest == "" || ts > result.Latest {
				result.Latest = ts
			}
		}
	}
	result.UniqueCount = len(uniqueURLs)

	for _, src := range m.sources {
		if m.enabled(src.Name(), filters) && !produced[src.Name()] {
			result.SourcesFailed = append(result.SourcesFailed, src.Name())
		}
	}
	sort.Strings(result.SourcesFailed)

	return result
}

func yearOf(u types.DiscoveredURL) string {
	ts := u.Meta["timestamp"]
	if len(ts) >= 4 {
		if _, err := strconv.Atoi(ts[:4]); err == nil {
			return ts[:4]
		}
	}
	return strconv.Itoa(u.DiscoveredAt.Year())
}

func timestampOf(u types.DiscoveredURL) string {
	if ts := u.Meta["timestamp"]; ts != "" {
		return ts
	}
	if u.DiscoveredAt.IsZero() {
		return ""
	}
	return u.DiscoveredAt.UTC().Format(types.TimestampLayout)
}
