// Package memento implements the Memento TimeMap aggregator adapter: one
// federated endpoint covering ~40 archives, identified from the memento
// URL's host, ranked by a preference list, with fetch trying the top
// candidates sequentially until a 2xx response (§4.5).
package memento

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

const aggregatorURL = "http://timetravel.mementoweb.org/timemap/json"

// archivePatterns maps a host substring to the archive's display name, so
// a memento URL can be attributed to the archive that served it (§4.5).
var archivePatterns = []struct {
	pattern string
	name    string
}{
	{"web.archive.org", "Internet Archive"},
	{"archive.org", "Internet Archive"},
	{"archive.today", "Archive.today"},
	{"archive.is", "Archive.today"},
	{"archive.ph", "Archive.today"},
	{"archive.md", "Archive.today"},
	{"perma.cc", "Perma.cc"},
	{"webarchive.org.uk", "UK Web Archive"},
	{"arquivo.pt", "Portuguese Web Archive"},
	{"haw.nsk.hr", "Croatian Web Archive"},
	{"webarchive.nla.gov.au", "Australian Web Archive"},
	{"webarchive.loc.gov", "Library of Congress"},
	{"swap.stanford.edu", "Stanford Web Archive"},
	{"vefsafn.is", "Icelandic Web Archive"},
	{"webarchive.proni.gov.uk", "Northern Ireland Web Archive"},
	{"webarchive.nationalarchives.gov.uk", "UK National Archives"},
	{"web.archive.org.au", "Pandora (Australia)"},
	{"webarchive.bnf.fr", "French Web Archive (BnF)"},
	{"nukrobi2.nuk.uni-lj.si", "Slovenian Web Archive"},
	{"wayback.archive-it.org", "Archive-It"},
}

// identifyArchive returns the display name of the archive that served
// mementoURL, or "Unknown Archive" if no pattern matches.
func identifyArchive(mementoURL string) string {
	for _, p := range archivePatterns {
		if strings.Contains(mementoURL, p.pattern) {
			return p.name
		}
	}
	return "Unknown Archive"
}

// TimeMapEntry is one Memento snapshot entry, attributed to its source
// archive.
type TimeMapEntry struct {
	Timestamp  string
	When       time.Time
	MementoURL string
	Archive    string
	OriginalURL string
}

// ArchiveSummary is the per-archive rollup returned by CompareArchives
// (§4.5 "cross-archive comparison").
type ArchiveSummary struct {
	Count  int
	Oldest time.Time
	Newest time.Time
}

// Config configures the preference ranking used by Fetch.
type Config struct {
	// PreferArchive, if non-empty, is tried before any built-in
	// preference tier.
	PreferArchive string
	Timeout       time.Duration
}

// DefaultConfig ranks Internet Archive first, then Archive.today, then
// everything else, newest-first within a tier (§4.5 default ranking).
func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second}
}

// Adapter is the Memento aggregator source.Adapter.
type Adapter struct {
	client        *http.Client
	cfg           Config
	log           zerolog.Logger
	aggregatorURL string // overridable in tests; defaults to the real aggregator
}

func New(client *http.Client, cfg Config) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		client:        client,
		cfg:           cfg,
		log:           log.With().Str("adapter", "memento").Logger(),
		aggregatorURL: aggregatorURL,
	}
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceMementoAgg }

type timeMapResponse struct {
	Mementos struct {
		List  []timeMapLink `json:"list"`
		First *timeMapLink  `json:"first"`
		Last  *timeMapLink  `json:"last"`
	} `json:"mementos"`
}

type timeMapLink struct {
	URI      string `json:"uri"`
	Datetime string `json:"datetime"`
}

// timestampLayouts mirrors the original client's fallback chain for
// parsing heterogeneous Memento datetime formats.
var timestampLayouts = []string{
	"20060102150405",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	time.RFC1123,
}

func parseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListTimeMap queries the aggregator's TimeMap and returns every memento
// entry across all federated archives, newest-first, optionally filtered
// to a date range (§4.5).
func (a *Adapter) ListTimeMap(ctx context.Context, target string, dr types.DateRange) ([]TimeMapEntry, error) {
	if target == "" {
		return nil, source.ErrEmptyURL
	}

	timeMapURL := fmt.Sprintf("%s/%s", a.aggregatorURL, url.PathEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, timeMapURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("timemap query failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload timeMapResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil
	}

	links := payload.Mementos.List
	if len(links) == 0 {
		if payload.Mementos.First != nil {
			links = append(links, *payload.Mementos.First)
		}
		if payload.Mementos.Last != nil {
			links = append(links, *payload.Mementos.Last)
		}
	}

	var startDT, endDT time.Time
	if dr.Start != "" {
		startDT, _ = time.Parse(types.DateLayout, dr.Start)
	}
	if dr.End != "" {
		if t, err := time.Parse(types.DateLayout, dr.End); err == nil {
			endDT = t.Add(24*time.Hour - time.Nanosecond) // End day is inclusive
		}
	}

	out := make([]TimeMapEntry, 0, len(links))
	for _, link := range links {
		if link.URI == "" {
			continue
		}
		when, ok := parseTimestamp(link.Datetime)
		if ok {
			if !startDT.IsZero() && when.Before(startDT) {
				continue
			}
			if !endDT.IsZero() && when.After(endDT) {
				continue
			}
		}
		out = append(out, TimeMapEntry{
			Timestamp:   link.Datetime,
			When:        when,
			MementoURL:  link.URI,
			Archive:     identifyArchive(link.URI),
			OriginalURL: target,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].When.After(out[j].When) })
	return out, nil
}

// rankTier assigns the preference tier used to sort candidates before
// Fetch tries them (§4.5 "ranks by a configurable preference list").
func (a *Adapter) rankTier(archive string) int {
	if a.cfg.PreferArchive != "" && strings.Contains(strings.ToLower(archive), strings.ToLower(a.cfg.PreferArchive)) {
		return 0
	}
	switch {
	case strings.Contains(archive, "Internet Archive"):
		return 1
	case strings.Contains(archive, "Archive.today"):
		return 2
	default:
		return 3
	}
}

// Fetch tries the top 5 ranked candidates sequentially, returning the
// first 2xx response (§4.5).
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return types.FetchResult{}, err
	}

	entries, err := a.ListTimeMap(ctx, target, dr)
	if err != nil {
		return types.FetchResult{}, err
	}
	if len(entries) == 0 {
		return types.FetchResult{URL: target}, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := a.rankTier(entries[i].Archive), a.rankTier(entries[j].Archive)
		if ti != tj {
			return ti < tj
		}
		return entries[i].When.After(entries[j].When)
	})

	tryCount := 5
	if len(entries) < tryCount {
		tryCount = len(entries)
	}
	for _, entry := range entries[:tryCount] {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.MementoURL, nil)
		if err != nil {
			continue
		}
		resp, err := a.client.Do(req)
		if err != nil {
			a.log.Debug().Err(err).Str("archive", entry.Archive).Msg("memento fetch failed")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		body := make([]byte, 0)
		buf := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				body = append(body, buf[:n]...)
			}
			if readErr != nil {
				break
			}
		}
		resp.Body.Close()

		return types.FetchResult{
			URL:        target,
			Timestamp:  entry.Timestamp,
			Source:     types.SourceMementoAgg,
			StatusCode: resp.StatusCode,
			MIME:       resp.Header.Get("Content-Type"),
			HTML:       string(body),
			Metadata: map[string]any{
				"archive":     entry.Archive,
				"memento_url": entry.MementoURL,
			},
		}, nil
	}

	return types.FetchResult{URL: target}, nil
}

// Exists reports whether any archive has a memento for target.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	entries, err := a.ListTimeMap(ctx, target, dr)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// ListSnapshots adapts ListTimeMap's entries into the common Snapshot
// shape, newest-first, bounded by limit.
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return nil, err
	}
	entries, err := a.ListTimeMap(ctx, target, dr)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]types.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Snapshot{
			URL:       target,
			Timestamp: e.Timestamp,
			Source:    types.SourceMementoAgg,
			ViewURL:   e.MementoURL,
		})
	}
	return out, nil
}

// CompareArchives groups snapshots by source archive and summarizes
// count/oldest/newest per archive (§4.5 "cross-archive comparison").
func (a *Adapter) CompareArchives(ctx context.Context, target string) (map[string]ArchiveSummary, error) {
	entries, err := a.ListTimeMap(ctx, target, types.DateRange{})
	if err != nil {
		return nil, err
	}

	out := make(map[string]ArchiveSummary)
	for _, e := range entries {
		sum, ok := out[e.Archive]
		if !ok {
			sum = ArchiveSummary{Oldest: e.When, Newest: e.When}
		}
		sum.Count++
		if !e.When.IsZero() {
			if sum.Oldest.IsZero() || e.When.Before(sum.Oldest) {
				sum.Oldest = e.When
			}
			if e.When.After(sum.Newest) {
				sum.Newest = e.When
			}
		}
		out[e.Archive] = sum
	}
	return out, nil
}

var _ source.Adapter = (*Adapter)(nil)
