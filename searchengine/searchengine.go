// Package searchengine implements the streaming archive search engine
// (§4.8): a bounded year x source grid walk with priority-ranked
// snapshots, ghost-fetch short-circuiting, keyword matching with
// contextual snippets, outlink extraction, and a tagged-union event
// stream that never throws across its boundary.
package searchengine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/extract"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// Defaults per §5 "Streaming search: outer semaphore 4 years; inner 20
// snapshots per year-source."
const (
	DefaultMaxConcurrentYears   = 4
	DefaultMaxConcurrentPerYear = 20
	DefaultGhostFetchBytes      = 2048
	DefaultMaxOutlinks          = 50
	DefaultQueueSize            = 256
)

// Direction controls tie-break ordering within a ranked snapshot list
// (§4.8 step 2 "newer first if direction=backwards, older first
// otherwise").
type Direction string

const (
	DirectionBackwards Direction = "backwards"
	DirectionForwards  Direction = "forwards"
)

// YearSource is the capability a source adapter exposes to the engine:
// list this year's candidate snapshots, fetch one snapshot's full body,
// and ghost-fetch a byte prefix. Defined where consumed, per Go
// convention, so wayback/cc-specific wiring lives in their own small
// adapter files rather than forcing source.Adapter to grow new methods.
type YearSource interface {
	Name() types.ArchiveSource
	Candidates(ctx context.Context, domain string, year int) ([]types.Snapshot, error)
	Fetch(ctx context.Context, snap types.Snapshot) (html string, ok bool)
	FetchPrefix(ctx context.Context, snap types.Snapshot, nBytes int) (prefix string, ok bool)
}

// Config is the engine's explicit configuration record (§9 "explicit
// configuration records": max_concurrent_per_year, priority_terms,
// ghost_fetch_bytes, max_outlinks).
type Config struct {
	MaxConcurrentYears   int
	MaxConcurrentPerYear int
	PriorityTerms        []string
	GhostFetchBytes      int
	FastFirst            bool
	MaxOutlinks          int
	Direction            Direction
	QueueSize            int
}

// DefaultConfig applies §4.8/§5's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentYears:   DefaultMaxConcurrentYears,
		MaxConcurrentPerYear: DefaultMaxConcurrentPerYear,
		PriorityTerms:        extract.DefaultPriorityTerms,
		GhostFetchBytes:      DefaultGhostFetchBytes,
		MaxOutlinks:          DefaultMaxOutlinks,
		Direction:            DirectionBackwards,
		QueueSize:            DefaultQueueSize,
	}
}

// Engine walks the year x source grid and streams ArchiveEvents.
type Engine struct {
	cfg     Config
	sources []YearSource
	log     zerolog.Logger
}

func New(cfg Config, sources ...YearSource) *Engine {
	if cfg.MaxConcurrentYears <= 0 {
		cfg.MaxConcurrentYears = DefaultMaxConcurrentYears
	}
	if cfg.MaxConcurrentPerYear <= 0 {
		cfg.MaxConcurrentPerYear = DefaultMaxConcurrentPerYear
	}
	if cfg.GhostFetchBytes <= 0 {
		cfg.GhostFetchBytes = DefaultGhostFetchBytes
	}
	if cfg.MaxOutlinks <= 0 {
		cfg.MaxOutlinks = DefaultMaxOutlinks
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if len(cfg.PriorityTerms) == 0 {
		cfg.PriorityTerms = extract.DefaultPriorityTerms
	}
	return &Engine{cfg: cfg, sources: sources, log: log.With().Str("component", "searchengine").Logger()}
}

// Search streams every archived snapshot of domain across years whose
// text contains one of keywords, plus progress events, on a single
// bounded channel. An empty keywords list skips the keyword filter and
// emits every visited snapshot as a hit (§4.8 step 3 "skip_keyword_filter").
//
// The channel is closed exactly once when every year has been processed
// or ctx is cancelled — this is the idiomatic-Go rendering of the §9
// design note's "producer enqueues a null sentinel exactly once";
// channel close *is* the sentinel, so there is no separate sentinel
// value to check for. Callers that abandon iteration should cancel ctx;
// every blocking send below selects on ctx.Done() so outstanding
// producers unwind promptly (§4.8 "Cancellation").
func (e *Engine) Search(ctx context.Context, domain string, years []int, keywords []string) <-chan types.ArchiveEvent {
	out := make(chan types.ArchiveEvent, e.cfg.QueueSize)

	go func() {
		defer close(out)

		yearSem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentYears))
		var wg sync.WaitGroup
		var mu sync.Mutex
		completed := 0
		total := len(years)

		for _, year := range years {
			year := year
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := yearSem.Acquire(ctx, 1); err != nil {
					return
				}
				defer yearSem.Release(1)

				e.processYear(ctx, domain, year, keywords, out)

				mu.Lock()
				completed++
				n := completed
				mu.Unlock()

				percent := 0.0
				if total > 0 {
					percent = float64(n) / float64(total) * 100
				}
				send(ctx, out, types.ArchiveEvent{
					Kind:    types.EventStatus,
					Channel: types.ChannelProgress,
					State:   "year_complete",
					Progress: &types.ProgressPayload{
						Year: year, Completed: n, Total: total, Percent: percent,
						Message: fmt.Sprintf("completed year %d (%d/%d)", year, n, total),
					},
				})
			}()
		}
		wg.Wait()
	}()

	return out
}

// processYear walks every configured source for one year, each with its
// own inner semaphore bounding simultaneous snapshot fetches (§4.8 "For
// each year-source pair, an inner semaphore caps simultaneous snapshot
// fetches").
func (e *Engine) processYear(ctx context.Context, domain string, year int, keywords []string, out chan<- types.ArchiveEvent) {
	var wg sync.WaitGroup
	for _, src := range e.sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.processYearSource(ctx, domain, year, src, keywords, out)
		}()
	}
	wg.Wait()
}

func (e *Engine) processYearSource(ctx context.Context, domain string, year int, src YearSource, keywords []string, out chan<- types.ArchiveEvent) {
	candidates, err := src.Candidates(ctx, domain, year)
	if err != nil {
		send(ctx, out, types.ArchiveEvent{Kind: types.EventError, State: "error", Err: fmt.Errorf("searchengine: %s candidates for %s/%d: %w", src.Name(), domain, year, err)})
		return
	}
	ranked := rankSnapshots(candidates, e.cfg.PriorityTerms, e.cfg.Direction)

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentPerYear))
	var wg sync.WaitGroup
	for _, snap := range ranked {
		snap := snap
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			e.processSnapshot(ctx, src, snap, keywords, out)
		}()
	}
	wg.Wait()
}

// processSnapshot implements §4.8 step 3-5 for a single ranked snapshot:
// optional ghost fetch, full fetch, text-strip, keyword scan, outlink
// extraction, and hit emission.
func (e *Engine) processSnapshot(ctx context.Context, src YearSource, snap types.Snapshot, keywords []string, out chan<- types.ArchiveEvent) {
	send(ctx, out, types.ArchiveEvent{
		Kind: types.EventStatus, Channel: types.ChannelDeep, State: "progress",
		Progress: &types.ProgressPayload{Message: fmt.Sprintf("fetching %s @ %s", snap.URL, snap.Timestamp)},
	})

	skipFilter := len(keywords) == 0

	if e.cfg.FastFirst && !skipFilter {
		if prefix, ok := src.FetchPrefix(ctx, snap, e.cfg.GhostFetchBytes); ok {
			if kw, snippet, found := extract.FindKeyword(prefix, keywords); found {
				e.emitHit(ctx, snap, kw, snippet, nil, nil, nil, out)
				return
			}
		}
	}

	html, ok := src.Fetch(ctx, snap)
	if !ok {
		return
	}
	text := extract.VisibleText(html)
	outlinks, notes, domains := extract.Outlinks(html, snap.URL, e.cfg.MaxOutlinks)

	if skipFilter {
		e.emitHit(ctx, snap, "", text, outlinks, notes, domains, out)
		return
	}
	kw, snippet, found := extract.FindKeyword(text, keywords)
	if !found {
		return
	}
	e.emitHit(ctx, snap, kw, snippet, outlinks, notes, domains, out)
}

func (e *Engine) emitHit(ctx context.Context, snap types.Snapshot, keyword, snippet string, outlinks []string, notes []extract.OutlinkNote, domains []string, out chan<- types.ArchiveEvent) {
	hitNotes := make([]types.OutlinkNote, len(notes))
	for i, n := range notes {
		hitNotes[i] = types.OutlinkNote{URL: n.URL, AnchorText: n.AnchorText}
	}
	hit := types.HitPayload{
		Snapshot: snap, Keyword: keyword, Snippet: snippet,
		Outlinks: outlinks, OutlinkNotes: hitNotes, OutlinkDomains: domains,
		Message: extract.DescribeMatch(keyword, snap.URL),
	}
	send(ctx, out, types.ArchiveEvent{Kind: types.EventHit, Hit: &hit})
	send(ctx, out, types.ArchiveEvent{Kind: types.EventStatus, Channel: types.ChannelDeep, State: "hit", Hit: &hit})
}

// send is the engine's sole channel-write path: it always races against
// ctx.Done() so an abandoned consumer never leaves a producer blocked
// forever (§4.8 "Cancellation ... child HTTP requests must honor
// cancellation").
func send(ctx context.Context, out chan<- types.ArchiveEvent, ev types.ArchiveEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// rankSnapshots applies the §4.8 step 2 composite priority score: a
// document-extension boost, a per-keyword-in-URL boost, then a timestamp
// tie-break in the configured direction.
func rankSnapshots(snaps []types.Snapshot, terms []string, direction Direction) []types.Snapshot {
	type scored struct {
		snap  types.Snapshot
		score int
	}
	arr := make([]scored, len(snaps))
	for i, s := range snaps {
		score := 0
		if extract.DocumentExtensionBoost(s.URL) {
			score += 10
		}
		score += extract.KeywordInURLBoosts(s.URL, terms) * 2
		arr[i] = scored{snap: s, score: score}
	}
	sort.SliceStable(arr, func(i, j int) bool {
		if arr[i].score != arr[j].score {
			return arr[i].score > arr[j].score
		}
		if direction == DirectionForwards {
			return arr[i].snap.Timestamp < arr[j].snap.Timestamp
		}
		return arr[i].snap.Timestamp > arr[j].snap.Timestamp
	})
	out := make([]types.Snapshot, len(arr))
	for i, a := range arr {
		out[i] = a.snap
	}
	return out
}
