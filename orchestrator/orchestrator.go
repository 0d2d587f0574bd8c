// Package orchestrator implements the racing multi-source fetch
// orchestrator (§4.7): it dispatches one URL to every enabled source
// adapter in parallel and returns the first usable result, with batch
// fetch, snapshot union, and existence fan-out built on the same
// primitives.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// Defaults per §5 "Bounded parallelism" / "Cancellation and timeouts".
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultBatchLimit   = 50
)

// Config is the orchestrator's explicit configuration record (§9 "Dynamic
// config/kwargs" -> explicit configuration records).
type Config struct {
	// Sources are the enabled adapters in priority/insertion order. An
	// adapter not present here contributes no task (§4.7 "Unenabled
	// sources contribute no task").
	Sources []source.Adapter

	// Timeout bounds a single Fetch call's wall clock, unless the caller
	// overrides it per call.
	Timeout time.Duration

	// BatchConcurrency bounds in-flight URLs during BatchFetch (§4.7,
	// §5 "Batch fetch: 50 URLs in flight by default").
	BatchConcurrency int

	// TrueRace resolves the §9 Open Question: false (default) reproduces
	// the original "await all, then scan for first success" behavior
	// byte for byte; true cancels the remaining tasks as soon as one
	// succeeds, changing observable latency but not correctness.
	TrueRace bool
}

// DefaultConfig applies §5's documented defaults.
func DefaultConfig(sources ...source.Adapter) Config {
	return Config{
		Sources:          sources,
		Timeout:          DefaultFetchTimeout,
		BatchConcurrency: DefaultBatchLimit,
	}
}

// Orchestrator races the configured sources for single-URL fetches and
// composes batch/snapshot-union/exists operations on top.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchLimit
	}
	return &Orchestrator{cfg: cfg, log: log.With().Str("component", "orchestrator").Logger()}
}

// enabledSources returns the sources a Fetch call should race: every
// configured source, or just the preferred one when prefer is set (§4.7
// "When prefer is set, only that source is tried").
func (o *Orchestrator) enabledSources(prefer types.ArchiveSource) []source.Adapter {
	if prefer == "" {
		return o.cfg.Sources
	}
	for _, s := range o.cfg.Sources {
		if s.Name() == prefer {
			return []source.Adapter{s}
		}
	}
	return nil
}

// Fetch races every enabled source for url. By default it returns the
// first successful result in insertion order once all tasks have settled
// (or the overall timeout fires); with Config.TrueRace it returns the
// first success to arrive and cancels the remaining tasks, per §4.7 and
// the §9 Open Question on racing semantics.
func (o *Orchestrator) Fetch(ctx context.Context, url string, dr types.DateRange, prefer types.ArchiveSource, timeout time.Duration) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(url, dr); err != nil {
		return types.FetchResult{}, err
	}
	sources := o.enabledSources(prefer)
	if len(sources) == 0 {
		// §8 boundary: "Single source enabled -> degenerates to a single
		// await"; zero enabled sources degenerates further to an
		// immediate empty result and no external calls.
		return types.FetchResult{URL: url}, nil
	}
	if timeout <= 0 {
		timeout = o.cfg.Timeout
	}

	if o.cfg.TrueRace {
		return o.raceTrue(ctx, sources, url, dr, timeout)
	}
	return o.raceGatherAll(ctx, sources, url, dr, timeout)
}

// raceGatherAll reproduces the original system's await-all-then-scan
// behavior: every task runs to completion (or the deadline fires), then
// the first success in insertion order wins. This is the default because
// it matches existing production behavior byte for byte (§9).
func (o *Orchestrator) raceGatherAll(ctx context.Context, sources []source.Adapter, url string, dr types.DateRange, timeout time.Duration) (types.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]types.FetchResult, len(sources))
	done := make(chan int, len(sources))
	for i, s := range sources {
		i, s := i, s
		go func() {
			results[i] = o.fetchOne(ctx, s, url, dr)
			done <- i
		}()
	}

	completed := 0
	for completed < len(sources) {
		select {
		case <-done:
			completed++
		case <-ctx.Done():
			completed = len(sources) // stop waiting; return whatever arrived
		}
		if completed >= len(sources) {
			break
		}
	}

	for _, r := range results {
		if r.Success() {
			return r, nil
		}
	}
	return types.FetchResult{URL: url}, nil
}

// raceTrue cancels the remaining tasks as soon as one succeeds (true
// first-success-cancels-others racing), per the §9 Open Question's
// alternative resolution.
func (o *Orchestrator) raceTrue(ctx context.Context, sources []source.Adapter, url string, dr types.DateRange, timeout time.Duration) (types.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		index  int
		result types.FetchResult
	}
	results := make(chan outcome, len(sources))
	for i, s := range sources {
		i, s := i, s
		go func() {
			r := o.fetchOne(ctx, s, url, dr)
			select {
			case results <- outcome{index: i, result: r}:
			case <-ctx.Done():
			}
		}()
	}

	var firstSuccess *types.FetchResult
	pending := make(map[int]types.FetchResult)
	for received := 0; received < len(sources); received++ {
		select {
		case o := <-results:
			if o.result.Success() {
				cancel()
				firstSuccess = &o.result
				goto done
			}
			pending[o.index] = o.result
		case <-ctx.Done():
			goto done
		}
	}
done:
	if firstSuccess != nil {
		return *firstSuccess, nil
	}
	// No success arrived before cancellation/timeout: scan whatever we
	// did collect, in insertion order, same tie-break as raceGatherAll.
	for i := range sources {
		if r, ok := pending[i]; ok && r.Success() {
			return r, nil
		}
	}
	return types.FetchResult{URL: url}, nil
}

// fetchOne runs a single adapter's Fetch, swallowing any error as a
// debug-logged empty result — "one failing source must not poison the
// race" (§4.7, §7).
func (o *Orchestrator) fetchOne(ctx context.Context, s source.Adapter, url string, dr types.DateRange) types.FetchResult {
	r, err := s.Fetch(ctx, url, dr)
	if err != nil {
		o.log.Debug().Err(err).Str("source", string(s.Name())).Str("url", url).Msg("source fetch failed")
		return types.FetchResult{URL: url}
	}
	return r
}

// BatchFetch races every URL independently, bounded by BatchConcurrency
// in-flight fetches (§4.7, §5).
func (o *Orchestrator) BatchFetch(ctx context.Context, urls []string, dr types.DateRange) ([]types.FetchResult, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sem := semaphore.NewWeighted(int64(o.cfg.BatchConcurrency))
	results := make([]types.FetchResult, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = types.FetchResult{URL: u}
				return
			}
			defer sem.Release(1)
			r, err := o.Fetch(ctx, u, dr, "", 0)
			if err != nil {
				results[i] = types.FetchResult{URL: u}
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()
	return results, nil
}

// ListSnapshots fans out to every enabled source in parallel, concatenates
// their snapshots, deduplicates by the Snapshot invariant in §3 (digest
// when present, otherwise (URL, day-truncated timestamp)), and sorts
// newest-first (§4.7, §8 invariant 2).
func (o *Orchestrator) ListSnapshots(ctx context.Context, url string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	if err := source.ValidatePrecondition(url, dr); err != nil {
		return nil, err
	}
	if len(o.cfg.Sources) == 0 {
		return nil, nil
	}

	lists := make([][]types.Snapshot, len(o.cfg.Sources))
	var wg sync.WaitGroup
	for i, s := range o.cfg.Sources {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps, err := s.ListSnapshots(ctx, url, dr, limit)
			if err != nil {
				o.log.Debug().Err(err).Str("source", string(s.Name())).Msg("list snapshots failed")
				return
			}
			lists[i] = snaps
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	var out []types.Snapshot
	for _, snaps := range lists {
		for _, s := range snaps {
			key := s.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Exists fans out to every enabled source and returns true if any
// reports a positive (§4.7). Implementers may cancel remaining tasks on
// the first positive; this implementation does so via context
// cancellation, while also tolerating the "collect all" alternative the
// spec explicitly allows.
func (o *Orchestrator) Exists(ctx context.Context, url string, dr types.DateRange) (bool, error) {
	if err := source.ValidatePrecondition(url, dr); err != nil {
		return false, err
	}
	if len(o.cfg.Sources) == 0 {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(o.cfg.Sources))
	for _, s := range o.cfg.Sources {
		s := s
		go func() {
			ok, err := s.Exists(ctx, url, dr)
			if err != nil {
				results <- false
				return
			}
			results <- ok
		}()
	}

	for i := 0; i < len(o.cfg.Sources); i++ {
		if <-results {
			return true, nil
		}
	}
	return false, nil
}
