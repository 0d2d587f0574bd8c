// Package wayback implements the Wayback Machine adapter: CDX snapshot
// listing, closest-snapshot lookup, id_-modifier content fetch, and Save
// Page Now submission (§4.2).
package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

const (
	cdxAPI   = "https://web.archive.org/cdx/search/cdx"
	baseURL  = "https://web.archive.org/web"
	saveAPI  = "https://web.archive.org/save"
)

// Config configures the Wayback adapter's defaults (§9 "explicit
// configuration records").
type Config struct {
	// Collapse is the CDX collapse policy; "timestamp:8" (one per day) is
	// the documented default (§4.2).
	Collapse string
	// IncludeErrorStatuses, when true, disables the default 4xx/5xx
	// exclusion filter.
	IncludeErrorStatuses bool
	// Timeout bounds each outbound HTTP call.
	Timeout time.Duration
}

// DefaultConfig matches §4.2/§5's documented defaults.
func DefaultConfig() Config {
	return Config{
		Collapse: "timestamp:8",
		Timeout:  20 * time.Second,
	}
}

// Adapter is the Wayback Machine source.Adapter.
type Adapter struct {
	client *http.Client
	cfg    Config
	log    zerolog.Logger

	// cdxAPI/baseURL/saveAPI are overridable in tests; they default to
	// the real Wayback endpoints.
	cdxAPI  string
	baseURL string
	saveAPI string
}

// New constructs a Wayback adapter. A nil client falls back to
// http.DefaultClient (§9's dependency-injection design note).
func New(client *http.Client, cfg Config) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		client:  client,
		cfg:     cfg,
		log:     log.With().Str("adapter", "wayback").Logger(),
		cdxAPI:  cdxAPI,
		baseURL: baseURL,
		saveAPI: saveAPI,
	}
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceWaybackData }

// cdxRow mirrors one parsed CDX JSON row: timestamp, original url, status,
// mime, digest.
type cdxRow struct {
	Timestamp string
	URL       string
	Status    string
	MIME      string
	Digest    string
}

// ListSnapshots queries the CDX endpoint with the configured collapse
// policy, excluding 4xx/5xx unless the caller opted in, newest-first
// (§4.2).
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("url", target)
	params.Set("output", "json")
	params.Set("fl", "timestamp,original,statuscode,mimetype,digest")
	if limit > 0 {
		// A positive limit truncates from the oldest captures; negate it so
		// the CDX API returns the newest N instead (§4.2 "newest-first").
		params.Set("limit", strconv.Itoa(-limit))
	}
	if !a.cfg.IncludeErrorStatuses {
		params.Set("filter", "!statuscode:[45]..")
	}
	if dr.Start != "" {
		params.Set("from", source.ToNativeTimestamp(dr.Start))
	}
	if dr.End != "" {
		params.Set("to", source.ToNativeTimestamp(dr.End))
	}
	if a.cfg.Collapse != "" {
		params.Set("collapse", a.cfg.Collapse)
	}

	rows, err := a.queryCDX(ctx, params)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("cdx query failed")
		return nil, nil
	}

	out := make([]types.Snapshot, 0, len(rows))
	for _, r := range rows {
		status, _ := strconv.Atoi(r.Status)
		out = append(out, types.Snapshot{
			URL:        r.URL,
			Timestamp:  r.Timestamp,
			Source:     types.SourceWaybackCDX,
			StatusCode: status,
			MIME:       r.MIME,
			Digest:     r.Digest,
			ViewURL:    fmt.Sprintf("%s/%sid_/%s", a.baseURL, r.Timestamp, r.URL),
		})
	}
	// newest-first per §4.2
	sortSnapshotsDesc(out)
	return out, nil
}

func sortSnapshotsDesc(s []types.Snapshot) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].Timestamp < s[j].Timestamp {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}

func (a *Adapter) queryCDX(ctx context.Context, params url.Values) ([]cdxRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cdxAPI+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cdx status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	out := make([]cdxRow, 0, len(rows)-1)
	for _, row := range rows[1:] { // first row is the header
		r := cdxRow{}
		if len(row) > 0 {
			r.Timestamp = row[0]
		}
		if len(row) > 1 {
			r.URL = row[1]
		}
		if len(row) > 2 {
			r.Status = row[2]
		}
		if len(row) > 3 {
			r.MIME = row[3]
		}
		if len(row) > 4 {
			r.Digest = row[4]
		}
		out = append(out, r)
	}
	return out, nil
}

// Exists reports whether target has any archived snapshot.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	snaps, err := a.ListSnapshots(ctx, target, dr, 1)
	if err != nil {
		return false, err
	}
	return len(snaps) > 0, nil
}

// Fetch retrieves archived content via the id_ modifier (unmodified
// bytes). If no timestamp filter pins an exact snapshot, it lists with
// limit 1 and uses that timestamp (§4.2).
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return types.FetchResult{}, err
	}

	snaps, err := a.ListSnapshots(ctx, target, dr, 1)
	if err != nil {
		return types.FetchResult{}, err
	}
	if len(snaps) == 0 {
		return types.FetchResult{URL: target}, nil
	}
	ts := snaps[0].Timestamp

	fetchURL := fmt.Sprintf("%s/%sid_/%s", a.baseURL, ts, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return types.FetchResult{URL: target}, nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("wayback fetch timeout/network error")
		return types.FetchResult{URL: target}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}

	return types.FetchResult{
		URL:        target,
		Timestamp:  ts,
		Source:     types.SourceWaybackData,
		StatusCode: resp.StatusCode,
		MIME:       resp.Header.Get("Content-Type"),
		HTML:       string(body),
		Metadata:   map[string]any{"wayback_url": fetchURL},
	}, nil
}

// FetchAt retrieves the exact snapshot at timestamp via the id_ modifier,
// used by the streaming search engine which already ranked a specific
// snapshot and must not re-resolve "latest" (§4.8 step 3 "fetch the raw
// bytes via id_").
func (a *Adapter) FetchAt(ctx context.Context, target, timestamp string) (types.FetchResult, error) {
	if target == "" {
		return types.FetchResult{}, source.ErrEmptyURL
	}
	fetchURL := fmt.Sprintf("%s/%sid_/%s", a.baseURL, timestamp, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return types.FetchResult{URL: target}, nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("wayback fetchAt timeout/network error")
		return types.FetchResult{URL: target}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}
	return types.FetchResult{
		URL:        target,
		Timestamp:  timestamp,
		Source:     types.SourceWaybackData,
		StatusCode: resp.StatusCode,
		MIME:       resp.Header.Get("Content-Type"),
		HTML:       string(body),
		Metadata:   map[string]any{"wayback_url": fetchURL},
	}, nil
}

// FetchPrefix issues a ranged GET for the first nBytes of a snapshot's
// content, used by the search engine's ghost fetch (§4.8 step 5): a small
// prefetch that tests for keyword presence before committing to a full
// download. ok is false on any error or when the server ignores the Range
// header and returns the full 200 body (the caller still gets the bytes
// it asked for via io.LimitReader either way).
func (a *Adapter) FetchPrefix(ctx context.Context, target, timestamp string, nBytes int) (string, bool) {
	if target == "" || nBytes <= 0 {
		return "", false
	}
	fetchURL := fmt.Sprintf("%s/%sid_/%s", a.baseURL, timestamp, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", nBytes-1))
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("wayback ghost fetch failed")
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(nBytes)))
	if err != nil {
		return "", false
	}
	return string(body), true
}

// ClosestSnapshot returns the nearest snapshot to targetDate via the CDX
// /closest interface (§4.2).
func (a *Adapter) ClosestSnapshot(ctx context.Context, target, targetDate string) (*types.Snapshot, error) {
	if target == "" {
		return nil, source.ErrEmptyURL
	}
	ts := strings.NewReplacer("-", "", ":", "", " ", "").Replace(targetDate)

	params := url.Values{}
	params.Set("url", target)
	params.Set("timestamp", ts)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cdxAPI+"/closest?"+params.Encode(), nil)
	if err != nil {
		return nil, nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Msg("closest snapshot query failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload struct {
		ArchivedSnapshots struct {
			Closest struct {
				Available bool   `json:"available"`
				URL       string `json:"url"`
				Timestamp string `json:"timestamp"`
				Status    string `json:"status"`
			} `json:"closest"`
		} `json:"archived_snapshots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil
	}
	closest := payload.ArchivedSnapshots.Closest
	if !closest.Available {
		return nil, nil
	}
	status, _ := strconv.Atoi(closest.Status)
	return &types.Snapshot{
		URL:        closest.URL,
		Timestamp:  closest.Timestamp,
		Source:     types.SourceWaybackCDX,
		StatusCode: status,
	}, nil
}

// SavePageNow submits url via POST to the save endpoint (§4.2). Success is
// 2xx; it does not block for capture completion.
type SaveResult struct {
	Status string
	URL    string
	Error  string
}

func (a *Adapter) SavePageNow(ctx context.Context, target string, captureAll, captureOutlinks bool) (SaveResult, error) {
	if target == "" {
		return SaveResult{}, source.ErrEmptyURL
	}

	form := url.Values{}
	form.Set("url", target)
	if captureAll {
		form.Set("capture_all", "1")
	}
	if captureOutlinks {
		form.Set("capture_outlinks", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.saveAPI, strings.NewReader(form.Encode()))
	if err != nil {
		return SaveResult{}, nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Error().Err(err).Str("url", target).Msg("save page now failed")
		return SaveResult{Status: "failed", URL: target, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SaveResult{Status: "submitted", URL: target}, nil
	}
	return SaveResult{Status: "failed", URL: target, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
}

var _ source.Adapter = (*Adapter)(nil)
