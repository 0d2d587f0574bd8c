// Package exa implements the Exa historical-search paid adapter: `POST
// /search` and `/findSimilar` with ISO-8601 date bounds, and `POST
// /contents` to retrieve full text for specific URLs (§6, §4.1).
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

const apiBase = "https://api.exa.ai"

// Config holds the API key, read from EXA_API_KEY at construction (§6).
type Config struct {
	APIKey string
}

func DefaultConfig() Config {
	return Config{APIKey: os.Getenv("EXA_API_KEY")}
}

// Result is one Exa search/findSimilar hit.
type Result struct {
	ID            string
	URL           string
	Title         string
	PublishedDate string // ISO-8601, when known
	Text          string
	Score         float64
}

// Adapter is the Exa source.Adapter.
type Adapter struct {
	client    *http.Client
	cfg       Config
	available bool
	log       zerolog.Logger
	apiBase   string // overridable in tests
}

func New(client *http.Client, cfg Config) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	l := log.With().Str("adapter", "exa").Logger()
	a := &Adapter{client: client, cfg: cfg, log: l, apiBase: apiBase}
	if cfg.APIKey == "" {
		l.Debug().Msg("EXA_API_KEY not set - adapter unavailable")
		return a
	}
	a.available = true
	return a
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceExaHistorical }

func (a *Adapter) Available() bool { return a.available }

func (a *Adapter) do(ctx context.Context, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	return a.client.Do(req)
}

type searchRequest struct {
	Query              string `json:"query"`
	NumResults         int    `json:"numResults,omitempty"`
	StartPublishedDate string `json:"startPublishedDate,omitempty"`
	EndPublishedDate   string `json:"endPublishedDate,omitempty"`
	Contents           struct {
		Text bool `json:"text"`
	} `json:"contents"`
}

type searchResponse struct {
	Results []struct {
		ID            string  `json:"id"`
		URL           string  `json:"url"`
		Title         string  `json:"title"`
		PublishedDate string  `json:"publishedDate"`
		Text          string  `json:"text"`
		Score         float64 `json:"score"`
	} `json:"results"`
}

// Search queries Exa's /search endpoint with an ISO-8601 date bound
// converted from the caller's YYYY-MM-DD range (§4.1 date filters, §6).
func (a *Adapter) Search(ctx context.Context, query string, dr types.DateRange, numResults int) ([]Result, error) {
	if !a.available {
		return nil, nil
	}
	if numResults <= 0 {
		numResults = 10
	}
	req := searchRequest{Query: query, NumResults: numResults}
	req.Contents.Text = true
	if dr.Start != "" {
		req.StartPublishedDate = toISO8601(dr.Start)
	}
	if dr.End != "" {
		req.EndPublishedDate = toISO8601(dr.End)
	}

	resp, err := a.do(ctx, "/search", req)
	if err != nil {
		a.log.Debug().Err(err).Msg("exa search failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		a.log.Error().Int("status", resp.StatusCode).Msg("exa authentication failure")
		a.available = false
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{ID: r.ID, URL: r.URL, Title: r.Title, PublishedDate: r.PublishedDate, Text: r.Text, Score: r.Score})
	}
	return out, nil
}

// FindSimilar queries Exa's /findSimilar endpoint for pages related to
// target.
func (a *Adapter) FindSimilar(ctx context.Context, target string, numResults int) ([]Result, error) {
	if !a.available {
		return nil, nil
	}
	if numResults <= 0 {
		numResults = 10
	}
	body := map[string]any{"url": target, "numResults": numResults}
	resp, err := a.do(ctx, "/findSimilar", body)
	if err != nil {
		a.log.Debug().Err(err).Msg("exa findSimilar failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{ID: r.ID, URL: r.URL, Title: r.Title, PublishedDate: r.PublishedDate, Score: r.Score})
	}
	return out, nil
}

type contentsRequest struct {
	URLs []string `json:"urls"`
	Text bool     `json:"text"`
}

// Contents fetches full text for specific URLs via /contents.
func (a *Adapter) Contents(ctx context.Context, urls []string) ([]Result, error) {
	if !a.available || len(urls) == 0 {
		return nil, nil
	}
	resp, err := a.do(ctx, "/contents", contentsRequest{URLs: urls, Text: true})
	if err != nil {
		a.log.Debug().Err(err).Msg("exa contents failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{ID: r.ID, URL: r.URL, Title: r.Title, PublishedDate: r.PublishedDate, Text: r.Text, Score: r.Score})
	}
	return out, nil
}

// toISO8601 converts a caller YYYY-MM-DD date to Exa's expected
// RFC3339 date bound (midnight UTC).
func toISO8601(date string) string {
	t, err := time.Parse(types.DateLayout, date)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Fetch adapts Contents to the common source.Adapter contract, treating
// the single URL as a one-element contents lookup.
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return types.FetchResult{}, err
	}
	if !a.available {
		return types.FetchResult{URL: target}, nil
	}
	results, err := a.Contents(ctx, []string{target})
	if err != nil || len(results) == 0 {
		return types.FetchResult{URL: target}, nil
	}
	r := results[0]
	return types.FetchResult{
		URL:       target,
		Timestamp: publishedToTimestamp(r.PublishedDate),
		Source:    types.SourceExaHistorical,
		Content:   r.Text,
		Metadata:  map[string]any{"title": r.Title, "exa_id": r.ID},
	}, nil
}

// publishedToTimestamp converts Exa's RFC3339 publishedDate to this
// repo's 14-digit timestamp format, best-effort.
func publishedToTimestamp(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return ""
	}
	return t.Format(types.TimestampLayout)
}

// Exists reports whether Exa has any content for target.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	res, err := a.Fetch(ctx, target, dr)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// ListSnapshots is unsupported: Exa is not a versioned archive; it
// returns the current indexed content, not a timeline of captures.
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	return nil, source.ErrUnsupportedOperation
}

var _ source.Adapter = (*Adapter)(nil)
