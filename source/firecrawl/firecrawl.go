// Package firecrawl implements the Firecrawl paid-scraper adapter: a
// single `POST /v1/scrape` call with a cache-first `maxAge` window (§6,
// §4.1).
package firecrawl

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

const (
	apiBase = "https://api.firecrawl.dev"

	// DefaultMaxAge is the cache-first window: 30 days, sent to the API
	// in milliseconds; the documented default (§6 "maxAge ms for cache-first, default 30
	// days").
	DefaultMaxAge = 30 * 24 * time.Hour
)

// Config holds the API key (read from FIRECRAWL_API_KEY at construction
// per §6) and the cache-first window.
type Config struct {
	APIKey string
	MaxAge time.Duration
}

// DefaultConfig reads FIRECRAWL_API_KEY from the environment; an empty
// key marks the adapter unavailable rather than failing at call time
// (§7 UnavailableSource).
func DefaultConfig() Config {
	return Config{
		APIKey: os.Getenv("FIRECRAWL_API_KEY"),
		MaxAge: DefaultMaxAge,
	}
}

// Adapter is the Firecrawl source.Adapter. It implements Fetch only;
// Firecrawl has no snapshot history or existence-check endpoint distinct
// from scraping, so Exists/ListSnapshots return ErrUnsupportedOperation
// (§4.1 "Not all adapters implement all three").
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
	l := log.With().Str("adapter", "firecrawl").Logger()
	a := &Adapter{client: client, cfg: cfg, log: l, apiBase: apiBase}
	if cfg.APIKey == "" {
		l.Debug().Msg("FIRECRAWL_API_KEY not set - adapter unavailable")
		return a
	}
	a.available = true
	return a
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceFirecrawlCache }

func (a *Adapter) Available() bool { return a.available }

type scrapeRequest struct {
	URL    string `json:"url"`
	MaxAge int64  `json:"maxAge,omitempty"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			StatusCode  int    `json:"statusCode"`
			SourceURL   string `json:"sourceURL"`
			Title       string `json:"title"`
			ContentType string `json:"contentType"`
		} `json:"metadata"`
	} `json:"data"`
}

// Fetch scrapes target via Firecrawl's cache-first endpoint (§4.1, §6).
// Any non-2xx, timeout, or missing API key yields an empty FetchResult,
// never an error — only precondition violations raise.
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return types.FetchResult{}, err
	}
	if !a.available {
		return types.FetchResult{URL: target}, nil
	}

	reqBody := scrapeRequest{URL: target, MaxAge: a.cfg.MaxAge.Milliseconds()}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return types.FetchResult{URL: target}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/v1/scrape", &buf)
	if err != nil {
		return types.FetchResult{URL: target}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("firecrawl scrape failed")
		return types.FetchResult{URL: target}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		a.log.Error().Int("status", resp.StatusCode).Msg("firecrawl authentication failure")
		a.available = false
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		a.log.Debug().Msg("firecrawl rate limited")
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}

	var parsed scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		a.log.Debug().Err(err).Msg("firecrawl response decode failed")
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}
	if !parsed.Success {
		return types.FetchResult{URL: target, StatusCode: resp.StatusCode}, nil
	}

	return types.FetchResult{
		URL:        target,
		Source:     types.SourceFirecrawlCache,
		StatusCode: resp.StatusCode,
		MIME:       parsed.Data.Metadata.ContentType,
		HTML:       parsed.Data.HTML,
		Content:    parsed.Data.Markdown,
		Metadata: map[string]any{
			"title": parsed.Data.Metadata.Title,
		},
	}, nil
}

// Exists is unsupported: Firecrawl has no existence-check API distinct
// from a full scrape.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	return false, source.ErrUnsupportedOperation
}

// ListSnapshots is unsupported: Firecrawl returns the current live page,
// not a history of archived captures.
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	return nil, source.ErrUnsupportedOperation
}

var _ source.Adapter = (*Adapter)(nil)
