package mapper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/ratelimit"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// majesticSource queries Majestic's backlink API for referring URLs to a
// domain, carrying trust/citation flow per DiscoveredURL (§4.9 "backlink
// APIs"; §3 "trust/citation flow from backlink APIs"). Missing
// MAJESTIC_API_KEY degrades to a clean no-op per §6 Authentication.
type majesticSource struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	apiKey    string
	available bool
	baseURL   string // overridden in tests; defaults to the real Majestic endpoint
}

const majesticBaseURL = "https://api.majestic.com/api/json"

// NewMajesticSource builds the Majestic backlink discovery source, reading
// MAJESTIC_API_KEY from the environment.
func NewMajesticSource(client *http.Client, limiter *ratelimit.Limiter) Source {
	apiKey := os.Getenv("MAJESTIC_API_KEY")
	return &majesticSource{client: client, limiter: limiter, apiKey: apiKey, available: apiKey != "", baseURL: majesticBaseURL}
}

func (m *majesticSource) Name() string { return "backlink:majestic" }

func (m *majesticSource) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL)
	go func() {
		defer close(out)
		if !m.available {
			return
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		q := url.Values{
			"app_api_key": {m.apiKey},
			"cmd":         {"GetBackLinkData"},
			"item":        {domain},
			"datasource":  {"fresh"},
		}
		base := m.baseURL
		if base == "" {
			base = majesticBaseURL
		}
		endpoint := base + "?" + q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return
		}
		resp, err := m.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Msg("majestic: request failed")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Debug().Int("status", resp.StatusCode).Msg("majestic: non-200 response")
			return
		}

		var body struct {
			DataTables struct {
				BackLinks struct {
					Data []struct {
						SourceURL    string  `json:"SourceURL"`
						TrustFlow    float64 `json:"SourceTrustFlow"`
						CitationFlow float64 `json:"SourceCitationFlow"`
					} `json:"Data"`
				} `json:"BackLinks"`
			} `json:"DataTables"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			log.Debug().Err(err).Msg("majestic: parse failure")
			return
		}

		now := time.Now()
		for _, row := range body.DataTables.BackLinks.Data {
			if row.SourceURL == "" {
				continue
			}
			select {
			case out <- types.DiscoveredURL{
				URL:          row.SourceURL,
				Domain:       domain,
				Source:       m.Name(),
				DiscoveredAt: now,
				TrustFlow:    row.TrustFlow,
				CitationFlow: row.CitationFlow,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
