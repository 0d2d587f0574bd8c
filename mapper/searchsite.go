package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/ratelimit"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// searchSiteSource issues a "site:domain" query against one search
// provider and emits a DiscoveredURL per result (§4.9 "search-engine
// site: queries"; §6 names Google Custom Search, Bing via SerpAPI, Brave
// Search, DuckDuckGo HTML). Missing credentials degrade the source to a
// clean no-op (§6 Authentication: "Missing keys -> adapter logs a debug
// message and skips its work cleanly"), mirroring every source.Adapter's
// UnavailableSource behavior even though this type predates that
// interface.
type searchSiteSource struct {
	name      string
	client    *http.Client
	limiter   *ratelimit.Limiter
	available bool
	run       func(ctx context.Context, c *http.Client, domain string) ([]string, error)
}

func (s *searchSiteSource) Name() string { return "search:" + s.name }

func (s *searchSiteSource) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL)
	go func() {
		defer close(out)
		if !s.available {
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		urls, err := s.run(ctx, s.client, domain)
		if err != nil {
			log.Debug().Err(err).Str("source", s.Name()).Msg("search-site query failed")
			return
		}
		now := time.Now()
		for _, u := range urls {
			select {
			case out <- types.DiscoveredURL{URL: u, Domain: domain, Source: s.Name(), DiscoveredAt: now}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// NewGoogleCSESource builds the Google Custom Search site: query source,
// reading GOOGLE_API_KEY/GOOGLE_CSE_ID from the environment (§6).
func NewGoogleCSESource(client *http.Client, limiter *ratelimit.Limiter) Source {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	cseID := os.Getenv("GOOGLE_CSE_ID")
	return &searchSiteSource{
		name: "google-cse", client: client, limiter: limiter,
		available: apiKey != "" && cseID != "",
		run: func(ctx context.Context, c *http.Client, domain string) ([]string, error) {
			q := url.Values{
				"key": {apiKey}, "cx": {cseID}, "q": {"site:" + domain},
			}
			endpoint := "https://www.googleapis.com/customsearch/v1?" + q.Encode()
			var body struct {
				Items []struct {
					Link string `json:"link"`
				} `json:"items"`
			}
			if err := getJSON(ctx, c, endpoint, &body); err != nil {
				return nil, err
			}
			out := make([]string, 0, len(body.Items))
			for _, it := range body.Items {
				out = append(out, it.Link)
			}
			return out, nil
		},
	}
}

// NewSerpAPIBingSource builds the Bing-via-SerpAPI site: query source,
// fanning out across the four markets §6 names in parallel
// (en-US, en-GB, de-DE, fr-FR), reading SERPAPI_KEY from the environment.
func NewSerpAPIBingSource(client *http.Client, limiter *ratelimit.Limiter) Source {
	apiKey := os.Getenv("SERPAPI_KEY")
	markets := []string{"en-US", "en-GB", "de-DE", "fr-FR"}
	return &searchSiteSource{
		name: "bing-serpapi", client: client, limiter: limiter,
		available: apiKey != "",
		run: func(ctx context.Context, c *http.Client, domain string) ([]string, error) {
			type marketResult struct {
				urls []string
				err  error
			}
			results := make(chan marketResult, len(markets))
			for _, m := range markets {
				m := m
				go func() {
					q := url.Values{
						"engine": {"bing"}, "api_key": {apiKey},
						"q": {"site:" + domain}, "cc": {m},
					}
					endpoint := "https://serpapi.com/search?" + q.Encode()
					var body struct {
						OrganicResults []struct {
							Link string `json:"link"`
						} `json:"organic_results"`
					}
					err := getJSON(ctx, c, endpoint, &body)
					urls := make([]string, 0, len(body.OrganicResults))
					for _, r := range body.OrganicResults {
						urls = append(urls, r.Link)
					}
					results <- marketResult{urls: urls, err: err}
				}()
			}
			var all []string
			for range markets {
				select {
				case r := <-results:
					if r.err == nil {
						all = append(all, r.urls...)
					}
				case <-ctx.Done():
					return all, ctx.Err()
				}
			}
			return all, nil
		},
	}
}

// NewBraveSource builds the Brave Search site: query source, reading
// BRAVE_API_KEY from the environment (§6).
func NewBraveSource(client *http.Client, limiter *ratelimit.Limiter) Source {
	apiKey := os.Getenv("BRAVE_API_KEY")
	return &searchSiteSource{
		name: "brave", client: client, limiter: limiter,
		available: apiKey != "",
		run: func(ctx context.Context, c *http.Client, domain string) ([]string, error) {
			q := url.Values{"q": {"site:" + domain}}
			endpoint := "https://api.search.brave.com/res/v1/web/search?" + q.Encode()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-Subscription-Token", apiKey)
			req.Header.Set("Accept", "application/json")
			resp, err := c.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("brave: status %d", resp.StatusCode)
			}
			var body struct {
				Web struct {
					Results []struct {
						URL string `json:"url"`
					} `json:"results"`
				} `json:"web"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return nil, err
			}
			out := make([]string, 0, len(body.Web.Results))
			for _, r := range body.Web.Results {
				out = append(out, r.URL)
			}
			return out, nil
		},
	}
}

// NewDuckDuckGoSource builds the DuckDuckGo HTML endpoint site: query
// source (§6 "DuckDuckGo HTML endpoint"). No API key is required, so this
// source is always available; HTML results are parsed with goquery, the
// same library pkg/extract uses for outlink/anchor extraction.
func NewDuckDuckGoSource(client *http.Client, limiter *ratelimit.Limiter) Source {
	return &searchSiteSource{
		name: "duckduckgo", client: client, limiter: limiter,
		available: true,
		run: func(ctx context.Context, c *http.Client, domain string) ([]string, error) {
			q := url.Values{"q": {"site:" + domain}}
			endpoint := "https://html.duckduckgo.com/html/?" + q.Encode()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
			}
			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return nil, err
			}
			var out []string
			doc.Find("a.result__a").Each(func(_ int, sel *goquery.Selection) {
				if href, ok := sel.Attr("href"); ok {
					out = append(out, href)
				}
			})
			return out, nil
		},
	}
}

func getJSON(ctx context.Context, c *http.Client, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search query: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
