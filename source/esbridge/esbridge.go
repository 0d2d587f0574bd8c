// Package esbridge is a thin query adapter to a local Elasticsearch
// cluster (§4.6 "ES Bridge (C3)"): eight primary query methods mapped to
// eight indices with index-specific field weights, direction-aware graph
// edge queries, vertex resolution, and domain backlink enrichment.
package esbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// Direction selects which edges a graph query follows (§4.6 "Graph edge
// queries support direction = inbound | outbound | both").
type Direction string

const (
	DirInbound  Direction = "inbound"
	DirOutbound Direction = "outbound"
	DirBoth     Direction = "both"
)

// Config names the eight backing indices and holds basic-auth credentials
// read from the process environment at construction (§6 Authentication:
// "ES_USERNAME"/"ES_PASSWORD ... Missing keys -> adapter logs a debug
// message and skips its work cleanly").
type Config struct {
	Addresses []string
	Username  string
	Password  string

	IndexOrgEntities     string
	IndexPersonEntities  string
	IndexProductEntities string
	IndexWDCEdges        string // hostname-keyed graph edges
	IndexCymEdges        string // integer-vertex-ID-keyed graph edges
	IndexCymVertices     string
	IndexDomainsUnified  string
	IndexPDF             string
}

// DefaultConfig reads ES_USERNAME/ES_PASSWORD from the environment and
// assumes the default localhost ES endpoint; index names follow the
// naming this spec documents and are overridable per deployment.
func DefaultConfig() Config {
	return Config{
		Addresses:            []string{"http://localhost:9200"},
		Username:             os.Getenv("ES_USERNAME"),
		Password:             os.Getenv("ES_PASSWORD"),
		IndexOrgEntities:     "entities-org",
		IndexPersonEntities:  "entities-person",
		IndexProductEntities: "entities-product",
		IndexWDCEdges:        "webgraph-wdc-edges",
		IndexCymEdges:        "webgraph-cymonides-edges",
		IndexCymVertices:     "webgraph-cymonides-vertices",
		IndexDomainsUnified:  "domains-unified",
		IndexPDF:             "documents-pdf",
	}
}

// Hit is one decorated search result: the raw ES _source plus provenance.
type Hit struct {
	ID          string
	Score       float64
	Index       string
	IndexYear   string // parsed from index name when it carries a year suffix, e.g. "domains-unified-2023"
	IndexSource string // the logical source this index represents, e.g. "domains-unified"
	Source      map[string]any
}

// Adapter is the Elasticsearch bridge. It is not a source.Adapter in the
// Fetch/Exists/ListSnapshots sense (ES queries are entity/graph lookups,
// not URL archival); it is consumed directly by the mapper and by the
// LLM-analyzer wrappers this spec places out of scope.
type Adapter struct {
	cfg       Config
	client    *elasticsearch.Client
	available bool
	log       zerolog.Logger
}

// New constructs the ES bridge. If the client cannot be built (malformed
// config) the adapter remains available=false and every method becomes a
// no-op returning empty results (§7 "UnavailableSource").
func New(cfg Config) *Adapter {
	l := log.With().Str("adapter", "es-bridge").Logger()
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		l.Debug().Err(err).Msg("es client construction failed - bridge unavailable")
		return &Adapter{cfg: cfg, log: l}
	}
	return &Adapter{cfg: cfg, client: client, available: true, log: l}
}

func (a *Adapter) Available() bool { return a.available }

// multiMatchQuery builds a `bool`/`multi_match` query over weighted
// fields, the shape §4.6 documents for all eight methods ("builds a
// multi_match or bool query with stable field weights").
func multiMatchQuery(q string, fields []string) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": fields,
				"type":   "best_fields",
			},
		},
	}
}

func (a *Adapter) search(ctx context.Context, index string, body map[string]any, size int) ([]Hit, error) {
	if !a.available {
		return nil, nil
	}
	if size <= 0 {
		size = 50
	}
	body["size"] = size

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("esbridge: encode body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  &buf,
	}
	resp, err := req.Do(ctx, a.client)
	if err != nil {
		a.log.Debug().Err(err).Str("index", index).Msg("es search failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.IsError() {
		a.log.Debug().Int("status", resp.StatusCode).Str("index", index).Msg("es search returned error status")
		return nil, nil
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Index  string         `json:"_index"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		a.log.Debug().Err(err).Msg("es response decode failed")
		return nil, nil
	}

	out := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		year, logical := decorateIndex(h.Index)
		out = append(out, Hit{
			ID:          h.ID,
			Score:       h.Score,
			Index:       h.Index,
			IndexYear:   year,
			IndexSource: logical,
			Source:      h.Source,
		})
	}
	return out, nil
}

// decorateIndex splits a concrete index name like "domains-unified-2023"
// into its logical source and trailing year, when one is present.
func decorateIndex(index string) (year, logical string) {
	parts := strings.Split(index, "-")
	if n := len(parts); n > 1 {
		last := parts[n-1]
		if len(last) == 4 && isAllDigits(last) {
			return last, strings.Join(parts[:n-1], "-")
		}
	}
	return "", index
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// QueryOrgEntities searches the organization-entities index (method 1/8).
func (a *Adapter) QueryOrgEntities(ctx context.Context, q string, size int) ([]Hit, error) {
	fields := []string{"name^3", "aliases^2", "description", "domain^2"}
	return a.search(ctx, a.cfg.IndexOrgEntities, multiMatchQuery(q, fields), size)
}

// QueryPersonEntities searches the person-entities index (method 2/8).
func (a *Adapter) QueryPersonEntities(ctx context.Context, q string, size int) ([]Hit, error) {
	fields := []string{"full_name^3", "aliases^2", "titles", "organizations^2"}
	return a.search(ctx, a.cfg.IndexPersonEntities, multiMatchQuery(q, fields), size)
}

// QueryProductEntities searches the product-entities index (method 3/8),
// grounded on the original's search_wdc_products over wdc-product-entities.
func (a *Adapter) QueryProductEntities(ctx context.Context, q string, size int) ([]Hit, error) {
	fields := []string{"name^3", "brand^2", "description", "domain^2"}
	return a.search(ctx, a.cfg.IndexProductEntities, multiMatchQuery(q, fields), size)
}

// QueryHostVertices searches the Cymonides host-vertices index (method
// 4/8), used standalone and as the resolve step before a vertex-ID graph
// query.
func (a *Adapter) QueryHostVertices(ctx context.Context, host string, size int) ([]Hit, error) {
	fields := []string{"host^3", "domain^2"}
	return a.search(ctx, a.cfg.IndexCymVertices, multiMatchQuery(host, fields), size)
}

// ResolveVertex resolves a domain to its Cymonides vertex ID via an exact
// term query; returns ok=false and no query if no vertex exists, in which
// case the caller must skip the edge query rather than issue one with an
// empty vertex id (§4.6 "if no vertex exists the edge query is skipped").
func (a *Adapter) ResolveVertex(ctx context.Context, domain string) (vertexID string, ok bool, err error) {
	if !a.available {
		return "", false, nil
	}
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"host.keyword": domain},
		},
	}
	hits, err := a.search(ctx, a.cfg.IndexCymVertices, body, 1)
	if err != nil || len(hits) == 0 {
		return "", false, err
	}
	id, _ := hits[0].Source["vertex_id"].(string)
	if id == "" {
		if idNum, ok := hits[0].Source["vertex_id"].(float64); ok {
			id = fmt.Sprintf("%.0f", idNum)
		}
	}
	if id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// QueryGraphEdgesWDC queries the hostname-keyed WDC edges index (method
// 5/8), filtering by direction.
func (a *Adapter) QueryGraphEdgesWDC(ctx context.Context, host string, dir Direction, size int) ([]Hit, error) {
	return a.search(ctx, a.cfg.IndexWDCEdges, edgeQuery("source_host", "target_host", host, dir), size)
}

// QueryGraphEdgesCymonides queries the integer-vertex-ID-keyed Cymonides
// edges index (method 6/8), resolving domain to a vertex first; if no
// vertex exists the edge query is skipped entirely (§4.6).
func (a *Adapter) QueryGraphEdgesCymonides(ctx context.Context, domain string, dir Direction, size int) ([]Hit, error) {
	vertexID, ok, err := a.ResolveVertex(ctx, domain)
	if err != nil || !ok {
		return nil, err
	}
	return a.search(ctx, a.cfg.IndexCymEdges, edgeQuery("source_id", "target_id", vertexID, dir), size)
}

// edgeQuery builds the direction-aware bool query shared by both graph
// edge methods: inbound matches on the "to" field, outbound on the "from"
// field, both is an OR of the two (§4.6).
func edgeQuery(fromField, toField, value string, dir Direction) map[string]any {
	out := map[string]any{"term": map[string]any{fromField: value}}
	in := map[string]any{"term": map[string]any{toField: value}}
	switch dir {
	case DirInbound:
		return map[string]any{"query": in}
	case DirOutbound:
		return map[string]any{"query": out}
	default: // both
		return map[string]any{
			"query": map[string]any{
				"bool": map[string]any{
					"should":               []any{out, in},
					"minimum_should_match": 1,
				},
			},
		}
	}
}

// QueryDomainsUnified searches the unified-domains index (method 7/8).
func (a *Adapter) QueryDomainsUnified(ctx context.Context, q string, size int) ([]Hit, error) {
	fields := []string{"domain^3", "title^2", "description"}
	return a.search(ctx, a.cfg.IndexDomainsUnified, multiMatchQuery(q, fields), size)
}

// QueryPDFs searches the PDF-documents index (method 8/8).
func (a *Adapter) QueryPDFs(ctx context.Context, q string, size int) ([]Hit, error) {
	fields := []string{"title^3", "text", "domain^2"}
	return a.search(ctx, a.cfg.IndexPDF, multiMatchQuery(q, fields), size)
}

// EnrichDomains issues a second aggregation query against the WDC edges
// index to attach a backlink count to each of the given domains (§4.6
// "Domain enrichment").
func (a *Adapter) EnrichDomains(ctx context.Context, domains []string) (map[string]int, error) {
	if !a.available || len(domains) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"size": 0,
		"query": map[string]any{
			"terms": map[string]any{"target_host.keyword": domains},
		},
		"aggs": map[string]any{
			"by_domain": map[string]any{
				"terms": map[string]any{"field": "target_host.keyword", "size": len(domains)},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("esbridge: encode enrichment body: %w", err)
	}
	req := esapi.SearchRequest{Index: []string{a.cfg.IndexWDCEdges}, Body: &buf}
	resp, err := req.Do(ctx, a.client)
	if err != nil {
		a.log.Debug().Err(err).Msg("domain enrichment query failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, nil
	}

	var parsed struct {
		Aggregations struct {
			ByDomain struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int    `json:"doc_count"`
				} `json:"buckets"`
			} `json:"by_domain"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}

	out := make(map[string]int, len(parsed.Aggregations.ByDomain.Buckets))
	for _, b := range parsed.Aggregations.ByDomain.Buckets {
		out[b.Key] = b.DocCount
	}
	return out, nil
}

// ToDiscoveredURL adapts a QueryDomainsUnified hit into a DiscoveredURL
// for the mapper's ES-backed discovery source (§4.9).
func ToDiscoveredURL(h Hit, domain string) types.DiscoveredURL {
	u, _ := h.Source["url"].(string)
	if u == "" {
		u, _ = h.Source["domain"].(string)
	}
	return types.DiscoveredURL{
		URL:    u,
		Domain: domain,
		Source: "es-domain-unified",
		Meta:   map[string]string{"index": h.Index, "index_year": h.IndexYear},
	}
}
