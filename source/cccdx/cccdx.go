// Package cccdx implements the CommonCrawl CDX Server mode: a simple,
// caller-bounded URL lookup against a hosted API (§4.3 "CDX Server mode").
package cccdx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

const indexBaseURL = "https://index.commoncrawl.org"

// DefaultArchive is the newest archive queried when the caller does not
// specify one.
const DefaultArchive = "CC-MAIN-2024-51"

// Record is one CC-Index record with its WARC location.
type Record struct {
	URL         string
	Timestamp   string
	Status      int
	MIME        string
	Digest      string
	WARCFile    string
	WARCOffset  int64
	WARCLength  int64
}

// Adapter is the CC-Index CDX-mode source.Adapter.
type Adapter struct {
	client  *http.Client
	archive string
	log     zerolog.Logger
}

// New constructs a CDX-mode adapter for a given archive ID (e.g.
// "CC-MAIN-2024-51").
func New(client *http.Client, archive string) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	if archive == "" {
		archive = DefaultArchive
	}
	return &Adapter{client: client, archive: archive, log: log.With().Str("adapter", "cc-cdx").Logger()}
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceCommonCrawlIndex }

// LookupURL queries the CC CDX Server for a specific URL, bounded by
// limit (§4.3 "CDX Server mode").
func (a *Adapter) LookupURL(ctx context.Context, target string, limit int) ([]Record, error) {
	if target == "" {
		return nil, source.ErrEmptyURL
	}
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("url", target)
	params.Set("output", "json")
	params.Set("limit", strconv.Itoa(limit))

	apiURL := fmt.Sprintf("%s/%s-index?%s", indexBaseURL, a.archive, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("url", target).Msg("cc cdx query failed")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	return parseNDJSON(resp.Body), nil
}

func parseNDJSON(r interface{ Read([]byte) (int, error) }) []Record {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			break
		}
		rec := Record{
			URL:       str(raw["url"]),
			Timestamp: str(raw["timestamp"]),
			MIME:      str(raw["mime"]),
			Digest:    str(raw["digest"]),
			WARCFile:  str(raw["filename"]),
		}
		if s, err := strconv.Atoi(str(raw["status"])); err == nil {
			rec.Status = s
		}
		if o, err := strconv.ParseInt(str(raw["offset"]), 10, 64); err == nil {
			rec.WARCOffset = o
		}
		if l, err := strconv.ParseInt(str(raw["length"]), 10, 64); err == nil {
			rec.WARCLength = l
		}
		out = append(out, rec)
	}
	return out
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// Exists reports whether target has at least one CC-Index record.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return false, err
	}
	recs, err := a.LookupURL(ctx, target, 1)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// ListSnapshots wraps LookupURL with client-side date filtering (CC-Index
// CDX has no native range parameter, §4.1).
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return nil, err
	}
	recs, err := a.LookupURL(ctx, target, limit*2+1)
	if err != nil {
		return nil, err
	}

	fromTS, toTS := "", ""
	if dr.Start != "" {
		fromTS = source.ToNativeTimestamp(dr.Start)
	}
	if dr.End != "" {
		toTS = source.ToNativeTimestamp(dr.End) + "235959" // End day is inclusive
	}

	out := make([]types.Snapshot, 0, len(recs))
	for _, r := range recs {
		if fromTS != "" && r.Timestamp < fromTS {
			continue
		}
		if toTS != "" && r.Timestamp > toTS {
			continue
		}
		out = append(out, types.Snapshot{
			URL:        r.URL,
			Timestamp:  r.Timestamp,
			Source:     types.SourceCommonCrawlIndex,
			StatusCode: r.Status,
			MIME:       r.MIME,
			Digest:     r.Digest,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Fetch is unsupported: the CDX mode only returns WARC locations, not
// content — fetching bytes is ccwarc's job (§4.1).
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	return types.FetchResult{}, source.ErrUnsupportedOperation
}

var _ source.Adapter = (*Adapter)(nil)
