// Package ccwarc wraps an external content-fetching binary that turns CC
// Index records (or bare domains) into full WARC page bodies. The core's
// job is only to probe binary availability, stage NDJSON/plaintext input
// files, launch the subprocess with concurrency/timeout flags, and read
// its NDJSON output — the binary itself is out of scope (§4.4).
package ccwarc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

const (
	DefaultArchive = "CC-MAIN-2024-51"
	DefaultThreads = 50
	DefaultTimeout = 30
)

// ContentRecord is one NDJSON output line: a fetched page body plus its
// provenance.
type ContentRecord struct {
	URL       string
	HTML      string
	Text      string
	Timestamp string
	Status    int
	MIME      string
	Digest    string
}

// Adapter launches an external WARC-fetching binary as a subprocess
// (§4.4's "contract, not an implementation").
type Adapter struct {
	binaryPath string
	archive    string
	threads    int
	timeout    int
	available  bool
	log        zerolog.Logger
}

// New constructs the adapter, probing binaryPath for existence once up
// front (§4.4 "probing binary availability").
func New(binaryPath, archive string) *Adapter {
	if archive == "" {
		archive = DefaultArchive
	}
	a := &Adapter{
		binaryPath: binaryPath,
		archive:    archive,
		threads:    DefaultThreads,
		timeout:    DefaultTimeout,
		log:        log.With().Str("adapter", "cc-warc").Logger(),
	}
	if binaryPath != "" {
		if _, err := os.Stat(binaryPath); err == nil {
			a.available = true
		}
	}
	if !a.available {
		a.log.Warn().Str("binary", binaryPath).Msg("ccwarc binary not found - WARC fetching unavailable")
	}
	return a
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceCommonCrawlData }

// Available reports whether the subprocess binary was found, so callers
// (the orchestrator) can degrade gracefully rather than attempting to run
// a missing executable (§4.4).
func (a *Adapter) Available() bool { return a.available }

// IndexLookup shells out to `<binary> index --domains=... --archive=...
// --threads=... --output=<tempfile>` and reads back NDJSON CC-Index
// records (§4.4).
func (a *Adapter) IndexLookup(ctx context.Context, domains []string) ([]map[string]any, error) {
	if !a.available || len(domains) == 0 {
		return nil, nil
	}

	outFile, cleanup, err := tempNDJSON()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{
		"index",
		"--domains=" + joinComma(domains),
		"--archive=" + a.archive,
		"--threads=" + strconv.Itoa(a.threads),
		"--output=" + outFile,
	}
	if err := a.run(ctx, args); err != nil {
		a.log.Warn().Err(err).Msg("ccwarc index failed")
		return nil, nil
	}
	return readGenericNDJSON(outFile), nil
}

// BatchFetch shells out to `<binary> batch --input=<domains-file>
// --archive=... --threads=... --timeout=... --output=<tempfile>`: the
// full index+fetch pipeline in one subprocess call (§4.4).
func (a *Adapter) BatchFetch(ctx context.Context, domains []string) ([]ContentRecord, error) {
	if !a.available || len(domains) == 0 {
		return nil, nil
	}

	inputFile, cleanupIn, err := writeLines(domains)
	if err != nil {
		return nil, err
	}
	defer cleanupIn()

	outFile, cleanupOut, err := tempNDJSON()
	if err != nil {
		return nil, err
	}
	defer cleanupOut()

	args := []string{
		"batch",
		"--input=" + inputFile,
		"--archive=" + a.archive,
		"--threads=" + strconv.Itoa(a.threads),
		"--timeout=" + strconv.Itoa(a.timeout),
		"--output=" + outFile,
	}
	if err := a.run(ctx, args); err != nil {
		a.log.Warn().Err(err).Msg("ccwarc batch failed")
		return nil, nil
	}
	return readContentNDJSON(outFile), nil
}

// FetchSingle is a batch_fetch([domain]) convenience wrapper, picking the
// exact-URL match if present and falling back to the first result (§4.4).
func (a *Adapter) FetchSingle(ctx context.Context, target string) (*ContentRecord, error) {
	host := hostOf(target)
	recs, err := a.BatchFetch(ctx, []string{host})
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].URL == target {
			return &recs[i], nil
		}
	}
	if len(recs) > 0 {
		return &recs[0], nil
	}
	return nil, nil
}

func (a *Adapter) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.binaryPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ccwarc: %w: %s", err, string(out))
	}
	return nil
}

// Fetch adapts FetchSingle to the common source.Adapter contract.
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return types.FetchResult{}, err
	}
	if !a.available {
		return types.FetchResult{URL: target}, nil
	}
	rec, err := a.FetchSingle(ctx, target)
	if err != nil || rec == nil {
		return types.FetchResult{URL: target}, nil
	}
	return types.FetchResult{
		URL:        rec.URL,
		Timestamp:  rec.Timestamp,
		Source:     types.SourceCommonCrawlData,
		StatusCode: rec.Status,
		MIME:       rec.MIME,
		HTML:       rec.HTML,
		Content:    rec.Text,
	}, nil
}

// Exists reports whether a single-domain batch fetch produced any record
// for target.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return false, err
	}
	if !a.available {
		return false, nil
	}
	rec, err := a.FetchSingle(ctx, target)
	return rec != nil, err
}

// ListSnapshots is unsupported: the binary contract returns content
// records, not a snapshot timeline — that belongs to cccdx/ccidx.
func (a *Adapter) ListSnapshots(ctx context.Context, target string, dr types.DateRange, limit int) ([]types.Snapshot, error) {
	return nil, source.ErrUnsupportedOperation
}

func hostOf(rawURL string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(rawURL) >= len(prefix) && rawURL[:len(prefix)] == prefix {
			rawURL = rawURL[len(prefix):]
			break
		}
	}
	for i, r := range rawURL {
		if r == '/' || r == '?' || r == '#' {
			return rawURL[:i]
		}
	}
	return rawURL
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func tempNDJSON() (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ccwarc-*.ndjson")
	if err != nil {
		return "", nil, fmt.Errorf("ccwarc: temp output file: %w", err)
	}
	p := f.Name()
	f.Close()
	os.Remove(p) // the binary creates it; we only need the path reserved
	return p, func() { os.Remove(p) }, nil
}

func writeLines(lines []string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ccwarc-input-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("ccwarc: temp input file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if err := w.Flush(); err != nil {
		p := f.Name()
		os.Remove(p)
		return "", nil, fmt.Errorf("ccwarc: write input file: %w", err)
	}
	p := f.Name()
	return p, func() { os.Remove(p) }, nil
}

func readGenericNDJSON(path string) []map[string]any {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func readContentNDJSON(path string) []ContentRecord {
	raw := readGenericNDJSON(path)
	out := make([]ContentRecord, 0, len(raw))
	for _, m := range raw {
		out = append(out, ContentRecord{
			URL:       strField(m, "url"),
			HTML:      strField(m, "html"),
			Text:      strField(m, "text"),
			Timestamp: strField(m, "timestamp"),
			Status:    intField(m, "status"),
			MIME:      strField(m, "mime"),
			Digest:    strField(m, "digest"),
		})
	}
	return out
}

func strField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

var _ source.Adapter = (*Adapter)(nil)
