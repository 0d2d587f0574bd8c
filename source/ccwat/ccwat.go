// Package ccwat wraps an external WAT-extraction binary: the metadata-only
// sidecar to WARC carrying extracted outlinks and HTTP response headers
// per page, without page bodies (§4.4, GLOSSARY "WAT").
package ccwat

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

// LinkRecord is one WAT-extracted page: its outlinks and response
// headers, without body text.
type LinkRecord struct {
	URL       string
	Timestamp string
	Status    int
	MIME      string
	Outlinks  []string
	Headers   map[string]string
}

// Adapter launches an external WAT-extraction binary as a subprocess.
type Adapter struct {
	binaryPath string
	archive    string
	threads    int
	timeout    int
	available  bool
	log        zerolog.Logger
}

// New constructs the adapter, probing binaryPath once at construction
// time (§4.4 "probing binary availability").
func New(binaryPath, archive string) *Adapter {
	if archive == "" {
		archive = DefaultArchive
	}
	a := &Adapter{
		binaryPath: binaryPath,
		archive:    archive,
		threads:    DefaultThreads,
		timeout:    DefaultTimeout,
		log:        log.With().Str("adapter", "cc-wat").Logger(),
	}
	if binaryPath != "" {
		if _, err := os.Stat(binaryPath); err == nil {
			a.available = true
		}
	}
	if !a.available {
		a.log.Warn().Str("binary", binaryPath).Msg("ccwat binary not found - WAT extraction unavailable")
	}
	return a
}

func (a *Adapter) Name() types.ArchiveSource { return types.SourceCommonCrawlWAT }

// Available reports whether the subprocess binary was found.
func (a *Adapter) Available() bool { return a.available }

// ExtractLinks shells out to `<binary> wat --input=<domains-file>
// --archive=... --threads=... --timeout=... --output=<tempfile>` and
// reads back one LinkRecord per NDJSON line (§4.4).
func (a *Adapter) ExtractLinks(ctx context.Context, domains []string) ([]LinkRecord, error) {
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
		"wat",
		"--input=" + inputFile,
		"--archive=" + a.archive,
		"--threads=" + strconv.Itoa(a.threads),
		"--timeout=" + strconv.Itoa(a.timeout),
		"--output=" + outFile,
	}
	cmd := exec.CommandContext(ctx, a.binaryPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		a.log.Warn().Err(err).Str("output", string(out)).Msg("ccwat extraction failed")
		return nil, nil
	}

	return readLinkNDJSON(outFile), nil
}

// Fetch is unsupported: WAT carries no page body, only link/header
// metadata (§4.4's sidecar definition).
func (a *Adapter) Fetch(ctx context.Context, target string, dr types.DateRange) (types.FetchResult, error) {
	return types.FetchResult{}, source.ErrUnsupportedOperation
}

// Exists reports whether a WAT extraction over target's host produced any
// record for the exact URL.
func (a *Adapter) Exists(ctx context.Context, target string, dr types.DateRange) (bool, error) {
	if err := source.ValidatePrecondition(target, dr); err != nil {
		return false, err
	}
	if !a.available {
		return false, nil
	}
	recs, err := a.ExtractLinks(ctx, []string{hostOf(target)})
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.URL == target {
			return true, nil
		}
	}
	return false, nil
}

// ListSnapshots is unsupported: WAT extraction is not a snapshot
// timeline query.
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

func tempNDJSON() (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ccwat-*.ndjson")
	if err != nil {
		return "", nil, fmt.Errorf("ccwat: temp output file: %w", err)
	}
	p := f.Name()
	f.Close()
	os.Remove(p)
	return p, func() { os.Remove(p) }, nil
}

func writeLines(lines []string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ccwat-input-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("ccwat: temp input file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if err := w.Flush(); err != nil {
		p := f.Name()
		os.Remove(p)
		return "", nil, fmt.Errorf("ccwat: write input file: %w", err)
	}
	p := f.Name()
	return p, func() { os.Remove(p) }, nil
}

func readLinkNDJSON(path string) []LinkRecord {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []LinkRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw struct {
			URL       string            `json:"url"`
			Timestamp string            `json:"timestamp"`
			Status    int               `json:"status"`
			MIME      string            `json:"mime"`
			Outlinks  []string          `json:"outlinks"`
			Headers   map[string]string `json:"headers"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		out = append(out, LinkRecord{
			URL:       raw.URL,
			Timestamp: raw.Timestamp,
			Status:    raw.Status,
			MIME:      raw.MIME,
			Outlinks:  raw.Outlinks,
			Headers:   raw.Headers,
		})
	}
	return out
}

var _ source.Adapter = (*Adapter)(nil)
