// Package source declares the common adapter contract every single-source
// leaf implements (§4.1): fetch, exists, and list-snapshots, each honoring
// a caller-supplied timeout and a shared HTTP client, never raising on
// network/5xx errors.
package source

import (
	"context"
	"errors"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// ErrUnsupportedOperation is returned by adapters that do not implement a
// given capability (§4.1 "Not all adapters implement all three; unsupported
// methods fail with UnsupportedOperation").
var ErrUnsupportedOperation = errors.New("source: unsupported operation")

// ErrEmptyURL is a precondition violation (§7): adapters raise immediately
// rather than swallowing caller mistakes.
var ErrEmptyURL = errors.New("source: empty url")

// ErrInvalidDateRange is a precondition violation for a Start > End filter.
var ErrInvalidDateRange = errors.New("source: invalid date range (start after end)")

// Adapter is the capability set every source may implement. An adapter
// that does not support a method returns ErrUnsupportedOperation from it
// rather than omitting the method, so callers can type-assert against a
// single interface and treat "unsupported" as just another error kind to
// ignore per the orchestrator's swallow policy (§7).
type Adapter interface {
	// Name identifies the adapter for logs/provenance.
	Name() types.ArchiveSource

	// Fetch retrieves the best available archived copy of url. On any
	// non-2xx or timeout it returns an empty-content FetchResult carrying
	// the status code (or zero) rather than an error — only precondition
	// violations (empty URL, invalid range) return a non-nil error.
	Fetch(ctx context.Context, url string, dr types.DateRange) (types.FetchResult, error)

	// Exists reports whether url has any archived observation.
	Exists(ctx context.Context, url string, dr types.DateRange) (bool, error)

	// ListSnapshots returns up to limit Snapshots for url, newest-first
	// unless the adapter documents otherwise.
	ListSnapshots(ctx context.Context, url string, dr types.DateRange, limit int) ([]types.Snapshot, error)
}

// ValidatePrecondition checks the caller-facing preconditions every
// Adapter.Fetch/Exists/ListSnapshots must enforce before doing any I/O
// (§7 "Precondition violation ... raise immediately to the caller").
func ValidatePrecondition(url string, dr types.DateRange) error {
	if url == "" {
		return ErrEmptyURL
	}
	if dr.Invalid() {
		return ErrInvalidDateRange
	}
	return nil
}

// ToNativeTimestamp converts a caller YYYY-MM-DD date to the bare 8-digit
// prefix Wayback/CommonCrawl use for from/to filtering (§4.1).
func ToNativeTimestamp(date string) string {
	out := make([]byte, 0, 8)
	for _, r := range date {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
