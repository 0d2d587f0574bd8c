// Package urlnorm normalizes URLs for dedup: scheme lowercased, "www."
// stripped from the host, host case-folded. Used by the mapper's discovery
// dedup (§4.9) and by pkg/extract.
package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Normalize returns a canonical form of u suitable for equality/dedup
// comparisons. It is idempotent: Normalize(Normalize(u)) == Normalize(u)
// (§8 round-trip law). Malformed input is returned lowercased/trimmed as a
// best-effort fallback rather than erroring — normalization feeds dedup
// sets, not precondition checks.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	if u.Path == "/" {
		u.Path = ""
	}
	u.Fragment = ""
	return u.String()
}

// Host returns the case-folded, www-stripped host of a URL ("" on parse
// failure).
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// SameDomain reports whether two hosts are the same registrable host after
// normalization (exact host match only; subdomain grouping is the caller's
// responsibility via pkg/surt when a boundary check is needed).
func SameDomain(a, b string) bool {
	return Host(a) != "" && Host(a) == Host(b)
}

// RegistrableDomain returns the eTLD+1 of a host or URL ("" if it cannot be
// determined, e.g. a bare IP or an unrecognized public suffix), via
// publicsuffix so "a.b.example.co.uk" and "example.co.uk" both resolve to
// "example.co.uk" rather than the naive last-two-labels heuristic breaking
// on multi-part suffixes.
func RegistrableDomain(rawOrHost string) string {
	host := rawOrHost
	if strings.Contains(rawOrHost, "://") {
		host = Host(rawOrHost)
	} else {
		host = strings.TrimPrefix(strings.ToLower(host), "www.")
	}
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return reg
}

// WithinDomain reports whether candidate (a URL or bare host) belongs to
// domain's registrable suffix — true for the domain itself and any of its
// subdomains, false for unrelated hosts that merely share a substring
// (§4.9's discovery sources must not leak off-domain results from
// HTML-scraped search results into a domain map).
func WithinDomain(candidate, domain string) bool {
	reg := RegistrableDomain(domain)
	if reg == "" {
		return false
	}
	return RegistrableDomain(candidate) == reg
}

// IsHTTP reports whether raw parses as an http(s) URL.
func IsHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
