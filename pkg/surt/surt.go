// Package surt implements the Sort-friendly URI Reordering Transform used
// as CommonCrawl's cluster.idx sort key: hostname labels reversed and
// comma-joined so that a domain and all its subdomains cluster under a
// common prefix.
package surt

import "strings"

// Host returns the bare SURT key for a hostname, without the trailing
// boundary marker: "api.example.com" -> "com,example,api".
func Host(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}
	labels := strings.Split(host, ".")
	reversed := make([]string, len(labels))
	for i := range labels {
		reversed[i] = labels[len(labels)-1-i]
	}
	return strings.Join(reversed, ",")
}

// Prefix returns the SURT lookup prefix for a domain root, with the
// closing ')' appended as the binary-search bisection target (§6).
func Prefix(domain string) string {
	key := Host(domain)
	if key == "" {
		return ""
	}
	return key + ")"
}

// HasBoundary reports whether `suffix` — the remainder of a candidate SURT
// key immediately after `prefix` has been stripped — represents a genuine
// domain/path boundary rather than a false-positive substring match (e.g.
// "example.com" must not match "examplecompany.com"). An empty suffix (the
// key equals the stripped prefix exactly) also satisfies the boundary, and the
// "," separator additionally distinguishes sibling labels when `prefix`
// itself was not closed with ')' by the caller.
//
// Per §4.3 step 6: the character immediately after the prefix must be ')'
// or ',' — never a letter or digit.
func HasBoundary(suffix string) bool {
	if suffix == "" {
		return true
	}
	switch suffix[0] {
	case ')', ',':
		return true
	default:
		return false
	}
}

// Reverse recovers the original hostname (lowercased) from a bare SURT key
// (without the trailing ')'), e.g. "com,example,api" -> "api.example.com".
// It is the inverse of Host, modulo case and the stripped "www." prefix —
// per §8's "SURT is reversible" round-trip law.
func Reverse(key string) string {
	if key == "" {
		return ""
	}
	labels := strings.Split(key, ",")
	reversed := make([]string, len(labels))
	for i := range labels {
		reversed[i] = labels[len(labels)-1-i]
	}
	return strings.Join(reversed, ".")
}
