// Package httpclient builds the shared, pooled *http.Client injected into
// every source adapter (§5 "Global outbound HTTP: one shared client with a
// connection pool sized ~100 total / 10 per host; HTTP/2 when available").
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New builds a shared client suitable for injection into adapters. Callers
// needing a different per-request deadline should set it on the context,
// not on the client — the client itself carries no Timeout so that
// long-lived streaming reads (e.g. CC shard range fetches) are not cut off
// by a blanket deadline.
func New() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport}
}

// Default is a process-wide shared client for adapters and tests that do
// not need an injected one (§3 Ownership: "Each adapter owns its HTTP
// client unless a shared client is injected (preferred)").
var Default = New()
