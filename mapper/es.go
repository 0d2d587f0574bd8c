package mapper

import (
	"context"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/esbridge"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// localESSource queries the ES domains-unified index for a domain's known
// URLs (§4.9 "local ES"; §4.6 "ES Bridge"). A nil bridge, or one
// whose Available() is false (its ES client could not be constructed),
// degrades to a clean no-op; no ping is made to check the cluster.
type localESSource struct {
	bridge *esbridge.Adapter
}

// NewLocalESSource builds the local-ES discovery source from an already
// constructed esbridge.Adapter (shared across the mapper and any other
// component that queries Elasticsearch, per §3 Ownership's "shared client
// injected" preference).
func NewLocalESSource(bridge *esbridge.Adapter) Source {
	return &localESSource{bridge: bridge}
}

func (l *localESSource) Name() string { return "local-es" }

func (l *localESSource) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL)
	go func() {
		defer close(out)
		if l.bridge == nil || !l.bridge.Available() {
			return
		}
		hits, err := l.bridge.QueryDomainsUnified(ctx, domain, 1000)
		if err != nil {
			return
		}
		for _, h := range hits {
			select {
			case out <- esbridge.ToDiscoveredURL(h, domain):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
