package mapper

import (
	"context"
	"time"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

// SubdomainSource enumerates subdomains of a root domain from a single
// provider (certificate-transparency logs, passive DNS, …). Implementers
// emit one DiscoveredURL per discovered host (§4.9 "Subdomain sources").
type SubdomainSource interface {
	Source
}

// subdomainAdapter turns a slice-producing enumeration func into a
// channel-based Source, matching the shape every other discovery source in
// this package uses.
type subdomainAdapter struct {
	name string
	fn   func(ctx context.Context, domain string) ([]string, error)
}

func (s *subdomainAdapter) Name() string { return "subdomain:" + s.name }

func (s *subdomainAdapter) Discover(ctx context.Context, domain string) <-chan types.DiscoveredURL {
	out := make(chan types.DiscoveredURL)
	go func() {
		defer close(out)
		hosts, err := s.fn(ctx, domain)
		if err != nil {
			return
		}
		now := time.Now()
		for _, host := range hosts {
			select {
			case out <- types.DiscoveredURL{
				URL:          "https://" + host + "/",
				Domain:       domain,
				Subdomain:    host,
				Source:       s.Name(),
				DiscoveredAt: now,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Seeds supplies pre-gathered subdomains to a stub provider (§9 Open
// Question: "treat those source modules as declared but empty unless a
// caller passes seeds").
type Seeds map[string][]string

// NewCrtShSource returns the certificate-transparency subdomain source.
// With no seeds supplied it is declared but empty, per the Open Question
// decision: crt.sh's public API contract is out of scope for this repo to
// re-implement, but callers who already enumerate crt.sh certificates
// elsewhere can inject the results here.
func NewCrtShSource(seeds Seeds) SubdomainSource {
	return &subdomainAdapter{
		name: "crtsh",
		fn: func(ctx context.Context, domain string) ([]string, error) {
			return seeds["crtsh"], nil
		},
	}
}

// NewSublist3rSource returns the Sublist3r-shaped subdomain source stub.
func NewSublist3rSource(seeds Seeds) SubdomainSource {
	return &subdomainAdapter{
		name: "sublist3r",
		fn: func(ctx context.Context, domain string) ([]string, error) {
			return seeds["sublist3r"], nil
		},
	}
}

// NewDNSDumpsterSource returns the DNSDumpster-shaped subdomain source stub.
func NewDNSDumpsterSource(seeds Seeds) SubdomainSource {
	return &subdomainAdapter{
		name: "dnsdumpster",
		fn: func(ctx context.Context, domain string) ([]string, error) {
			return seeds["dnsdumpster"], nil
		},
	}
}

// NewWhoisXMLSource returns the WhoisXML-shaped subdomain source stub.
func NewWhoisXMLSource(seeds Seeds) SubdomainSource {
	return &subdomainAdapter{
		name: "whoisxml",
		fn: func(ctx context.Context, domain string) ([]string, error) {
			return seeds["whoisxml"], nil
		},
	}
}
