// Package config wires every component into one App using the
// functional-options pattern app.go establishes: sensible defaults built
// from each component's own DefaultConfig, overridable via Option, with
// every credential read from the process environment (§6 Authentication,
// §9 Design Notes "Dynamic config/kwargs" -> explicit configuration
// records).
package config

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/differ"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/mapper"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/orchestrator"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/httpclient"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/ratelimit"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/searchengine"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/cccdx"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/ccidx"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/ccwarc"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/ccwat"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/esbridge"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/exa"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/firecrawl"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/memento"
	"github.com/zadorian/SEARCH-ENGINEER-sub001/source/wayback"
)

// DefaultArchiveSnapshotLimit bounds how many snapshots each archive
// enumeration source lists per domain pattern, matching the ES bridge's
// own 1000-hit query cap (mapper/es.go).
const DefaultArchiveSnapshotLimit = 1000

// rateDefaults are the documented per-provider rps (§6's per-provider
// list: Google Custom Search, Brave, Majestic; everything else
// unlimited).
var rateDefaults = map[string]float64{
	"search:google-cse": 10,
	"search:brave":      1,
	"backlink:majestic": 1,
}

// App composes every layer this repo exposes: the racing orchestrator,
// the discovery mapper, the streaming search engine, and the differ, all
// sharing one pooled HTTP client and one rate-limit registry.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Mapper       *mapper.Mapper
	SearchEngine *searchengine.Engine
	Differ       *differ.Differ

	Wayback  *wayback.Adapter
	ESBridge *esbridge.Adapter

	client *http.Client
	log    zerolog.Logger
}

// Option configures App at construction.
type Option func(*appBuild)

// appBuild accumulates Option overrides before New assembles the
// components that depend on them.
type appBuild struct {
	client        *http.Client
	log           *zerolog.Logger
	ccArchive     string
	ccWarcBinary  string
	ccWatBinary   string
	trueRace      bool
	subdomainSeed mapper.Seeds
}

// WithHTTPClient overrides the shared pooled client every adapter uses.
func WithHTTPClient(c *http.Client) Option {
	return func(b *appBuild) {
		if c != nil {
			b.client = c
		}
	}
}

// WithLogger overrides the base logger every component derives from.
func WithLogger(l zerolog.Logger) Option {
	return func(b *appBuild) { b.log = &l }
}

// WithCCArchive overrides the CommonCrawl archive ID every CC adapter
// targets (default cccdx.DefaultArchive).
func WithCCArchive(archive string) Option {
	return func(b *appBuild) { b.ccArchive = archive }
}

// WithCCWarcBinary points ccwarc at an external WARC-fetching binary
// (§4.4's "contract, not an implementation"); an empty path leaves the
// adapter unavailable.
func WithCCWarcBinary(path string) Option {
	return func(b *appBuild) { b.ccWarcBinary = path }
}

// WithCCWatBinary points ccwat at an external WAT-extraction binary.
func WithCCWatBinary(path string) Option {
	return func(b *appBuild) { b.ccWatBinary = path }
}

// WithTrueRace flips the orchestrator's §9 Open Question resolution to
// cancel-on-first-success instead of await-all.
func WithTrueRace() Option {
	return func(b *appBuild) { b.trueRace = true }
}

// WithSubdomainSeeds injects pre-gathered subdomains for the stub
// enumeration sources (§9 Open Question decision 2).
func WithSubdomainSeeds(seeds mapper.Seeds) Option {
	return func(b *appBuild) { b.subdomainSeed = seeds }
}

// New assembles every component with its documented defaults, reading
// API credentials from the environment per §6, then applies opts.
func New(opts ...Option) *App {
	build := &appBuild{
		ccArchive:    cccdx.DefaultArchive,
		ccWarcBinary: os.Getenv("CC_WARC_BINARY"),
		ccWatBinary:  os.Getenv("CC_WAT_BINARY"),
	}
	for _, o := range opts {
		o(build)
	}

	baseLog := log.Logger
	if build.log != nil {
		baseLog = *build.log
	}
	client := build.client
	if client == nil {
		client = httpclient.New()
	}

	waybackAdapter := wayback.New(client, wayback.DefaultConfig())
	mementoAdapter := memento.New(client, memento.DefaultConfig())
	cdxAdapter := cccdx.New(client, build.ccArchive)
	idxAdapter := ccidx.New(client, ccidx.WithArchive(build.ccArchive))
	warcAdapter := ccwarc.New(build.ccWarcBinary, build.ccArchive)
	watAdapter := ccwat.New(build.ccWatBinary, build.ccArchive)
	firecrawlAdapter := firecrawl.New(client, firecrawl.DefaultConfig())
	exaAdapter := exa.New(client, exa.DefaultConfig())
	esBridge := esbridge.New(esbridge.DefaultConfig())

	orch := orchestrator.New(orchestrator.Config{
		Sources: []source.Adapter{
			waybackAdapter,
			mementoAdapter,
			cdxAdapter,
			idxAdapter,
			warcAdapter,
			watAdapter,
			firecrawlAdapter,
			exaAdapter,
		},
		Timeout:          orchestrator.DefaultFetchTimeout,
		BatchConcurrency: orchestrator.DefaultBatchLimit,
		TrueRace:         build.trueRace,
	})

	limiters := ratelimit.NewRegistry(rateDefaults)
	m := mapper.New(mapper.DefaultConfig(),
		mapper.NewCrtShSource(build.subdomainSeed),
		mapper.NewSublist3rSource(build.subdomainSeed),
		mapper.NewDNSDumpsterSource(build.subdomainSeed),
		mapper.NewWhoisXMLSource(build.subdomainSeed),
		mapper.NewGoogleCSESource(client, limiters.For("search:google-cse")),
		mapper.NewSerpAPIBingSource(client, limiters.For("search:serpapi-bing")),
		mapper.NewBraveSource(client, limiters.For("search:brave")),
		mapper.NewDuckDuckGoSource(client, limiters.For("search:duckduckgo")),
		mapper.NewArchiveSource("wayback", waybackAdapter, DefaultArchiveSnapshotLimit),
		mapper.NewArchiveSource("cc-cdx", cdxAdapter, DefaultArchiveSnapshotLimit),
		mapper.NewArchiveSource("cc-idx", idxAdapter, DefaultArchiveSnapshotLimit),
		mapper.NewArchiveSource("memento", mementoAdapter, DefaultArchiveSnapshotLimit),
		mapper.NewSitemapSource(client),
		mapper.NewMajesticSource(client, limiters.For("backlink:majestic")),
		mapper.NewLocalESSource(esBridge),
	)

	engine := searchengine.New(searchengine.DefaultConfig(),
		searchengine.NewWaybackYearSource(waybackAdapter),
		searchengine.NewCCYearSource(idxAdapter, warcAdapter, searchengine.DefaultMaxConcurrentPerYear),
	)

	d := differ.New(differ.DefaultConfig(), m, waybackAdapter, orch)

	return &App{
		Orchestrator: orch,
		Mapper:       m,
		SearchEngine: engine,
		Differ:       d,
		Wayback:      waybackAdapter,
		ESBridge:     esBridge,
		client:       client,
		log:          baseLog.With().Str("component", "app").Logger(),
	}
}

// Logger returns the app's base logger, already tagged with
// component=app (§9 "structured logging").
func (a *App) Logger() zerolog.Logger { return a.log }

// HTTPClient returns the shared pooled client every adapter was
// constructed with (§3 Ownership: "a shared client injected (preferred)").
func (a *App) HTTPClient() *http.Client { return a.client }
