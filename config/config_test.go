package config

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAssemblesEveryComponent(t *testing.T) {
	app := New()
	require.NotNil(t, app.Orchestrator)
	require.NotNil(t, app.Mapper)
	require.NotNil(t, app.SearchEngine)
	require.NotNil(t, app.Differ)
	require.NotNil(t, app.Wayback)
	require.NotNil(t, app.ESBridge)
	require.NotNil(t, app.HTTPClient())
}

func TestWithHTTPClientOverridesSharedClient(t *testing.T) {
	custom := &http.Client{}
	app := New(WithHTTPClient(custom))
	require.Same(t, custom, app.HTTPClient())
}

func TestWithHTTPClientNilLeavesDefault(t *testing.T) {
	app := New(WithHTTPClient(nil))
	require.NotNil(t, app.HTTPClient())
}

func TestNewDefaultsCCArchiveWithoutBinaries(t *testing.T) {
	app := New(WithCCWarcBinary(""), WithCCWatBinary(""))
	require.NotNil(t, app.Orchestrator)
}

func TestWithSubdomainSeedsDoesNotPanic(t *testing.T) {
	app := New(WithSubdomainSeeds(map[string][]string{"crtsh": {"a.example.com"}}))
	require.NotNil(t, app.Mapper)
}
