package ccwarc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/types"
)

func TestNewUnavailableWhenBinaryMissing(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nonexistent-binary"), "")
	require.False(t, a.Available())
	require.Equal(t, DefaultArchive, a.archive)
}

func TestIndexLookupUnavailableReturnsEmpty(t *testing.T) {
	a := New("", "")
	recs, err := a.IndexLookup(context.Background(), []string{"example.com"})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestBatchFetchUnavailableReturnsEmpty(t *testing.T) {
	a := New("", "")
	recs, err := a.BatchFetch(context.Background(), []string{"example.com"})
	require.NoError(t, err)
	require.Empty(t, recs)
}

// fakeBinary writes a shell/batch script that ignores its arguments and
// writes one NDJSON content record to the path given via --output=.
func fakeBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is POSIX-shell only")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ccwarc_fake.sh")
	body := `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --output=*) out="${arg#--output=}" ;;
  esac
done
echo '{"url":"https://example.com/","html":"<html></html>","timestamp":"20240101000000","status":200,"mime":"text/html","digest":"abc"}' > "$out"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestBatchFetchParsesFakeBinaryOutput(t *testing.T) {
	bin := fakeBinary(t)
	a := New(bin, "")
	require.True(t, a.Available())

	recs, err := a.BatchFetch(context.Background(), []string{"example.com"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "https://example.com/", recs[0].URL)
	require.Equal(t, 200, recs[0].Status)
}

func TestFetchSingleReturnsExactMatch(t *testing.T) {
	bin := fakeBinary(t)
	a := New(bin, "")

	rec, err := a.FetchSingle(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "https://example.com/", rec.URL)
}

func TestFetchAdaptsToSourceAdapterContract(t *testing.T) {
	bin := fakeBinary(t)
	a := New(bin, "")

	res, err := a.Fetch(context.Background(), "https://example.com/", types.DateRange{})
	require.NoError(t, err)
	require.True(t, res.Success())
}

func TestFetchPreconditionEmptyURL(t *testing.T) {
	a := New("", "")
	_, err := a.Fetch(context.Background(), "", types.DateRange{})
	require.Error(t, err)
}

func TestListSnapshotsUnsupported(t *testing.T) {
	a := New("", "")
	_, err := a.ListSnapshots(context.Background(), "https://example.com/", types.DateRange{}, 10)
	require.Error(t, err)
}

func TestHostOfStripsSchemeAndPath(t *testing.T) {
	require.Equal(t, "example.com", hostOf("https://example.com/a/b?c=1"))
	require.Equal(t, "example.com", hostOf("http://example.com"))
}

func TestJoinComma(t *testing.T) {
	require.Equal(t, "a,b,c", joinComma([]string{"a", "b", "c"}))
	require.Equal(t, "", joinComma(nil))
}
