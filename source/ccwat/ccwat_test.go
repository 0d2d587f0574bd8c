package ccwat

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
	a := New(filepath.Join(t.TempDir(), "missing"), "")
	require.False(t, a.Available())
}

func TestExtractLinksUnavailableReturnsEmpty(t *testing.T) {
	a := New("", "")
	recs, err := a.ExtractLinks(context.Background(), []string{"example.com"})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func fakeBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness is POSIX-shell only")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ccwat_fake.sh")
	body := `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --output=*) out="${arg#--output=}" ;;
  esac
done
echo '{"url":"https://example.com/","timestamp":"20240101000000","status":200,"mime":"text/html","outlinks":["https://example.com/a"],"headers":{"content-type":"text/html"}}' > "$out"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestExtractLinksParsesFakeBinaryOutput(t *testing.T) {
	bin := fakeBinary(t)
	a := New(bin, "")
	require.True(t, a.Available())

	recs, err := a.ExtractLinks(context.Background(), []string{"example.com"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "https://example.com/", recs[0].URL)
	require.Equal(t, []string{"https://example.com/a"}, recs[0].Outlinks)
	require.Equal(t, "text/html", recs[0].Headers["content-type"])
}

func TestExistsTrueWhenRecordMatches(t *testing.T) {
	bin := fakeBinary(t)
	a := New(bin, "")

	ok, err := a.Exists(context.Background(), "https://example.com/", types.DateRange{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFetchUnsupported(t *testing.T) {
	a := New("", "")
	_, err := a.Fetch(context.Background(), "https://example.com/", types.DateRange{})
	require.Error(t, err)
}

func TestListSnapshotsUnsupported(t *testing.T) {
	a := New("", "")
	_, err := a.ListSnapshots(context.Background(), "https://example.com/", types.DateRange{}, 10)
	require.Error(t, err)
}
