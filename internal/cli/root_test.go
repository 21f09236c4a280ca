package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jackettSearch = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>Night.of.the.Living.Dead.1968</title>
      <link>magnet:?xt=urn:btih:aaaa</link>
      <size>1073741824</size>
      <torznab:attr name="seeders" value="5"/>
    </item>
    <item>
      <title>Night.of.the.Living.Dead.1990</title>
      <link>magnet:?xt=urn:btih:bbbb</link>
      <size>536870912</size>
      <torznab:attr name="seeders" value="12"/>
    </item>
  </channel>
</rss>`

func fakeJackett(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2.0/indexers/all/results/torznab/api":
			_, _ = w.Write([]byte(`<indexers><indexer id="archive" configured="true"/></indexers>`))
		case "/api/v2.0/indexers/archive/results/torznab/api":
			_, _ = w.Write([]byte(jackettSearch))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	tree := newCommandTree()
	tree.root.SetOut(&stdout)
	tree.root.SetErr(&stderr)
	tree.root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := tree.root.ExecuteContext(context.Background())
	if tree.rt != nil {
		tree.rt.close(context.Background())
	}
	return stdout.String(), stderr.String(), err
}

func setTestEnv(t *testing.T, jackettURL string) {
	t.Setenv("BTSTRM_JACKETT_URL", jackettURL)
	t.Setenv("BTSTRM_JACKETT_API_KEY", "secret")
	t.Setenv("BTSTRM_CACHE_DIR", t.TempDir())
	t.Setenv("BTSTRM_REDIS_URL", "")
	t.Setenv("BTSTRM_MONGO_URI", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func TestSearchCommandPrintsRankedRows(t *testing.T) {
	srv := fakeJackett(t)
	setTestEnv(t, srv.URL)

	stdout, stderr, err := runCLI(t, "search", "night", "of", "the", "living", "dead")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Night.of.the.Living.Dead.1990 [archive]\t12\t0.50 GB\tmagnet:?xt=urn:btih:bbbb", lines[0])
	assert.Equal(t, "Night.of.the.Living.Dead.1968 [archive]\t5\t1.00 GB\tmagnet:?xt=urn:btih:aaaa", lines[1])
	assert.Contains(t, stderr, "Searching torrents: 1/1")
}

func TestSearchCommandWithDeadJackettReportsNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	setTestEnv(t, srv.URL)

	stdout, _, err := runCLI(t, "search", "anything")
	require.NoError(t, err)
	assert.Equal(t, "No torrents found.\n", stdout)
}

func TestIndexersCommand(t *testing.T) {
	srv := fakeJackett(t)
	setTestEnv(t, srv.URL)

	stdout, _, err := runCLI(t, "indexers")
	require.NoError(t, err)
	assert.Equal(t, "archive\n", stdout)
}

func TestHistoryWithoutDatabase(t *testing.T) {
	setTestEnv(t, "http://127.0.0.1:9117")

	stdout, _, err := runCLI(t, "history", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, "No sessions recorded.\n", stdout)
}

func TestScanCommandListsCompleteFiles(t *testing.T) {
	setTestEnv(t, "http://127.0.0.1:9117")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.mkv"), nil, 0o644))

	stdout, _, err := runCLI(t, "scan", dir)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "btstrm "+Version))
}

func TestInvalidConfigFails(t *testing.T) {
	setTestEnv(t, "http://127.0.0.1:9117")
	t.Setenv("BTSTRM_SEARCH_CONCURRENCY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  concurrency: -1\n"), 0o644))

	tree := newCommandTree()
	tree.root.SetOut(&bytes.Buffer{})
	tree.root.SetErr(&bytes.Buffer{})
	tree.root.SetArgs([]string{"--config", path, "indexers"})
	err := tree.root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitInternal, ExitCode(err))
}

func TestReportStaysQuietOnInterrupt(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, context.Canceled)
	report(&buf, nil)
	assert.Empty(t, buf.String())

	report(&buf, errors.New("jackett exploded"))
	assert.Equal(t, "Error: jackett exploded\n", buf.String())
}
