package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfileIncludesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	CacheHitsTotal.Inc()

	path := filepath.Join(t.TempDir(), "btstrm.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "btstrm_cache_hits_total"))
}

func TestWriteTextfileNoPathIsNoop(t *testing.T) {
	require.NoError(t, WriteTextfile("", prometheus.NewRegistry()))
}
