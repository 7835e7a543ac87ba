package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitjerkers/linkage/internal/config"
	"github.com/bitjerkers/linkage/internal/metrics"
)

func TestLoadConfigMissingDefaultIsFine(t *testing.T) {
	t.Setenv("LINKAGE_CONFIG_DIR", t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDNSRequests, cfg.Leaks.DNSRequests)
	assert.Equal(t, "openvpn", cfg.VPN.ClientBinary)
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkage.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
leaks {
  dns_requests = 42
}
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Leaks.DNSRequests)
}

func TestLoadConfigExplicitPathMissingIsError(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}

func TestRunConnectRequiresFile(t *testing.T) {
	err := RunConnect(ConnectOptions{})
	assert.ErrorContains(t, err, "usage")
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Get().ConnectAttempts.WithLabelValues("failed").Inc()

	srv := httptest.NewServer(metricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "linkage_connect_attempts_total")
}

func TestNewDetectorHonorsOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Leaks.DNSDetectEndpoint = "https://example.test/dnsdetect/?l=%s"

	d := newDetector(cfg)
	assert.NotNil(t, d)
}
