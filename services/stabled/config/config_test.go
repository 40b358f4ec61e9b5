package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stabled.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine_config: engine.toml\n"))
	require.NoError(t, err)
	require.Equal(t, defaultListen, cfg.ListenAddress)
	require.Equal(t, "sqlite", cfg.Audit.Driver)
	require.Equal(t, uint8(defaultFeedDecimals), cfg.Oracle.FeedDecimals)
	require.Equal(t, "scope", cfg.Auth.ScopeClaim)
	require.False(t, cfg.Auth.Enabled)
}

func TestLoadFullDocument(t *testing.T) {
	doc := `
listen: "127.0.0.1:9000"
engine_config: " engine.toml "
data_dir: /var/lib/stabled
audit:
  driver: Postgres
  dsn: postgres://stabled@localhost/stabled
auth:
  enabled: true
  hmac_secret: s3cret
  issuer: issuer
  audience: stabled
  clock_skew: 30s
rate_limit:
  requests_per_minute: 120
  burst: 10
oracle:
  feed_decimals: 8
  max_deviation_bps: 2000
logging:
  level: DEBUG
  file: /var/log/stabled.log
telemetry:
  endpoint: collector:4318
  traces: true
`
	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "engine.toml", cfg.EngineConfig)
	require.Equal(t, "postgres", cfg.Audit.Driver)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkewDuration())
	require.Equal(t, 120.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, uint64(2000), cfg.Oracle.MaxDeviationBps)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Telemetry.Traces)
}

func TestLoadReadsSecretFromEnvironment(t *testing.T) {
	t.Setenv("STABLED_TEST_SECRET", "from-env")
	cfg, err := Load(writeConfig(t, "engine_config: e.toml\nauth:\n  enabled: true\n  hmac_secret_env: STABLED_TEST_SECRET\n"))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing engine config": "listen: :1\n",
		"unknown field":         "engine_config: e.toml\nunknown: 1\n",
		"auth without secret":   "engine_config: e.toml\nauth:\n  enabled: true\n",
		"bad clock skew":        "engine_config: e.toml\nauth:\n  clock_skew: soon\n",
		"postgres without dsn":  "engine_config: e.toml\naudit:\n  driver: postgres\n",
		"unknown driver":        "engine_config: e.toml\naudit:\n  driver: mysql\n",
		"negative rate":         "engine_config: e.toml\nrate_limit:\n  burst: -1\n",
		"feed decimals":         "engine_config: e.toml\noracle:\n  feed_decimals: 30\n",
		"deviation":             "engine_config: e.toml\noracle:\n  max_deviation_bps: 20000\n",
		"sample ratio":          "engine_config: e.toml\ntelemetry:\n  sample_ratio: 1.5\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, doc))
			require.Error(t, err)
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
