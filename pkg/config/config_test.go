package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /data/chat
security:
  encryption:
    key: deadbeef
  api_keys:
    backend: ["k1", "k2"]
  rate_limit:
    rps: 10
    burst: 20
notify:
  url: https://hooks.internal/notify
logging:
  level: debug
  format: json
maintenance:
  compaction: "0 3 * * *"
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, "/data/chat", cfg.Server.DBPath)
	require.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys.Backend)
	require.Equal(t, 10.0, cfg.Security.RateLimit.RPS)
	require.Equal(t, "https://hooks.internal/notify", cfg.Notify.URL)
	require.Equal(t, "0 3 * * *", cfg.Maintenance.Compaction)
}

func TestAddrDefaults(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TICKETCHAT_ADDR", "10.0.0.5:7000")
	t.Setenv("TICKETCHAT_ENCRYPTION_KEY", "envkey")
	t.Setenv("TICKETCHAT_API_BACKEND_KEYS", "a, b ,c")
	t.Setenv("TICKETCHAT_API_ALLOW_UNAUTH", "true")

	cfg := &Config{}
	require.True(t, LoadEnvOverrides(cfg))
	require.Equal(t, "10.0.0.5:7000", cfg.Addr())
	require.Equal(t, "envkey", cfg.Security.Encryption.Key)
	require.Equal(t, []string{"a", "b", "c"}, cfg.Security.APIKeys.Backend)
	require.True(t, cfg.Security.APIKeys.AllowUnauth)
}

func TestEnvOverridesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	t.Setenv("TICKETCHAT_DB_PATH", "/env/override")

	cfg, envUsed, err := LoadEffective(path)
	require.NoError(t, err)
	require.True(t, envUsed)
	require.Equal(t, "/env/override", cfg.Server.DBPath)
	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoadEffectiveMissingFile(t *testing.T) {
	cfg, envUsed, err := LoadEffective(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.False(t, envUsed)
	require.NotNil(t, cfg)
}
