package ledgerd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadfive/core/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /var/lib/ledgerd\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "/var/lib/ledgerd/idempotency.db", cfg.Idempotency.Path)
	require.Equal(t, 24*time.Hour, cfg.Idempotency.TTL.Duration)
	require.Equal(t, "sqlite", cfg.Audit.Driver)
	require.Equal(t, "/var/lib/ledgerd/audit.db", cfg.Audit.DSN)
	require.Equal(t, "ledger.governance", cfg.Auth.GovernanceScope)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, float64(600), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "ledgerd", cfg.Telemetry.ServiceName)

	intervals := cfg.Schedule.Intervals()
	require.Len(t, intervals, 3)
	require.Equal(t, 7*24*time.Hour, intervals[types.GlobalHelpPool])
	require.Equal(t, 30*24*time.Hour, intervals[types.ClubPool])
}

func TestLoadConfigOverrides(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secret, []byte("  from-file\n"), 0o600))
	path := writeConfig(t, `
listen: 127.0.0.1:9000
bootstrap:
  root: "0x00000000000000000000000000000000000000aa"
  tier: 2
audit:
  driver: postgres
  dsn: postgres://ledger@localhost/ledger
auth:
  enabled: true
  hmac_secret_file: `+secret+`
  clock_skew: 30s
schedule:
  enabled: true
  tick: 10s
  help: 24h
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, uint32(2), cfg.Bootstrap.Tier)
	require.Equal(t, "postgres", cfg.Audit.Driver)
	require.Equal(t, "from-file", cfg.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew.Duration)
	require.True(t, cfg.Schedule.Enabled)
	require.Equal(t, 10*time.Second, cfg.Schedule.Tick.Duration)
	require.Equal(t, 24*time.Hour, cfg.Schedule.Intervals()[types.GlobalHelpPool])
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"auth without secret":  "auth:\n  enabled: true\n",
		"unknown driver":       "audit:\n  driver: mysql\n  dsn: x\n",
		"postgres without dsn": "audit:\n  driver: postgres\n",
		"negative burst":       "rate_limit:\n  burst: -1\n",
		"bad root":             "bootstrap:\n  root: nope\n  tier: 1\n",
		"root without tier":    "bootstrap:\n  root: \"0x00000000000000000000000000000000000000aa\"\n",
		"short tick":           "schedule:\n  tick: 10ms\n",
		"bad duration":         "idempotency:\n  ttl: soon\n",
		"duration mapping":     "idempotency:\n  ttl:\n    hours: 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
