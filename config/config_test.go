package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  tracking_observed_topic_name: "tracking.observed"
redis:
  host: "localhost"
  port: 6379
packtrace:
  http_addr: ":8080"
  auth_secret: "dev-secret"
  auth_token_ttl_seconds: 3600
  latest_cache_ttl_seconds: 600
  carrier_rate_limit_per_minute: 120
  notifier_consumer_group: "track-notifier"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "tracking.observed", cfg.Kafka.TrackingObservedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.PackTrace.HTTPAddr)
	require.Equal(t, "dev-secret", cfg.PackTrace.AuthSecret)
	require.Equal(t, 120, cfg.PackTrace.CarrierRateLimitPerMinute)
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
