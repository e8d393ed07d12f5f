package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDRESS", "CORS_ORIGIN", "KAFKA_BROKERS", "STORE_BACKEND", "DEFAULT_STEP_GOAL", "REDIS_URL", "WS_SEND_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, "http://localhost:5173", cfg.CORSOrigin)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, 10000, cfg.DefaultStepGoal)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, 64, cfg.WSSendBuffer)
	require.Equal(t, []string{"campus_alert_events", "campus_step_goal_events"}, cfg.ConsumerTopics)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("OUTBOX_ENABLED", "false")
	t.Setenv("DEFAULT_STEP_GOAL", "not-a-number")
	t.Setenv("WS_WRITE_TIMEOUT", "3s")
	t.Setenv("CONSUMER_MAX_ATTEMPTS", "2")
	t.Setenv("CONSUMER_RETRY_BACKOFF", "1s")

	cfg := Load()
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.False(t, cfg.OutboxEnabled)
	require.Equal(t, 10000, cfg.DefaultStepGoal, "unparseable values fall back")
	require.Equal(t, 3*time.Second, cfg.WSWriteTimeout)
	require.Equal(t, 2, cfg.ConsumerAttempts)
	require.Equal(t, time.Second, cfg.ConsumerBackoff)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SMS_PROVIDER=log\nSMS_SENDER=10008663\n"), 0o600))
	t.Setenv("SMS_PROVIDER", "")
	require.NoError(t, os.Unsetenv("SMS_PROVIDER"))
	t.Setenv("SMS_SENDER", "from-env")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { _ = os.Unsetenv("SMS_PROVIDER") })

	cfg := Load()
	require.Equal(t, "log", cfg.SMSProvider)
	require.Equal(t, "from-env", cfg.SMSSender, "existing variables are not overridden")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
