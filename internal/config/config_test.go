package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/config"
)

var envKeys = []string{
	"PORT", "STORE", "LOG_LEVEL",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"KAFKA_BROKERS", "KAFKA_GROUP_ID", "KAFKA_ORDERS_TOPIC", "KAFKA_NOTIFICATIONS_TOPIC",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"DISPATCH_BROADCAST_TTL", "DISPATCH_FANOUT_WIDTH", "DISPATCH_STACKING_LIMIT",
	"DISPATCH_ACCEPT_TIMEOUT", "DISPATCH_SWEEP_INTERVAL", "DISPATCH_SWEEP_BATCH_SIZE",
	"DISPATCH_MAX_REDISPATCH_ATTEMPTS", "DISPATCH_OPERATION_TIMEOUT",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RATE", "RATE_LIMIT_BURST", "RATE_LIMIT_TTL", "RATE_LIMIT_MAX_BUCKETS",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "OTEL_ENVIRONMENT", "OTEL_SAMPLE_RATE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadArgs(nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, config.StorePostgres, cfg.Store)

	require.Equal(t, "127.0.0.1", cfg.DB.Host)
	require.Equal(t, "5432", cfg.DB.Port)
	require.Equal(t, "myuser", cfg.DB.User)
	require.Equal(t, "mypassword", cfg.DB.Pass)
	require.Equal(t, "test_db", cfg.DB.Name)

	require.Empty(t, cfg.Kafka.Brokers)
	require.Equal(t, "orders.events", cfg.Kafka.OrdersTopic)
	require.Empty(t, cfg.Redis.Addr)

	require.Equal(t, config.DefaultDispatch(), cfg.Dispatch)
	require.Equal(t, 30*time.Second, cfg.Dispatch.BroadcastTTL)
	require.Equal(t, 5, cfg.Dispatch.FanoutWidth)
	require.Equal(t, 3, cfg.Dispatch.StackingLimit)
	require.Equal(t, 5*time.Second, cfg.Dispatch.SweepInterval)
	require.Zero(t, cfg.Dispatch.MaxRedispatchAttempts)

	require.True(t, cfg.RateLimit.Enabled)
	require.False(t, cfg.Tracing.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "memory")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "15432")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "service")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DISPATCH_BROADCAST_TTL", "45s")
	t.Setenv("DISPATCH_FANOUT_WIDTH", "8")
	t.Setenv("DISPATCH_MAX_REDISPATCH_ATTEMPTS", "4")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATE", "0.25")

	cfg, err := config.LoadArgs(nil)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, config.StoreMemory, cfg.Store)
	require.Equal(t, "db", cfg.DB.Host)
	require.Equal(t, "15432", cfg.DB.Port)
	require.Equal(t, "u", cfg.DB.User)
	require.Equal(t, "p", cfg.DB.Pass)
	require.Equal(t, "service", cfg.DB.Name)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 45*time.Second, cfg.Dispatch.BroadcastTTL)
	require.Equal(t, 8, cfg.Dispatch.FanoutWidth)
	require.Equal(t, 4, cfg.Dispatch.MaxRedispatchAttempts)
	require.False(t, cfg.RateLimit.Enabled)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, 0.25, cfg.Tracing.SampleRate)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")

	cfg, err := config.LoadArgs([]string{"--port=7070", "--store", "memory", "--unknown"})
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Port)
	require.Equal(t, config.StoreMemory, cfg.Store)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "PORT", "70000"},
		{"port not a number", "PORT", "abc"},
		{"postgres port", "POSTGRES_PORT", "not-a-number"},
		{"store", "STORE", "mongo"},
		{"broadcast ttl", "DISPATCH_BROADCAST_TTL", "soon"},
		{"zero fanout", "DISPATCH_FANOUT_WIDTH", "0"},
		{"negative ceiling", "DISPATCH_MAX_REDISPATCH_ATTEMPTS", "-1"},
		{"sweep interval", "DISPATCH_SWEEP_INTERVAL", "0s"},
		{"rate limit flag", "RATE_LIMIT_ENABLED", "maybe"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			cfg, err := config.LoadArgs(nil)
			require.Error(t, err)
			require.Nil(t, cfg)
		})
	}
}

func TestLoad_FlagsParseError(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadArgs([]string{"--port=not-a-number"})
	require.Error(t, err)
	require.Nil(t, cfg)
	require.Contains(t, err.Error(), "parse flags")
}

func TestDB_DSN(t *testing.T) {
	t.Parallel()

	d := config.DB{Host: "db", Port: "5432", User: "u", Pass: "p@ss", Name: "dispatch"}
	require.Equal(t, "postgres://u:p%40ss@db:5432/dispatch?sslmode=disable", d.DSN())
}
