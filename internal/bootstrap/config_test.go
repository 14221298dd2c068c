package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "LOG_LEVEL", "APP_ENV", "DEFAULT_ROOM", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "REDIS_KEY_PREFIX", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "DB_DRIVER", "DB_DSN",
		"BLOB_STORAGE", "BLOB_PATH", "S3_BUCKET_NAME", "CORS_ALLOWED_ORIGIN", "MDNS_ENABLED",
		"AUTOSAVE_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, "main", cfg.DefaultRoom)
	assert.Equal(t, "cv:", cfg.KeyPrefix)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "canvas.db", cfg.DBDSN)
	assert.Equal(t, BlobFilesystem, cfg.BlobStorage)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.MDNSEnabled)

	interval, ok := cfg.AutosaveInterval()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, interval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT_MAX", "20")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("MDNS_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "verbose")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 20, cfg.RateLimitMax)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.True(t, cfg.MDNSEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad room":     {"DEFAULT_ROOM", "no spaces allowed"},
		"bad driver":   {"DB_DRIVER", "postgres"},
		"bad blob":     {"BLOB_STORAGE", "ftp"},
		"s3 no bucket": {"BLOB_STORAGE", "s3"},
		"bad rate":     {"RATE_LIMIT_MAX", "-1"},
		"bad window":   {"RATE_LIMIT_WINDOW", "soon"},
		"bad mdns":     {"MDNS_ENABLED", "maybe"},
		"bad redis db": {"REDIS_DB", "one"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig()

			assert.Error(t, err)
		})
	}
}

func TestAutosaveInterval_NonEverySchedule(t *testing.T) {
	cfg := &Config{AutosaveSchedule: "*/5 * * * *"}
	_, ok := cfg.AutosaveInterval()
	assert.False(t, ok)
}
