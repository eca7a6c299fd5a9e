package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRuntimeConfig_Defaults(t *testing.T) {
	for _, k := range []string{"OCRFLOW_ADDR", "OCRFLOW_WORKERS", "OCRFLOW_QUEUE_SIZE", "OCRFLOW_POLL_INTERVAL",
		"OCRFLOW_TASK_RETENTION", "OCRFLOW_REAP_INTERVAL", "OCRFLOW_KEEP_AFTER_DOWNLOAD", "OCRFLOW_METRICS",
		"OCRFLOW_CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, int64(5), cfg.Workers)
	assert.Equal(t, 4096, cfg.QueueSize)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.TaskRetention)
	assert.Equal(t, time.Minute, cfg.ReapInterval)
	assert.False(t, cfg.KeepAfterDownload)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadRuntimeConfig_Overrides(t *testing.T) {
	t.Setenv("OCRFLOW_ADDR", ":9000")
	t.Setenv("OCRFLOW_WORKERS", "3")
	t.Setenv("OCRFLOW_POLL_INTERVAL", "250ms")
	t.Setenv("OCRFLOW_KEEP_AFTER_DOWNLOAD", "true")
	t.Setenv("OCRFLOW_CORS_ORIGINS", "http://localhost:5173, https://app.example")
	t.Setenv("OCRFLOW_METRICS", "STDOUT")
	t.Setenv("OCRFLOW_DB_PATH", "")
	t.Setenv("OCRFLOW_SECRET_KEY", "passphrase")
	t.Setenv("OCRFLOW_SECRET_KEY_FILE", "/etc/ocrflow/settings.key")

	cfg, err := LoadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, int64(3), cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.KeepAfterDownload)
	assert.Equal(t, []string{"http://localhost:5173", "https://app.example"}, cfg.CORSOrigins)
	assert.Equal(t, "stdout", cfg.Metrics)
	assert.Empty(t, cfg.DBPath, "an explicitly empty path selects an in-memory database")
	assert.Equal(t, "passphrase", cfg.SecretKey)
	assert.Equal(t, "/etc/ocrflow/settings.key", cfg.SecretKeyFile)
}

func TestLoadRuntimeConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"OCRFLOW_WORKERS":             "zero",
		"OCRFLOW_TASK_RETENTION":      "-1h",
		"OCRFLOW_KEEP_AFTER_DOWNLOAD": "maybe",
		"OCRFLOW_METRICS":             "prometheus",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := LoadRuntimeConfig()
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MISTRAL_OCR_MODEL=from-file\nMISTRAL_BASE_URL=https://file.example\n"), 0o644))
	t.Setenv("MISTRAL_OCR_MODEL", "from-env")
	t.Setenv("MISTRAL_BASE_URL", "")
	os.Unsetenv("MISTRAL_BASE_URL")

	LoadDotEnv(path)

	p := ProviderFromEnv()
	assert.Equal(t, "from-env", p.Model)
	assert.Equal(t, "https://file.example", p.BaseURL)
}
