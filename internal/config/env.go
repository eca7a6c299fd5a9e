package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// LoadDotEnv reads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...) // Ignore error if .env doesn't exist
}

// LoadRuntimeConfig reads OCRFLOW_* variables on top of the defaults.
func LoadRuntimeConfig() (domain.RuntimeConfig, error) {
	cfg := domain.RuntimeConfig{
		Addr:          ":8080",
		Workers:       5,
		QueueSize:     4096,
		WorkspaceDir:  os.Getenv("OCRFLOW_WORKSPACE_DIR"),
		DBPath:        "ocrflow.db",
		SecretKey:     os.Getenv("OCRFLOW_SECRET_KEY"),
		SecretKeyFile: os.Getenv("OCRFLOW_SECRET_KEY_FILE"),
		PollInterval:  500 * time.Millisecond,
		TaskRetention: time.Hour,
		ReapInterval:  time.Minute,
		Metrics:       strings.ToLower(os.Getenv("OCRFLOW_METRICS")),
	}

	if v := os.Getenv("OCRFLOW_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("OCRFLOW_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v := os.Getenv("OCRFLOW_CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	var err error
	if cfg.Workers, err = envInt64("OCRFLOW_WORKERS", cfg.Workers); err != nil {
		return cfg, err
	}
	queue, err := envInt64("OCRFLOW_QUEUE_SIZE", int64(cfg.QueueSize))
	if err != nil {
		return cfg, err
	}
	cfg.QueueSize = int(queue)
	if cfg.PollInterval, err = envDuration("OCRFLOW_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return cfg, err
	}
	if cfg.TaskRetention, err = envDuration("OCRFLOW_TASK_RETENTION", cfg.TaskRetention); err != nil {
		return cfg, err
	}
	if cfg.ReapInterval, err = envDuration("OCRFLOW_REAP_INTERVAL", cfg.ReapInterval); err != nil {
		return cfg, err
	}
	if v := os.Getenv("OCRFLOW_KEEP_AFTER_DOWNLOAD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, &domain.ConfigError{Setting: "OCRFLOW_KEEP_AFTER_DOWNLOAD", Reason: fmt.Sprintf("not a boolean: %q", v)}
		}
		cfg.KeepAfterDownload = b
	}
	if cfg.Metrics != "" && cfg.Metrics != "stdout" {
		return cfg, &domain.ConfigError{Setting: "OCRFLOW_METRICS", Reason: fmt.Sprintf("unsupported exporter %q", cfg.Metrics)}
	}

	return cfg, nil
}

// ProviderFromEnv returns the MISTRAL_* overrides; unset fields stay empty.
func ProviderFromEnv() domain.OCRProviderConfig {
	return domain.OCRProviderConfig{
		BaseURL: os.Getenv("MISTRAL_BASE_URL"),
		APIKey:  os.Getenv("MISTRAL_API_KEY"),
		Model:   os.Getenv("MISTRAL_OCR_MODEL"),
	}
}

func envInt64(name string, def int64) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def, &domain.ConfigError{Setting: name, Reason: fmt.Sprintf("must be a positive integer, got %q", v)}
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, &domain.ConfigError{Setting: name, Reason: fmt.Sprintf("must be a positive duration, got %q", v)}
	}
	return d, nil
}
