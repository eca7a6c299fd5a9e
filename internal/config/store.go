package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const (
	settingsKey = "app_config"
	apiKeyField = "ocr.api_key"
)

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// OnChangeFunc is called when settings are updated.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore manages persistent settings with encrypted secrets.
// The config is stored as one JSON document, the API key encrypted at rest
// and masked on read. Process overrides sit on top of the stored config and
// are never written back.
type SettingsStore struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	secret    *SecretKey
	repo      SettingsRepository
	stored    *domain.AppConfig
	overrides domain.OCRProviderConfig
	onChange  []OnChangeFunc
}

// NewSettingsStore creates a store that loads/saves settings from DB with AES-256-GCM encryption.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.loadFromDB(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = domain.DefaultConfig()
		if err := store.saveToDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.stored = cfg
	return store, nil
}

// ApplyOverrides layers the non-empty fields of o over the stored provider
// config, e.g. from MISTRAL_* environment variables.
func (s *SettingsStore) ApplyOverrides(o domain.OCRProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = o
}

// OnChange registers a callback for when settings are updated.
// Used by serve to hot-swap the OCR converter.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns the effective config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked()
}

// GetMaskedConfig returns the effective config safe for API response (secrets masked).
func (s *SettingsStore) GetMaskedConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.effectiveLocked()
	cfg.OCR.APIKey = MaskSecret(cfg.OCR.APIKey)
	return cfg
}

// StoredConfig returns the persisted config without overrides, key masked.
// Partial updates start from it so overrides never leak into storage.
func (s *SettingsStore) StoredConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.stored
	cp.OCR.APIKey = MaskSecret(cp.OCR.APIKey)
	return &cp
}

// UpdateConfig validates, encrypts secrets, persists, and triggers onChange callbacks.
// If the api key is empty or masked, the stored key is kept.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.OCR.APIKey == "" || isMasked(update.OCR.APIKey) {
		update.OCR.APIKey = s.stored.OCR.APIKey
	}

	defaults := domain.DefaultConfig()
	if update.OCR.BaseURL == "" {
		update.OCR.BaseURL = defaults.OCR.BaseURL
	}
	if update.OCR.Model == "" {
		update.OCR.Model = defaults.OCR.Model
	}
	if u, err := url.Parse(update.OCR.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.ConfigError{Setting: "ocr.base_url", Reason: fmt.Sprintf("invalid URL %q", update.OCR.BaseURL)}
	}

	if err := s.saveToDB(ctx, update); err != nil {
		return err
	}

	s.stored = update
	s.logger.Info("settings updated",
		"base_url", update.OCR.BaseURL,
		"model", update.OCR.Model,
		"api_key_set", update.OCR.APIKey != "",
	)

	// Callbacks run under the lock; they must not call back into the store.
	effective := s.effectiveLocked()
	for _, fn := range s.onChange {
		fn(effective)
	}

	return nil
}

func (s *SettingsStore) effectiveLocked() *domain.AppConfig {
	cp := *s.stored
	if s.overrides.BaseURL != "" {
		cp.OCR.BaseURL = s.overrides.BaseURL
	}
	if s.overrides.APIKey != "" {
		cp.OCR.APIKey = s.overrides.APIKey
	}
	if s.overrides.Model != "" {
		cp.OCR.Model = s.overrides.Model
	}
	return &cp
}

func (s *SettingsStore) loadFromDB(ctx context.Context) (*domain.AppConfig, error) {
	raw, err := s.repo.GetSetting(ctx, settingsKey)
	if err != nil {
		return nil, err
	}

	var stored storedConfig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg := &domain.AppConfig{
		OCR: domain.OCRProviderConfig{
			BaseURL: stored.OCR.BaseURL,
			Model:   stored.OCR.Model,
		},
	}

	// Decrypt secrets
	if stored.OCR.EncryptedAPIKey != "" {
		key, err := s.secret.Open(apiKeyField, stored.OCR.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt OCR API key", "error", err)
		} else {
			cfg.OCR.APIKey = key
		}
	}

	return cfg, nil
}

func (s *SettingsStore) saveToDB(ctx context.Context, cfg *domain.AppConfig) error {
	stored := storedConfig{
		OCR: storedProviderConfig{
			BaseURL: cfg.OCR.BaseURL,
			Model:   cfg.OCR.Model,
		},
	}

	if cfg.OCR.APIKey != "" {
		enc, err := s.secret.Seal(apiKeyField, cfg.OCR.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt OCR API key: %w", err)
		}
		stored.OCR.EncryptedAPIKey = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.SaveSetting(ctx, settingsKey, string(raw))
}

// storedConfig is the DB representation with encrypted fields
type storedConfig struct {
	OCR storedProviderConfig `json:"ocr"`
}

type storedProviderConfig struct {
	BaseURL         string `json:"base_url"`
	EncryptedAPIKey string `json:"encrypted_api_key,omitempty"`
	Model           string `json:"model"`
}

// MaskSecret returns a masked version safe for API display: "****abcd"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}
