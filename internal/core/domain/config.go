package domain

import "time"

// OCRProviderConfig configures the remote OCR provider
type OCRProviderConfig struct {
	BaseURL string `json:"base_url"` // "https://api.mistral.ai"
	APIKey  string `json:"api_key"`  // Encrypted in storage
	Model   string `json:"model"`    // "mistral-ocr-latest"
}

// AppConfig is the persisted, user-editable configuration
type AppConfig struct {
	OCR OCRProviderConfig `json:"ocr"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		OCR: OCRProviderConfig{
			BaseURL: "https://api.mistral.ai",
			Model:   "mistral-ocr-latest",
		},
	}
}

// RuntimeConfig holds process settings read from the environment at startup.
type RuntimeConfig struct {
	Addr              string
	Workers           int64
	QueueSize         int
	WorkspaceDir      string
	DBPath            string
	SecretKey         string // passphrase for settings encryption
	SecretKeyFile     string
	PollInterval      time.Duration
	TaskRetention     time.Duration
	ReapInterval      time.Duration
	KeepAfterDownload bool
	CORSOrigins       []string
	Metrics           string
}
