package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrNoValidFiles      = errors.New("no valid PDF files")
	ErrNoCompletedFiles  = errors.New("no completed files")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrQueueFull         = errors.New("scheduling queue full")
	ErrConfig            = errors.New("configuration error")
	ErrFileNotFound      = errors.New("file not found")
	ErrOutputUnavailable = errors.New("file has no converted output")
)

// InputError rejects one submitted file without aborting the batch.
type InputError struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// ConfigError reports a missing or unusable setting. It matches ErrConfig.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Setting, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ConversionErrorKind classifies OCR failures so callers can render a specific message.
type ConversionErrorKind string

const (
	ConversionFileNotFound       ConversionErrorKind = "file_not_found"
	ConversionAuthMissing        ConversionErrorKind = "auth_missing"
	ConversionProviderConnection ConversionErrorKind = "provider_connection"
	ConversionProviderAPI        ConversionErrorKind = "provider_api"
	ConversionUnknown            ConversionErrorKind = "unknown"
)

// ConversionError is the failure of a single document conversion.
type ConversionError struct {
	Kind    ConversionErrorKind
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// ConversionKind extracts the kind of a conversion failure, or ConversionUnknown.
func ConversionKind(err error) ConversionErrorKind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ConversionUnknown
}
