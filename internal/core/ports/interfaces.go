package ports

import (
	"context"
	"io"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// Converter abstracts the OCR provider (Mistral, or a fake in tests).
type Converter interface {
	// Convert runs OCR on the document at inputPath and writes the combined
	// Markdown plus an images/ directory under outputDir.
	// Failures are returned as *domain.ConversionError.
	Convert(ctx context.Context, inputPath, outputDir string) (domain.ConversionResult, error)

	// Ready reports a configuration problem (e.g. missing credential) before any work is queued.
	Ready() error
}

// Repository abstracts the persistent storage (DuckDB)
type Repository interface {
	// Conversion history
	SaveConversion(ctx context.Context, rec domain.ConversionRecord) error
	ListConversions(ctx context.Context, limit int) ([]domain.ConversionRecord, error)
	ListTaskConversions(ctx context.Context, taskID domain.TaskID) ([]domain.ConversionRecord, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error

	Close() error
}

// Archiver packages converted outputs for download.
type Archiver interface {
	// WriteArchive writes every directory in dirs into w, with entry names
	// relative to baseDir.
	WriteArchive(w io.Writer, baseDir string, dirs []string) error
}
