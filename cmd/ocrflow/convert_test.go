package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))
	single := filepath.Join(t.TempDir(), "single.pdf")
	require.NoError(t, os.WriteFile(single, []byte("%PDF-"), 0o644))

	paths, err := expandInputs([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.pdf")}, paths)

	_, err = expandInputs([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestProviderConfig(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "mst-cli")
	t.Setenv("MISTRAL_BASE_URL", "")
	t.Setenv("MISTRAL_OCR_MODEL", "mistral-ocr-2505")

	cfg := providerConfig()
	assert.Equal(t, "mst-cli", cfg.APIKey)
	assert.Equal(t, "https://api.mistral.ai", cfg.BaseURL)
	assert.Equal(t, "mistral-ocr-2505", cfg.Model)
}

func TestSetupMetrics(t *testing.T) {
	shutdown, err := setupMetrics("")
	require.NoError(t, err)
	assert.NoError(t, shutdown(t.Context()))

	_, err = setupMetrics("prometheus")
	assert.Error(t, err)
}

// stallingConverter blocks every conversion until its context ends.
type stallingConverter struct {
	once    sync.Once
	started chan struct{}
}

func (c *stallingConverter) Ready() error { return nil }

func (c *stallingConverter) Convert(ctx context.Context, inputPath, outputDir string) (domain.ConversionResult, error) {
	c.once.Do(func() { close(c.started) })
	<-ctx.Done()
	return domain.ConversionResult{}, ctx.Err()
}

func TestTrackProgress_InterruptReportsCause(t *testing.T) {
	conv := &stallingConverter{started: make(chan struct{})}
	rc := domain.RuntimeConfig{Workers: 1, QueueSize: 4, PollInterval: 10 * time.Millisecond}
	eng := newEngine(slog.New(slog.NewJSONHandler(io.Discard, nil)), rc, t.TempDir(), conv)

	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()
	go eng.pool.Run(poolCtx)

	dir := t.TempDir()
	var uploads []domain.Upload
	for _, name := range []string{"a.pdf", "b.pdf"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\n%%EOF\n"), 0o644))
		uploads = append(uploads, domain.Upload{
			Name: name,
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	id, rejected, err := eng.service.CreateTask(t.Context(), uploads)
	require.NoError(t, err)
	require.Empty(t, rejected)

	ctx, interrupt := context.WithCancel(t.Context())
	go func() {
		<-conv.started
		interrupt()
	}()

	final, err := trackProgress(ctx, eng, id, len(uploads))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "interrupted: context canceled", err.Error())
	assert.Equal(t, string(domain.TaskStateCancelled), final.Status)
}
