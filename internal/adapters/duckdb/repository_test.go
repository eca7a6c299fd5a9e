package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_Conversions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	records := []domain.ConversionRecord{
		{ID: "c-1", TaskID: "t-1", FileIndex: 0, FileName: "a.pdf", Status: domain.FileStatusCompleted,
			OutputDir: "/out/ocr_results_a", StartedAt: start, FinishedAt: start.Add(time.Second), DurationMs: 1000},
		{ID: "c-2", TaskID: "t-1", FileIndex: 1, FileName: "b.pdf", Status: domain.FileStatusFailed,
			ErrorKind: "provider_api", Error: "status 500", StartedAt: start, FinishedAt: start.Add(2 * time.Second), DurationMs: 2000},
		{ID: "c-3", TaskID: "t-2", FileIndex: 0, FileName: "c.pdf", Status: domain.FileStatusCompleted,
			StartedAt: start, FinishedAt: start.Add(3 * time.Second), DurationMs: 3000},
	}
	for _, rec := range records {
		require.NoError(t, repo.SaveConversion(ctx, rec))
	}

	// Newest first
	all, err := repo.ListConversions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c-3", all[0].ID)
	assert.Equal(t, "c-1", all[2].ID)

	limited, err := repo.ListConversions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	task, err := repo.ListTaskConversions(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, task, 2)
	assert.Equal(t, "a.pdf", task[0].FileName)
	assert.Equal(t, domain.FileStatusFailed, task[1].Status)
	assert.Equal(t, "provider_api", task[1].ErrorKind)
	assert.Equal(t, domain.TaskID("t-1"), task[1].TaskID)
	assert.WithinDuration(t, start.Add(2*time.Second), task[1].FinishedAt, time.Millisecond)

	none, err := repo.ListTaskConversions(ctx, "t-404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_SaveConversionUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := domain.ConversionRecord{ID: "c-1", TaskID: "t-1", FileName: "a.pdf", Status: domain.FileStatusFailed,
		Error: "boom", StartedAt: now, FinishedAt: now}
	require.NoError(t, repo.SaveConversion(ctx, rec))

	rec.Status = domain.FileStatusCompleted
	rec.Error = ""
	require.NoError(t, repo.SaveConversion(ctx, rec))

	got, err := repo.ListTaskConversions(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.FileStatusCompleted, got[0].Status)
	assert.Empty(t, got[0].Error)
}

func TestRepository_Settings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetSetting(ctx, "app_config")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"a":1}`))
	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"a":2}`))

	value, err := repo.GetSetting(ctx, "app_config")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, value)
}

func TestRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	repo, err := NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveSetting(ctx, "k", "v"))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	value, err := repo.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}
