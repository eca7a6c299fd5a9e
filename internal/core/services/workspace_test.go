package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_PrepareAndCleanup(t *testing.T) {
	ws := NewWorkspaceManager(t.TempDir())

	path, err := ws.PrepareTask("t1")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(path, "inputs"))
	assert.DirExists(t, filepath.Join(path, "outputs"))

	require.NoError(t, ws.CleanupTask("t1"))
	assert.NoDirExists(t, path)
}

func TestWorkspace_OutputPathDeduplicates(t *testing.T) {
	ws := NewWorkspaceManager("/base")
	used := map[string]bool{}

	assert.Equal(t, "/base/tasks/t1/outputs/ocr_results_scan", ws.OutputPath("t1", "scan.pdf", used))
	assert.Equal(t, "/base/tasks/t1/outputs/ocr_results_scan_2", ws.OutputPath("t1", "scan.pdf", used))
	assert.Equal(t, "/base/tasks/t1/outputs/ocr_results_scan_3", ws.OutputPath("t1", "scan.pdf", used))
	assert.Equal(t, "/base/tasks/t1/outputs/ocr_results_other", ws.OutputPath("t1", "other.pdf", used))
}

func TestWorkspace_InputPath(t *testing.T) {
	ws := NewWorkspaceManager("/base")
	assert.Equal(t, "/base/tasks/t1/inputs/007_doc.pdf", ws.InputPath("t1", 7, "doc.pdf"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"My Report (final).pdf", "My_Report_final.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\scan.pdf`, "scan.pdf"},
		{"...", "document"},
		{"", "document"},
		{"résumé.pdf", "résumé.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestWorkspace_PruneOrphans(t *testing.T) {
	ws := NewWorkspaceManager(t.TempDir())

	for _, id := range []domain.TaskID{"old", "live", "fresh"} {
		_, err := ws.PrepareTask(id)
		require.NoError(t, err)
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(ws.GetPath("old"), past, past))
	require.NoError(t, os.Chtimes(ws.GetPath("live"), past, past))

	n, err := ws.PruneOrphans(time.Hour, func(id domain.TaskID) bool { return id == "live" })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, ws.GetPath("old"))
	assert.DirExists(t, ws.GetPath("live"))
	assert.DirExists(t, ws.GetPath("fresh"))
}

func TestWorkspace_PruneOrphansWithoutTasksDir(t *testing.T) {
	ws := NewWorkspaceManager(filepath.Join(t.TempDir(), "missing"))
	n, err := ws.PruneOrphans(time.Hour, func(domain.TaskID) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
