package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const (
	inputsDir  = "inputs"
	outputsDir = "outputs"
)

type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "ocrflow")
	}
	return &WorkspaceManager{
		baseDir: baseDir,
	}
}

// BaseDir returns the root under which task directories live.
func (s *WorkspaceManager) BaseDir() string { return s.baseDir }

// PrepareTask creates the directory structure for a task (ephemeral)
// Path: baseDir/tasks/{id}/{inputs,outputs}
func (s *WorkspaceManager) PrepareTask(id domain.TaskID) (string, error) {
	path := s.GetPath(id)
	for _, sub := range []string{inputsDir, outputsDir} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0o755); err != nil {
			return "", fmt.Errorf("failed to create workspace: %w", err)
		}
	}
	return path, nil
}

// CleanupTask removes the task workspace directory
func (s *WorkspaceManager) CleanupTask(id domain.TaskID) error {
	return os.RemoveAll(s.GetPath(id))
}

// GetPath returns the absolute path for a task's workspace
func (s *WorkspaceManager) GetPath(id domain.TaskID) string {
	return filepath.Join(s.baseDir, "tasks", string(id))
}

// InputPath returns where the index-th upload is stored.
func (s *WorkspaceManager) InputPath(id domain.TaskID, index int, name string) string {
	return filepath.Join(s.GetPath(id), inputsDir, fmt.Sprintf("%03d_%s", index, name))
}

// OutputsPath returns the directory holding every output dir of a task.
func (s *WorkspaceManager) OutputsPath(id domain.TaskID) string {
	return filepath.Join(s.GetPath(id), outputsDir)
}

// OutputPath returns a per-document output dir (ocr_results_<stem>), unique within used.
func (s *WorkspaceManager) OutputPath(id domain.TaskID, name string, used map[string]bool) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	dir := "ocr_results_" + stem
	for n := 2; used[dir]; n++ {
		dir = fmt.Sprintf("ocr_results_%s_%d", stem, n)
	}
	used[dir] = true
	return filepath.Join(s.OutputsPath(id), dir)
}

// PruneOrphans removes task directories older than maxAge that keep is not
// tracking, e.g. leftovers of a previous process.
func (s *WorkspaceManager) PruneOrphans(maxAge time.Duration, keep func(domain.TaskID) bool) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "tasks"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || keep(domain.TaskID(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.baseDir, "tasks", e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// SanitizeFilename reduces an uploaded name to a safe base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "document"
	}
	return out
}
