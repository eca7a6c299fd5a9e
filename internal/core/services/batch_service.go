package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/manthysbr/ocrflow/internal/core/ports"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const pdfMagic = "%PDF-"

// BatchService is the task-management surface used by the HTTP kernel and the CLI.
type BatchService struct {
	logger    *slog.Logger
	registry  *TaskRegistry
	pool      *WorkerPool
	workspace *WorkspaceManager
	bus       *EventBus
	archiver  ports.Archiver
	markdown  goldmark.Markdown
}

func NewBatchService(
	logger *slog.Logger,
	registry *TaskRegistry,
	pool *WorkerPool,
	workspace *WorkspaceManager,
	bus *EventBus,
	archiver ports.Archiver,
) *BatchService {
	return &BatchService{
		logger:    logger,
		registry:  registry,
		pool:      pool,
		workspace: workspace,
		bus:       bus,
		archiver:  archiver,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// UpdateConverter hot-swaps the OCR adapter, e.g. after a settings change.
func (s *BatchService) UpdateConverter(conv ports.Converter) {
	s.pool.SetConverter(conv)
}

// CreateTask stores the uploads in a fresh workspace and queues one job per
// valid PDF. Invalid files are reported as InputErrors without aborting the
// batch; if none is valid, domain.ErrNoValidFiles is returned and nothing is
// registered.
func (s *BatchService) CreateTask(ctx context.Context, uploads []domain.Upload) (domain.TaskID, []domain.InputError, error) {
	conv := s.pool.Converter()
	if conv == nil {
		return "", nil, &domain.ConfigError{Setting: "ocr provider", Reason: "not configured"}
	}
	if err := conv.Ready(); err != nil {
		return "", nil, err
	}

	id := domain.TaskID(uuid.New().String())
	workDir, err := s.workspace.PrepareTask(id)
	if err != nil {
		return "", nil, err
	}

	var (
		rejected []domain.InputError
		jobs     []domain.FileJob
		used     = map[string]bool{}
	)
	for _, up := range uploads {
		if err := ctx.Err(); err != nil {
			_ = s.workspace.CleanupTask(id)
			return "", nil, err
		}
		name := SanitizeFilename(up.Name)
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			rejected = append(rejected, domain.InputError{File: up.Name, Reason: "not a PDF"})
			continue
		}
		src := s.workspace.InputPath(id, len(jobs), name)
		if err := saveUpload(up, src); err != nil {
			_ = os.Remove(src)
			rejected = append(rejected, domain.InputError{File: up.Name, Reason: err.Error()})
			continue
		}
		jobs = append(jobs, domain.FileJob{
			Name:       name,
			SourcePath: src,
			OutputDir:  s.workspace.OutputPath(id, name, used),
		})
	}

	if len(jobs) == 0 {
		if err := s.workspace.CleanupTask(id); err != nil {
			s.logger.Warn("failed to clean up rejected workspace", "task_id", id, "error", err)
		}
		return "", rejected, domain.ErrNoValidFiles
	}

	task := NewBatchTask(id, workDir, jobs, s.publish)
	if err := s.registry.Add(task); err != nil {
		task.Close()
		_ = s.workspace.CleanupTask(id)
		return "", rejected, err
	}

	for i := range jobs {
		if err := s.pool.Submit(id, i); err != nil {
			// Record the failure on the job itself rather than dropping it.
			if _, ok := task.Begin(i); ok {
				task.Finish(i, domain.ConversionResult{}, err)
			}
			s.logger.Error("failed to queue job", "task_id", id, "index", i, "error", err)
		}
	}

	s.logger.Info("task created", "task_id", id, "files", len(jobs), "rejected", len(rejected))
	return id, rejected, nil
}

// saveUpload copies an upload to dst and checks it looks like a PDF.
func saveUpload(up domain.Upload, dst string) error {
	if up.Open == nil {
		return domain.ErrFileNotFound
	}
	src, err := up.Open()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrFileNotFound
		}
		return fmt.Errorf("cannot read file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cannot store file: %w", err)
	}

	// The header may be preceded by junk, but must appear in the first KiB.
	head := make([]byte, 1024)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		out.Close()
		return fmt.Errorf("cannot read file: %w", err)
	}
	head = head[:n]
	if n == 0 {
		out.Close()
		return fmt.Errorf("empty file")
	}
	if !bytes.Contains(head, []byte(pdfMagic)) {
		out.Close()
		return fmt.Errorf("missing PDF header")
	}

	if _, err := out.Write(head); err != nil {
		out.Close()
		return fmt.Errorf("cannot store file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("cannot store file: %w", err)
	}
	return out.Close()
}

// Pause stops new conversions of a running task.
func (s *BatchService) Pause(id domain.TaskID) (domain.TaskState, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	if err := task.Pause(); err != nil {
		return task.State(), err
	}
	s.logger.Info("task paused", "task_id", id)
	return task.State(), nil
}

// Resume requeues the paused-out jobs of a paused task.
func (s *BatchService) Resume(id domain.TaskID) (domain.TaskState, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	indices, err := task.Resume()
	if err != nil {
		return task.State(), err
	}
	for _, i := range indices {
		if err := s.pool.Submit(id, i); err != nil {
			if _, ok := task.Begin(i); ok {
				task.Finish(i, domain.ConversionResult{}, err)
			}
			s.logger.Error("failed to requeue job", "task_id", id, "index", i, "error", err)
		}
	}
	s.logger.Info("task resumed", "task_id", id, "requeued", len(indices))
	return task.State(), nil
}

// Cancel ends a task; conversions already running finish on their own.
func (s *BatchService) Cancel(id domain.TaskID) (domain.TaskState, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	if err := task.Cancel(); err != nil {
		return task.State(), err
	}
	s.logger.Info("task cancelled", "task_id", id)
	return task.State(), nil
}

// Snapshot returns the current state of a task.
func (s *BatchService) Snapshot(id domain.TaskID) (domain.TaskSnapshot, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return domain.TaskSnapshot{}, err
	}
	return task.Snapshot(), nil
}

// List returns summaries of all live tasks, newest first.
func (s *BatchService) List() []domain.TaskSummary {
	tasks := s.registry.List()
	out := make([]domain.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Summary())
	}
	return out
}

// Discard cancels a task if needed, forgets it and deletes its workspace.
func (s *BatchService) Discard(id domain.TaskID) error {
	task, ok := s.registry.Remove(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrTaskNotFound)
	}
	if !task.State().Terminal() {
		_ = task.Cancel()
	}
	task.Close()
	s.publish(Event{TaskID: id, Type: EventTypeDiscarded, Timestamp: time.Now().UnixMilli()})

	if err := s.workspace.CleanupTask(id); err != nil {
		return fmt.Errorf("cleanup workspace: %w", err)
	}
	s.logger.Info("task discarded", "task_id", id)
	return nil
}

// Archive is a prepared download of a task's completed outputs.
type Archive struct {
	TaskID domain.TaskID
	Files  int

	archiver ports.Archiver
	baseDir  string
	dirs     []string
}

// WriteTo streams the zip archive into w.
func (a *Archive) WriteTo(w io.Writer) error {
	return a.archiver.WriteArchive(w, a.baseDir, a.dirs)
}

// PrepareArchive collects the output dirs of every completed job.
// It fails with domain.ErrNoCompletedFiles before anything is written.
func (s *BatchService) PrepareArchive(id domain.TaskID) (*Archive, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	completed := task.CompletedJobs()
	if len(completed) == 0 {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrNoCompletedFiles)
	}
	dirs := make([]string, 0, len(completed))
	for _, j := range completed {
		dirs = append(dirs, *j.OutputPath)
	}
	return &Archive{
		TaskID:   id,
		Files:    len(dirs),
		archiver: s.archiver,
		baseDir:  s.workspace.OutputsPath(id),
		dirs:     dirs,
	}, nil
}

// RenderPreview renders the combined Markdown of a completed job as HTML.
func (s *BatchService) RenderPreview(id domain.TaskID, index int) ([]byte, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	job, ok := task.Job(index)
	if !ok {
		return nil, fmt.Errorf("file %d: %w", index, domain.ErrFileNotFound)
	}
	if job.Status != domain.FileStatusCompleted || job.OutputPath == nil {
		return nil, fmt.Errorf("file %d is %s: %w", index, job.Status, domain.ErrOutputUnavailable)
	}

	src, err := os.ReadFile(filepath.Join(*job.OutputPath, "complete.md"))
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// OutputFile resolves a file inside a completed job's output dir, e.g. an
// image referenced by the preview. rel must stay inside that dir.
func (s *BatchService) OutputFile(id domain.TaskID, index int, rel string) (string, error) {
	task, err := s.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	job, ok := task.Job(index)
	if !ok || job.OutputPath == nil {
		return "", fmt.Errorf("file %d: %w", index, domain.ErrOutputUnavailable)
	}
	clean := filepath.Clean("/" + rel)
	return filepath.Join(*job.OutputPath, clean), nil
}

func (s *BatchService) publish(e Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
