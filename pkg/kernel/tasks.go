package kernel

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const maxUploadMemory = 32 << 20

type createTaskResponse struct {
	TaskID   domain.TaskID       `json:"task_id"`
	Accepted int                 `json:"accepted"`
	Errors   []domain.InputError `json:"errors"`
}

type controlResponse struct {
	TaskID domain.TaskID    `json:"task_id"`
	Status domain.TaskState `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// handleCreateTask accepts PDFs as repeated multipart "files" fields.
// POST /v1/tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(w, "no files uploaded")
		return
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, uploadFromHeader(fh))
	}

	id, rejected, err := s.service.CreateTask(r.Context(), uploads)
	if rejected == nil {
		rejected = []domain.InputError{}
	}
	if err != nil {
		if errors.Is(err, domain.ErrNoValidFiles) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Errors: rejected})
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTaskResponse{
		TaskID:   id,
		Accepted: len(headers) - len(rejected),
		Errors:   rejected,
	})
}

func uploadFromHeader(fh *multipart.FileHeader) domain.Upload {
	return domain.Upload{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// handleListTasks returns summaries of all live tasks.
// GET /v1/tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.service.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// GET /v1/tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := bindTaskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	snap, err := s.service.Snapshot(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/tasks/{id}
func (s *Server) handleDiscardTask(w http.ResponseWriter, r *http.Request) {
	id, err := bindTaskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	if err := s.service.Discard(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleControl serves pause, resume and cancel. An invalid transition is not
// an HTTP error: the unchanged state is returned with an explanation.
func (s *Server) handleControl(op func(domain.TaskID) (domain.TaskState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := bindTaskID(r)
		if err != nil {
			badRequest(w, "invalid task id")
			return
		}
		state, err := op(id)
		resp := controlResponse{TaskID: id, Status: state}
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				s.writeError(w, err)
				return
			}
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleDownload streams a zip of the completed outputs. A finished task is
// discarded afterwards unless the server keeps downloaded tasks.
// GET /v1/tasks/{id}/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := bindTaskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	archive, err := s.service.PrepareArchive(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ocr_results_%s.zip"`, id))
	if err := archive.WriteTo(w); err != nil {
		// Headers are gone; the client sees a truncated archive.
		s.logger.Error("failed to stream archive", "task_id", id, "error", err)
		return
	}
	s.logger.Info("archive downloaded", "task_id", id, "files", archive.Files)

	if s.keepAfterDownload {
		return
	}
	snap, err := s.service.Snapshot(id)
	if err != nil || !snap.Terminal() {
		return
	}
	if err := s.service.Discard(id); err != nil {
		s.logger.Warn("failed to discard downloaded task", "task_id", id, "error", err)
	}
}

// GET /v1/tasks/{id}/files/{index}/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := bindTaskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	index, err := bindFileIndex(r)
	if err != nil {
		badRequest(w, "invalid file index")
		return
	}
	html, err := s.service.RenderPreview(id, index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// handleArtifact serves a raw file from a completed output dir, such as the
// images the preview links to.
// GET /v1/tasks/{id}/files/{index}/{path...}
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := bindTaskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	index, err := bindFileIndex(r)
	if err != nil {
		badRequest(w, "invalid file index")
		return
	}
	path, err := s.service.OutputFile(id, index, r.PathValue("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.writeError(w, fmt.Errorf("%s: %w", r.PathValue("path"), domain.ErrFileNotFound))
		return
	}
	http.ServeFile(w, r, path)
}
