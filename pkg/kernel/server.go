package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/ocrflow/internal/config"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/manthysbr/ocrflow/internal/core/services"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// HistoryReader is the read side of the conversion audit log.
type HistoryReader interface {
	ListConversions(ctx context.Context, limit int) ([]domain.ConversionRecord, error)
	ListTaskConversions(ctx context.Context, taskID domain.TaskID) ([]domain.ConversionRecord, error)
}

type Server struct {
	logger            *slog.Logger
	service           *services.BatchService
	progress          *services.ProgressPublisher
	settings          *config.SettingsStore // optional
	history           HistoryReader         // optional
	keepAfterDownload bool
	openapi           *openapi3.T
}

func NewServer(
	logger *slog.Logger,
	service *services.BatchService,
	progress *services.ProgressPublisher,
	settings *config.SettingsStore,
	history HistoryReader,
	keepAfterDownload bool,
) (*Server, error) {
	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:            logger,
		service:           service,
		progress:          progress,
		settings:          settings,
		history:           history,
		keepAfterDownload: keepAfterDownload,
		openapi:           doc,
	}, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Tasks API
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleDiscardTask)
	mux.HandleFunc("GET /v1/tasks/{id}/events", s.handleTaskSSE)
	mux.HandleFunc("POST /v1/tasks/{id}/pause", s.handleControl(s.service.Pause))
	mux.HandleFunc("POST /v1/tasks/{id}/resume", s.handleControl(s.service.Resume))
	mux.HandleFunc("POST /v1/tasks/{id}/cancel", s.handleControl(s.service.Cancel))
	mux.HandleFunc("GET /v1/tasks/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /v1/tasks/{id}/files/{index}/preview", s.handlePreview)
	mux.HandleFunc("GET /v1/tasks/{id}/files/{index}/{path...}", s.handleArtifact)

	// History & settings
	mux.HandleFunc("GET /v1/history", s.handleListHistory)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /v1/openapi.json", s.handleOpenAPI)
	return mux
}

// bindTaskID parses the {id} path parameter.
func bindTaskID(r *http.Request) (domain.TaskID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", err
	}
	return domain.TaskID(id.String()), nil
}

// bindFileIndex parses the {index} path parameter.
func bindFileIndex(r *http.Request) (int, error) {
	var index int
	err := runtime.BindStyledParameterWithOptions("simple", "index", r.PathValue("index"), &index,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return 0, err
	}
	return index, nil
}

type errorResponse struct {
	Error  string              `json:"error"`
	Errors []domain.InputError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoValidFiles), errors.Is(err, domain.ErrNoCompletedFiles), errors.Is(err, domain.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrOutputUnavailable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
