package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// handleTaskSSE streams progress snapshots for a task as server-sent events.
// The stream ends after the terminal snapshot. A malformed or unknown id
// yields one "error" event instead of an HTTP error so that EventSource
// clients can report it.
// GET /v1/tasks/{id}/events
func (s *Server) handleTaskSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, err := bindTaskID(r)
	if err != nil {
		writeEvent(w, domain.TaskSnapshot{
			TaskID: domain.TaskID(r.PathValue("id")),
			Status: domain.SnapshotStatusError,
			Error:  domain.ErrTaskNotFound.Error(),
			Files:  []domain.FileSnapshot{},
		})
		flusher.Flush()
		return
	}

	for snap := range s.progress.Subscribe(r.Context(), id) {
		if err := writeEvent(w, snap); err != nil {
			s.logger.Debug("progress client gone", "task_id", id, "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, snap domain.TaskSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	event := "progress"
	if snap.Status == domain.SnapshotStatusError {
		event = "error"
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
