package kernel

import (
	"net/http"
	"strconv"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const maxHistoryLimit = 500

// handleListHistory lists audited conversions, newest first.
// GET /v1/history?limit=N&task_id=...
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"records": []domain.ConversionRecord{},
			"count":   0,
		})
		return
	}

	var (
		records []domain.ConversionRecord
		err     error
	)
	if taskID := r.URL.Query().Get("task_id"); taskID != "" {
		records, err = s.history.ListTaskConversions(r.Context(), domain.TaskID(taskID))
	} else {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil || n < 1 {
				badRequest(w, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}
		records, err = s.history.ListConversions(r.Context(), limit)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.ConversionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
