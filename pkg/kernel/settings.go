package kernel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

type settingsUpdate struct {
	OCR *struct {
		BaseURL *string `json:"base_url"`
		APIKey  *string `json:"api_key"`
		Model   *string `json:"model"`
	} `json:"ocr"`
}

// GET /v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusOK, domain.DefaultConfig())
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

// handleUpdateSettings overlays the fields present in the body onto the
// stored config. A masked or empty api_key keeps the stored key; environment
// overrides are not written back.
// PUT /v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "settings store not configured"})
		return
	}

	var body settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	update := s.settings.StoredConfig()
	if body.OCR != nil {
		if body.OCR.BaseURL != nil {
			update.OCR.BaseURL = *body.OCR.BaseURL
		}
		if body.OCR.APIKey != nil {
			update.OCR.APIKey = *body.OCR.APIKey
		}
		if body.OCR.Model != nil {
			update.OCR.Model = *body.OCR.Model
		}
	}

	if err := s.settings.UpdateConfig(r.Context(), update); err != nil {
		if errors.Is(err, domain.ErrConfig) {
			badRequest(w, err.Error())
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}
