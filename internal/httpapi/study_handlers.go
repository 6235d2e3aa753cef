package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mbartova/medscreen/internal/store"
)

// handleListStudies returns the study catalog.
func (r *Router) handleListStudies(w http.ResponseWriter, req *http.Request) {
	studies, err := r.store.ListStudies(req.Context())
	if err != nil {
		captureError(req, err, "failed to list studies")
		http.Error(w, `{"error": "failed to list studies"}`, http.StatusInternalServerError)
		return
	}
	if studies == nil {
		studies = []store.Study{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"studies": studies})
}

// handleGetStudy returns one study with its criteria.
func (r *Router) handleGetStudy(w http.ResponseWriter, req *http.Request) {
	study, err := r.store.GetStudy(req.Context(), req.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error": "study not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		captureError(req, err, "failed to get study")
		http.Error(w, `{"error": "failed to get study"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

// handleUpsertStudy creates or replaces a study definition.
func (r *Router) handleUpsertStudy(w http.ResponseWriter, req *http.Request) {
	var study store.Study
	if err := json.NewDecoder(req.Body).Decode(&study); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if study.ID == "" || study.Title == "" {
		http.Error(w, `{"error": "id and title are required"}`, http.StatusBadRequest)
		return
	}
	for _, c := range study.Criteria {
		if c.Priority != "high" && c.Priority != "low" {
			http.Error(w, `{"error": "criterion priority must be high or low"}`, http.StatusBadRequest)
			return
		}
	}

	if err := r.store.UpsertStudy(req.Context(), study); err != nil {
		captureError(req, err, "failed to save study")
		http.Error(w, `{"error": "failed to save study"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "id": study.ID})
}

// handleDeleteStudy removes a study from the catalog.
func (r *Router) handleDeleteStudy(w http.ResponseWriter, req *http.Request) {
	err := r.store.DeleteStudy(req.Context(), req.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error": "study not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		captureError(req, err, "failed to delete study")
		http.Error(w, `{"error": "failed to delete study"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGetAudioSettings returns the stored voice settings.
func (r *Router) handleGetAudioSettings(w http.ResponseWriter, req *http.Request) {
	settings, err := r.store.GetAudioSettings(req.Context())
	if err != nil {
		captureError(req, err, "failed to get audio settings")
		http.Error(w, `{"error": "failed to get audio settings"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSaveAudioSettings updates the voice settings used for synthesis.
func (r *Router) handleSaveAudioSettings(w http.ResponseWriter, req *http.Request) {
	var settings store.AudioSettings
	if err := json.NewDecoder(req.Body).Decode(&settings); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if settings.Speed <= 0 || settings.Speed > 2 {
		http.Error(w, `{"error": "speed must be between 0 and 2"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.SaveAudioSettings(req.Context(), settings); err != nil {
		captureError(req, err, "failed to save audio settings")
		http.Error(w, `{"error": "failed to save audio settings"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
