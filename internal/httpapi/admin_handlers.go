package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mbartova/medscreen/internal/store"
)

// handleListInterviews returns all interview records, newest first.
func (r *Router) handleListInterviews(w http.ResponseWriter, req *http.Request) {
	interviews, err := r.store.ListInterviews(req.Context())
	if err != nil {
		captureError(req, err, "failed to list interviews")
		http.Error(w, `{"error": "failed to list interviews"}`, http.StatusInternalServerError)
		return
	}
	if interviews == nil {
		interviews = []store.Interview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interviews": interviews})
}

// handleGetInterview returns one interview with conversation and evaluation.
func (r *Router) handleGetInterview(w http.ResponseWriter, req *http.Request) {
	detail, err := r.store.GetInterview(req.Context(), req.PathValue("participantID"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error": "interview not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		captureError(req, err, "failed to get interview")
		http.Error(w, `{"error": "failed to get interview"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleDeleteInterview removes an interview record.
func (r *Router) handleDeleteInterview(w http.ResponseWriter, req *http.Request) {
	err := r.store.DeleteInterview(req.Context(), req.PathValue("participantID"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error": "interview not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		captureError(req, err, "failed to delete interview")
		http.Error(w, `{"error": "failed to delete interview"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDownloadInterview serves the full record as a JSON attachment.
func (r *Router) handleDownloadInterview(w http.ResponseWriter, req *http.Request) {
	participantID := req.PathValue("participantID")
	detail, err := r.store.GetInterview(req.Context(), participantID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error": "interview not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		captureError(req, err, "failed to get interview")
		http.Error(w, `{"error": "failed to get interview"}`, http.StatusInternalServerError)
		return
	}

	agentMessages, userMessages := 0, 0
	for _, m := range detail.Conversation {
		switch m.Type {
		case "agent":
			agentMessages++
		case "user":
			userMessages++
		}
	}

	export := map[string]any{
		"metadata": map[string]any{
			"participant_id": detail.ParticipantID,
			"session_id":     detail.SessionID,
			"study_id":       detail.StudyID,
			"status":         detail.Status,
			"exit_reason":    detail.ExitReason,
			"total_messages": detail.MessageCount,
			"started_at":     detail.StartedAt,
			"completed_at":   detail.CompletedAt,
		},
		"conversation": detail.Conversation,
		"evaluation":   detail.Evaluation,
		"summary": map[string]any{
			"agent_messages": agentMessages,
			"user_messages":  userMessages,
		},
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "interview-"+participantID+".json"))
	writeJSON(w, http.StatusOK, export)
}
