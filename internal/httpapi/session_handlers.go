package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mbartova/medscreen/internal/eventlog"
	"github.com/mbartova/medscreen/internal/store"
)

type startSessionResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	CreatedAt     string `json:"created_at"`
}

// handleStartSession creates a participant session the websocket endpoint can
// later claim.
func (r *Router) handleStartSession(w http.ResponseWriter, req *http.Request) {
	session := Session{
		SessionID:     uuid.NewString(),
		ParticipantID: "P-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		CreatedAt:     time.Now().UTC(),
	}
	r.registry.Register(session)

	r.logger.Printf("new session started: %s with participant_id: %s", session.SessionID, session.ParticipantID)
	r.eventLog.LogAsync(session.SessionID, eventlog.EventSessionStarted, map[string]any{
		"participant_id": session.ParticipantID,
	})

	writeJSON(w, http.StatusOK, startSessionResponse{
		SessionID:     session.SessionID,
		ParticipantID: session.ParticipantID,
		CreatedAt:     session.CreatedAt.Format(time.RFC3339),
	})
}

type saveProgressRequest struct {
	SessionID         string                      `json:"session_id"`
	ParticipantID     string                      `json:"participant_id"`
	StudyID           string                      `json:"study_id"`
	ExitReason        string                      `json:"exit_reason"`
	ConversationState string                      `json:"conversation_state"`
	Messages          []store.ConversationMessage `json:"messages"`
}

// handleSaveProgress stores a partial interview when the participant leaves
// before finishing.
func (r *Router) handleSaveProgress(w http.ResponseWriter, req *http.Request) {
	var body saveProgressRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.SessionID == "" || body.ParticipantID == "" || body.StudyID == "" {
		http.Error(w, `{"error": "session_id, participant_id, and study_id are required"}`, http.StatusBadRequest)
		return
	}

	exitReason := body.ExitReason
	if exitReason == "" {
		exitReason = "user_initiated"
	}

	status := statusForExit(exitReason, body.ConversationState, body.Messages)
	reason := exitReason

	iv := store.Interview{
		ParticipantID: body.ParticipantID,
		SessionID:     body.SessionID,
		StudyID:       body.StudyID,
		Status:        status,
		ExitReason:    &reason,
		MessageCount:  len(body.Messages),
		StartedAt:     time.Now().UTC(),
	}
	if len(body.Messages) > 0 {
		if t, err := time.Parse(time.RFC3339, body.Messages[0].Timestamp); err == nil {
			iv.StartedAt = t
		}
	}

	if err := r.store.SaveInterview(req.Context(), iv, body.Messages); err != nil {
		captureError(req, err, "failed to save interview progress")
		http.Error(w, `{"error": "failed to save progress"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(body.SessionID, eventlog.EventProgressSaved, map[string]any{
		"exit_reason":   exitReason,
		"status":        status,
		"message_count": len(body.Messages),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "saved",
		"outcome": status,
	})
}

// statusForExit maps the client's exit reason to an interview status.
func statusForExit(exitReason, conversationState string, messages []store.ConversationMessage) string {
	if conversationState == "completed" {
		return "Completed"
	}

	if exitReason == "interview_started" {
		return "In Progress"
	}

	// No user responses yet means the participant never got past consent.
	userMessages := 0
	for _, m := range messages {
		if m.Type == "user" {
			userMessages++
		}
	}
	if userMessages == 0 && len(messages) > 0 {
		switch exitReason {
		case "consent_abandoned", "consent_rejected", "back_to_dashboard",
			"page_refresh", "browser_refresh", "study_change", "navigation":
			return "Incomplete"
		}
	}

	switch exitReason {
	case "interview_completed":
		return "Completed"
	case "consent_abandoned", "consent_rejected":
		return "Incomplete"
	case "user_initiated", "back_to_dashboard", "settings_change":
		return "Paused"
	case "study_change":
		return "Abandoned"
	case "page_refresh", "browser_refresh", "connection_lost", "browser_close", "navigation":
		return "Interrupted"
	default:
		return "Abandoned"
	}
}
