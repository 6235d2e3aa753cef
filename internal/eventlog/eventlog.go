package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of session event
type EventType string

const (
	EventSessionStarted      EventType = "session_started"
	EventRecordingStarted    EventType = "recording_started"
	EventAudioReceived       EventType = "audio_received"
	EventSTTResult           EventType = "stt_result"
	EventTurnFinalized       EventType = "turn_finalized"
	EventControlReceived     EventType = "control_received"
	EventAgentTurn           EventType = "agent_turn"
	EventTTSStarted          EventType = "tts_started"
	EventTTSCompleted        EventType = "tts_completed"
	EventTTSError            EventType = "tts_error"
	EventConsentAccepted     EventType = "consent_accepted"
	EventConsentDeclined     EventType = "consent_declined"
	EventEvaluationStarted   EventType = "evaluation_started"
	EventEvaluationCompleted EventType = "evaluation_completed"
	EventInterviewCompleted  EventType = "interview_completed"
	EventProgressSaved       EventType = "progress_saved"
	EventSessionEnded        EventType = "session_ended"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
