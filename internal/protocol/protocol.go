// Package protocol defines the wire messages exchanged over the interview
// websocket channel. The transport layer does not interpret payloads; all
// message semantics live here.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type discriminators, client to server.
const (
	TypeStartRecording = "start_recording"
	TypeAudioData      = "audio_data"
	TypeTextMessage    = "text_message"
)

// Message type discriminators, server to client.
const (
	TypeAgentMessage      = "agent_message"
	TypeUserMessage       = "user_message"
	TypeInterviewComplete = "interview_complete"
	TypeError             = "error"
)

// Interview phases carried on agent messages. The phase field is the
// authoritative discriminator for what stage the interview is in; clients
// must not infer stage from message content.
const (
	PhaseConsent     = "consent"
	PhaseQuestioning = "questioning"
	PhaseCompleted   = "completed"
)

// Control utterances sent as text_message content for fixed UI actions.
const (
	ControlRepeatCurrent   = "Please repeat the current question."
	ControlRepeatPrevious  = "Please repeat the previous question."
	ControlSubmit          = "I want to submit my responses."
	ControlHearInstruction = "Please repeat the instruction."
)

// IsControl reports whether a text_message content is one of the fixed
// control utterances.
func IsControl(content string) bool {
	switch content {
	case ControlRepeatCurrent, ControlRepeatPrevious, ControlSubmit, ControlHearInstruction:
		return true
	}
	return false
}

// StartRecording notifies the server that the client began capturing audio.
type StartRecording struct {
	Type string `json:"type"`
}

// AudioData carries one complete base64-encoded recording.
type AudioData struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// TextMessage carries typed user input or a fixed control utterance.
type TextMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewStartRecording builds a start_recording control message.
func NewStartRecording() StartRecording {
	return StartRecording{Type: TypeStartRecording}
}

// NewAudioData builds an audio_data message from a base64 payload.
func NewAudioData(audio string) AudioData {
	return AudioData{Type: TypeAudioData, Audio: audio}
}

// NewTextMessage builds a text_message.
func NewTextMessage(content string) TextMessage {
	return TextMessage{Type: TypeTextMessage, Content: content}
}

// AgentMessage is one interviewer turn.
type AgentMessage struct {
	Type               string `json:"type"`
	Content            string `json:"content"`
	Timestamp          string `json:"timestamp"`
	Audio              string `json:"audio,omitempty"` // base64 MP3, may be empty
	Phase              string `json:"phase,omitempty"`
	RequiresResponse   bool   `json:"requires_response,omitempty"`
	AwaitingSubmission bool   `json:"awaiting_submission,omitempty"`
	Evaluating         bool   `json:"evaluating,omitempty"`
	IsFinal            bool   `json:"is_final,omitempty"`
	QuestionNumber     *int   `json:"question_number,omitempty"`
	TotalQuestions     *int   `json:"total_questions,omitempty"`
}

// UserMessage is the server's echo of recognized participant speech.
type UserMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// CriterionResult is the per-criterion outcome of the eligibility evaluation.
type CriterionResult struct {
	CriterionID string `json:"criterion_id"`
	Criterion   string `json:"criterion"`
	Response    string `json:"response"`
	Meets       bool   `json:"meets_criteria"`
	Priority    string `json:"priority"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// EligibilityResult is the final screening outcome. Created once by the
// server's interview_complete message and immutable afterwards.
type EligibilityResult struct {
	ParticipantID        string            `json:"participant_id"`
	Eligible             bool              `json:"eligible"`
	Score                float64           `json:"score"`
	Summary              string            `json:"summary,omitempty"`
	CriteriaMet          []CriterionResult `json:"criteria_met"`
	HighPriorityCriteria string            `json:"high_priority_criteria_met,omitempty"`
	EvaluationTimestamp  string            `json:"evaluation_timestamp"`
}

// InterviewComplete is the terminal server message.
type InterviewComplete struct {
	Type            string             `json:"type"`
	Eligibility     *EligibilityResult `json:"eligibility,omitempty"`
	ConsentRejected bool               `json:"consent_rejected,omitempty"`
	ParticipantID   string             `json:"participant_id,omitempty"`
	SessionID       string             `json:"session_id,omitempty"`
	Timestamp       string             `json:"timestamp"`
}

// ErrorMessage reports a server-side failure the client should surface.
type ErrorMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Inbound is a decoded server-to-client message. Exactly one of the pointer
// fields is set, matching Kind.
type Inbound struct {
	Kind     string
	Agent    *AgentMessage
	User     *UserMessage
	Complete *InterviewComplete
	Err      *ErrorMessage
}

// Parse decodes a raw server-to-client frame into a typed envelope.
// Unknown or malformed messages are returned as errors; callers are expected
// to log and drop them rather than fail the session.
func Parse(data []byte) (*Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch head.Type {
	case TypeAgentMessage:
		var m AgentMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed agent_message: %w", err)
		}
		return &Inbound{Kind: TypeAgentMessage, Agent: &m}, nil
	case TypeUserMessage:
		var m UserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed user_message: %w", err)
		}
		return &Inbound{Kind: TypeUserMessage, User: &m}, nil
	case TypeInterviewComplete:
		var m InterviewComplete
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed interview_complete: %w", err)
		}
		return &Inbound{Kind: TypeInterviewComplete, Complete: &m}, nil
	case TypeError:
		var m ErrorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed error message: %w", err)
		}
		return &Inbound{Kind: TypeError, Err: &m}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", head.Type)
	}
}

// ClientMessage is a decoded client-to-server message.
type ClientMessage struct {
	Type    string `json:"type"`
	Audio   string `json:"audio,omitempty"`
	Content string `json:"content,omitempty"`
}

// ParseClient decodes a raw client-to-server frame.
func ParseClient(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	switch m.Type {
	case TypeStartRecording, TypeAudioData, TypeTextMessage:
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// Now returns the wire timestamp format used by both sides.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
