package engine

import (
	"fmt"
	"time"

	"github.com/mbartova/medscreen/internal/protocol"
)

// ConversationState is the interview lifecycle stage. Exactly one holds at
// any instant; StateCompleted is terminal.
type ConversationState string

const (
	StateNotStarted  ConversationState = "not_started"
	StateStarting    ConversationState = "starting"
	StateConsent     ConversationState = "consent"
	StateQuestioning ConversationState = "questioning"
	StateCompleted   ConversationState = "completed"
)

// Role of a transcript entry.
const (
	RoleAgent = "agent"
	RoleUser  = "user"
)

// TurnMessage is one transcript entry. Entries are append-only and never
// mutated after creation.
type TurnMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is an immutable snapshot of the engine, sufficient to render any UI.
type State struct {
	Conversation ConversationState

	IsRecording              bool
	IsAgentSpeaking          bool
	CanInterruptSpeech       bool
	WaitingForUser           bool
	UserHasResponded         bool
	ShowTranscriptionConfirm bool
	LastTranscription        string
	AwaitingSubmission       bool
	IsEvaluating             bool
	IsProcessing             bool

	CurrentQuestionNumber int
	TotalQuestions        int
	RecordingSeconds      int

	// ConnectionError holds the last transport failure, empty when healthy.
	// Cleared on a successful (re)start.
	ConnectionError string
}

// StatusText derives the single-line status a UI shows for this state.
func (s State) StatusText() string {
	switch {
	case s.ConnectionError != "":
		return "Connection problem: " + s.ConnectionError
	case s.Conversation == StateNotStarted:
		return "Ready to begin"
	case s.Conversation == StateStarting:
		return "Connecting..."
	case s.Conversation == StateCompleted:
		return "Interview complete"
	case s.IsRecording:
		return fmt.Sprintf("Recording... %ds", s.RecordingSeconds)
	case s.IsAgentSpeaking:
		return "Interviewer is speaking..."
	case s.IsEvaluating:
		return "Evaluating your responses..."
	case s.IsProcessing:
		return "Processing..."
	case s.AwaitingSubmission:
		return "Ready to submit your responses"
	case s.ShowTranscriptionConfirm:
		return "Please confirm your answer"
	case s.WaitingForUser:
		if s.Conversation == StateConsent {
			return "Waiting for your consent"
		}
		if s.TotalQuestions > 0 && s.CurrentQuestionNumber > 0 {
			return fmt.Sprintf("Question %d of %d - your turn", s.CurrentQuestionNumber, s.TotalQuestions)
		}
		return "Your turn"
	default:
		return "In progress"
	}
}

// Result pairs the terminal eligibility outcome with the session it belongs
// to. Nil until the server sends interview_complete.
type Result struct {
	Eligibility     *protocol.EligibilityResult
	ConsentRejected bool
}
