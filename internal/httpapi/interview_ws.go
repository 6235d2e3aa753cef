package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbartova/medscreen/internal/costs"
	"github.com/mbartova/medscreen/internal/eligibility"
	"github.com/mbartova/medscreen/internal/eventlog"
	"github.com/mbartova/medscreen/internal/interview"
	"github.com/mbartova/medscreen/internal/notifications"
	"github.com/mbartova/medscreen/internal/protocol"
	"github.com/mbartova/medscreen/internal/store"
	"github.com/mbartova/medscreen/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleInterviewWS hosts one screening interview over a websocket.
func (r *Router) handleInterviewWS(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session_id")
	studyID := req.URL.Query().Get("study_id")
	if sessionID == "" || studyID == "" {
		http.Error(w, `{"error": "session_id and study_id are required"}`, http.StatusBadRequest)
		return
	}

	session, ok := r.registry.Lookup(sessionID)
	if !ok {
		http.Error(w, `{"error": "unknown session, call /api/session/start first"}`, http.StatusNotFound)
		return
	}

	if !r.registry.Acquire() {
		http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	defer r.registry.Release()

	study, err := r.store.GetStudy(req.Context(), studyID)
	if err != nil {
		r.logger.Printf("ws: study %s not found: %v", studyID, err)
		http.Error(w, `{"error": "study not found"}`, http.StatusNotFound)
		return
	}

	settings, err := r.store.GetAudioSettings(req.Context())
	if err != nil {
		captureError(req, err, "failed to load audio settings")
		settings = &store.AudioSettings{OutputLanguage: "english", Voice: "nova", Speed: 1.0}
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s := &interviewSession{
		router:  r,
		conn:    conn,
		logger:  r.logger,
		session: session,
		studyID: studyID,
		agent:   interview.New(*study, r.classifier, r.logger),
		speech: tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey: r.cfg.ElevenLabsAPIKey,
			Voice:  settings.Voice,
			Speed:  settings.Speed,
		}),
		studyTitle: study.Title,
		startedAt:  time.Now().UTC(),
	}
	s.run()
}

// interviewSession is the state of one live interview connection.
type interviewSession struct {
	router  *Router
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *log.Logger

	session    Session
	studyID    string
	studyTitle string
	agent      *interview.Agent
	speech     tts.Client
	startedAt  time.Time

	messages  []store.ConversationMessage
	usage     costs.InterviewMetrics
	completed bool
}

// run sends the greeting and processes inbound frames until the connection
// drops or the interview finishes.
func (s *interviewSession) run() {
	ctx := context.Background()

	s.sendAgentReply(ctx, s.agent.Greeting())

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Printf("ws: session %s read: %v", s.session.SessionID, err)
			s.handleDisconnect(ctx)
			return
		}

		inbound, err := protocol.ParseClient(data)
		if err != nil {
			s.logger.Printf("ws: session %s malformed frame: %v", s.session.SessionID, err)
			continue
		}

		switch inbound.Type {
		case protocol.TypeStartRecording:
			s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventRecordingStarted, nil)

		case protocol.TypeAudioData:
			s.handleAudio(ctx, inbound.Audio)

		case protocol.TypeTextMessage:
			s.handleText(ctx, inbound.Content)
		}

		if s.completed {
			return
		}
	}
}

// handleAudio transcribes one recording and feeds the text to the agent.
func (s *interviewSession) handleAudio(ctx context.Context, audioB64 string) {
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventAudioReceived, map[string]any{
		"bytes": len(audioB64),
	})

	audio, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		s.sendError("Could not decode audio. Please try again.")
		return
	}

	// 16 kHz mono 16-bit PCM, 32000 bytes per second of audio.
	s.usage.STTDurationSeconds += len(audio) / 32000

	result, err := s.router.transcribe.Transcribe(ctx, audio)
	if err != nil {
		s.logger.Printf("ws: session %s transcription failed: %v", s.session.SessionID, err)
		s.sendError("Error processing audio. Please try again.")
		return
	}
	if result.Text == "" {
		s.sendError("Could not understand audio. Please try again.")
		return
	}

	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventSTTResult, map[string]any{
		"transcript": result.Text,
		"confidence": result.Confidence,
	})

	s.handleText(ctx, result.Text)
}

// handleText runs one full turn: echo, agent reply, and any follow-up
// evaluation or completion messages.
func (s *interviewSession) handleText(ctx context.Context, text string) {
	s.send(protocol.UserMessage{
		Type:      protocol.TypeUserMessage,
		Content:   text,
		Timestamp: protocol.Now(),
	})
	s.addMessage("user", text)
	if protocol.IsControl(text) {
		s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventControlReceived, map[string]any{
			"content": text,
		})
	} else {
		s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventTurnFinalized, map[string]any{
			"transcript": text,
		})
	}

	s.usage.LLMInputTokens += costs.EstimateTokens(text)
	s.usage.LLMOutputTokens++ // classifier replies with a single label

	wasConsent := s.agent.CurrentPhase() == interview.PhaseConsent

	reply, err := s.agent.HandleUtterance(ctx, text)
	if err != nil {
		s.logger.Printf("ws: session %s agent turn failed: %v", s.session.SessionID, err)
		s.sendError("Error processing your response. Please try again.")
		return
	}
	if wasConsent && s.agent.CurrentPhase() == interview.PhaseQuestioning {
		s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventConsentAccepted, nil)
	}

	s.sendAgentReply(ctx, reply)

	switch {
	case reply.Evaluating:
		s.evaluate(ctx)
	case reply.ConsentRejected:
		s.rejectConsent(ctx)
	}
}

// evaluate scores the answers, persists the interview, and sends the
// terminal interview_complete message.
func (s *interviewSession) evaluate(ctx context.Context) {
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventEvaluationStarted, nil)

	result := eligibility.EvaluateWithJudge(ctx, s.session.ParticipantID, s.agent.Answers(), s.router.judge)

	s.sendAgentReply(ctx, s.agent.Completion())

	now := time.Now().UTC()
	reason := "interview_completed"
	iv := store.Interview{
		ParticipantID: s.session.ParticipantID,
		SessionID:     s.session.SessionID,
		StudyID:       s.studyID,
		Status:        "Completed",
		ExitReason:    &reason,
		MessageCount:  len(s.messages),
		StartedAt:     s.startedAt,
		CompletedAt:   &now,
	}
	if err := s.router.store.SaveInterview(ctx, iv, s.messages); err != nil {
		s.logger.Printf("ws: session %s failed to save interview: %v", s.session.SessionID, err)
	}
	if err := s.router.store.SaveEvaluation(ctx, s.session.ParticipantID, result); err != nil {
		s.logger.Printf("ws: session %s failed to save evaluation: %v", s.session.SessionID, err)
	}

	usage := costs.CalculateInterviewCosts(s.usage)
	s.logger.Printf("ws: session %s estimated provider cost %d cents (stt=%d llm=%d tts=%d)",
		s.session.SessionID, usage.TotalCostCents, usage.STTCostCents, usage.LLMCostCents, usage.TTSCostCents)

	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventEvaluationCompleted, map[string]any{
		"eligible":   result.Eligible,
		"score":      result.Score,
		"cost_cents": usage.TotalCostCents,
	})

	s.send(protocol.InterviewComplete{
		Type:          protocol.TypeInterviewComplete,
		Eligibility:   result,
		ParticipantID: s.session.ParticipantID,
		SessionID:     s.session.SessionID,
		Timestamp:     protocol.Now(),
	})
	s.completed = true
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventInterviewCompleted, nil)

	s.notifyCoordinators(ctx, result.Eligible, result.Score)
}

// rejectConsent persists the declined interview and sends the terminal
// message.
func (s *interviewSession) rejectConsent(ctx context.Context) {
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventConsentDeclined, nil)

	reason := "consent_rejected"
	iv := store.Interview{
		ParticipantID: s.session.ParticipantID,
		SessionID:     s.session.SessionID,
		StudyID:       s.studyID,
		Status:        "Incomplete",
		ExitReason:    &reason,
		MessageCount:  len(s.messages),
		StartedAt:     s.startedAt,
	}
	if err := s.router.store.SaveInterview(ctx, iv, s.messages); err != nil {
		s.logger.Printf("ws: session %s failed to save rejection: %v", s.session.SessionID, err)
	}

	s.send(protocol.InterviewComplete{
		Type:            protocol.TypeInterviewComplete,
		ConsentRejected: true,
		ParticipantID:   s.session.ParticipantID,
		SessionID:       s.session.SessionID,
		Timestamp:       protocol.Now(),
	})
	s.completed = true
}

// handleDisconnect saves whatever progress exists when the socket drops
// before the interview finished.
func (s *interviewSession) handleDisconnect(ctx context.Context) {
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventSessionEnded, map[string]any{
		"completed": s.completed,
	})
	if s.completed || len(s.messages) == 0 {
		return
	}

	reason := "connection_lost"
	iv := store.Interview{
		ParticipantID: s.session.ParticipantID,
		SessionID:     s.session.SessionID,
		StudyID:       s.studyID,
		Status:        "Interrupted",
		ExitReason:    &reason,
		MessageCount:  len(s.messages),
		StartedAt:     s.startedAt,
	}
	if err := s.router.store.SaveInterview(ctx, iv, s.messages); err != nil {
		s.logger.Printf("ws: session %s failed to save on disconnect: %v", s.session.SessionID, err)
	}
}

// sendAgentReply synthesizes speech for the reply and ships it as an
// agent_message.
func (s *interviewSession) sendAgentReply(ctx context.Context, reply interview.Reply) {
	audio := s.synthesize(ctx, reply.Content)

	s.addMessage("agent", reply.Content)
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventAgentTurn, map[string]any{
		"phase":           string(reply.Phase),
		"question_number": reply.QuestionNumber,
		"total_questions": reply.TotalQuestions,
	})

	q, total := reply.QuestionNumber, reply.TotalQuestions
	s.send(protocol.AgentMessage{
		Type:               protocol.TypeAgentMessage,
		Content:            reply.Content,
		Timestamp:          protocol.Now(),
		Audio:              audio,
		Phase:              string(reply.Phase),
		RequiresResponse:   reply.RequiresResponse,
		AwaitingSubmission: reply.AwaitingSubmission,
		Evaluating:         reply.Evaluating,
		IsFinal:            reply.IsFinal,
		QuestionNumber:     &q,
		TotalQuestions:     &total,
	})
}

// synthesize returns base64 MP3 for the text, or empty on failure so the
// interview can continue text-only.
func (s *interviewSession) synthesize(ctx context.Context, text string) string {
	if s.router.cfg.ElevenLabsAPIKey == "" {
		return ""
	}
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventTTSStarted, map[string]any{
		"text_length": len(text),
	})
	s.usage.TTSCharacters += len(text)
	audio, err := s.speech.Synthesize(ctx, text)
	if err != nil {
		s.logger.Printf("ws: session %s tts failed: %v", s.session.SessionID, err)
		s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventTTSError, map[string]any{
			"error": err.Error(),
		})
		return ""
	}
	s.router.eventLog.LogAsync(s.session.SessionID, eventlog.EventTTSCompleted, map[string]any{
		"bytes": len(audio),
	})
	return base64.StdEncoding.EncodeToString(audio)
}

// notifyCoordinators fans out completion notifications to Discord and
// registered APNs devices.
func (s *interviewSession) notifyCoordinators(ctx context.Context, eligible bool, score float64) {
	s.router.discord.NotifyInterviewCompleted(ctx, s.session.ParticipantID, s.studyTitle, eligible, score)

	if s.router.apns == nil {
		return
	}
	tokens, err := s.router.store.ListPushTokens(ctx)
	if err != nil {
		s.logger.Printf("ws: failed to list push tokens: %v", err)
		return
	}
	for _, tk := range tokens {
		if err := s.router.apns.SendInterviewNotification(tk.Token, notifications.InterviewNotification{
			ParticipantID: s.session.ParticipantID,
			StudyTitle:    s.studyTitle,
			Status:        "Completed",
			Eligible:      eligible,
			Score:         score,
		}); err != nil {
			s.logger.Printf("ws: push to %s failed: %v", tk.Token, err)
		}
	}
}

func (s *interviewSession) addMessage(msgType, content string) {
	s.messages = append(s.messages, store.ConversationMessage{
		ID:        fmt.Sprintf("%s-%d", msgType, len(s.messages)),
		Type:      msgType,
		Content:   content,
		Timestamp: protocol.Now(),
	})
}

func (s *interviewSession) sendError(content string) {
	s.send(protocol.ErrorMessage{
		Type:      protocol.TypeError,
		Content:   content,
		Timestamp: protocol.Now(),
	})
}

// send writes one JSON frame; the mutex serializes writes from the turn loop
// and async paths.
func (s *interviewSession) send(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.Printf("ws: session %s write failed: %v", s.session.SessionID, err)
	}
}
