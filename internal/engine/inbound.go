package engine

import (
	"context"

	"github.com/mbartova/medscreen/internal/protocol"
)

// handleInbound applies one server-to-client message to the state machine.
// Malformed messages are logged and dropped; they never crash the machine.
func (e *Engine) handleInbound(raw []byte) {
	in, err := protocol.Parse(raw)
	if err != nil {
		e.logger.Printf("engine: ignoring inbound message: %v", err)
		return
	}

	switch in.Kind {
	case protocol.TypeAgentMessage:
		e.handleAgentMessage(in.Agent)
	case protocol.TypeUserMessage:
		e.handleUserMessage(in.User)
	case protocol.TypeInterviewComplete:
		e.handleInterviewComplete(in.Complete)
	case protocol.TypeError:
		e.handleErrorMessage(in.Err)
	}
}

func (e *Engine) handleAgentMessage(m *protocol.AgentMessage) {
	e.mu.Lock()
	if e.state.Conversation == StateCompleted {
		// Terminal: nothing may move the machine away from completed.
		e.mu.Unlock()
		e.logger.Printf("engine: dropping agent message after completion")
		return
	}

	e.appendTranscriptLocked(RoleAgent, m.Content)
	e.state.IsProcessing = false

	// Server-declared progress is authoritative; local counters are only a
	// display fallback.
	if m.QuestionNumber != nil {
		e.state.CurrentQuestionNumber = *m.QuestionNumber
	}
	if m.TotalQuestions != nil {
		e.state.TotalQuestions = *m.TotalQuestions
	}

	switch {
	case m.Phase == protocol.PhaseConsent:
		e.state.Conversation = StateConsent
		e.state.CurrentQuestionNumber = 0
		e.state.AwaitingSubmission = false
		e.state.IsEvaluating = false

	case m.Evaluating:
		e.state.Conversation = StateQuestioning
		e.state.IsEvaluating = true
		e.state.ShowTranscriptionConfirm = false
		e.state.LastTranscription = ""

	case m.IsFinal || m.Phase == protocol.PhaseCompleted:
		e.state.Conversation = StateCompleted
		e.clearBusyLocked()

	case m.AwaitingSubmission:
		e.state.Conversation = StateQuestioning
		e.state.AwaitingSubmission = true
		e.state.IsEvaluating = false

	case m.RequiresResponse:
		e.state.Conversation = StateQuestioning
		e.state.AwaitingSubmission = false
		e.state.IsEvaluating = false
	}

	requiresResponse := m.RequiresResponse && e.state.Conversation != StateCompleted

	if m.Audio != "" && e.cfg.Player != nil {
		e.state.IsAgentSpeaking = true
		e.state.CanInterruptSpeech = true
		e.startPlaybackLocked(m.Audio, requiresResponse)
	} else if requiresResponse {
		e.state.WaitingForUser = true
	}
	e.mu.Unlock()
	e.notify()
}

// startPlaybackLocked launches the cancellable playback task for one agent
// utterance. Caller holds e.mu and has already set the speaking flags.
func (e *Engine) startPlaybackLocked(payload string, requiresResponse bool) {
	e.cancelPlaybackLocked()
	gen := e.playGen

	ctx, cancel := context.WithCancel(context.Background())
	e.playCancel = cancel

	go func() {
		err := e.cfg.Player.Play(ctx, payload)
		cancel()

		e.mu.Lock()
		if e.playGen != gen {
			// Superseded: the interrupting action already set any follow-up
			// state it wanted.
			e.mu.Unlock()
			return
		}
		e.playCancel = nil
		e.state.IsAgentSpeaking = false
		e.state.CanInterruptSpeech = false
		if err != nil && ctx.Err() == nil {
			// Decode or device failure: audio is a convenience layer over the
			// transcript, so log and continue.
			e.logger.Printf("engine: playback failed: %v", err)
		}
		if ctx.Err() == nil && requiresResponse && !e.state.IsRecording {
			e.state.WaitingForUser = true
		}
		e.mu.Unlock()
		e.notify()
	}()
}

func (e *Engine) handleUserMessage(m *protocol.UserMessage) {
	e.mu.Lock()
	if e.state.Conversation == StateCompleted {
		e.mu.Unlock()
		return
	}

	e.appendTranscriptLocked(RoleUser, m.Content)
	if !e.state.IsEvaluating && !e.state.IsProcessing {
		e.state.LastTranscription = m.Content
		e.state.UserHasResponded = true
		e.state.ShowTranscriptionConfirm = true
	}
	e.state.IsProcessing = true
	e.state.WaitingForUser = false
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) handleInterviewComplete(m *protocol.InterviewComplete) {
	e.mu.Lock()
	if e.result == nil {
		e.result = &Result{
			Eligibility:     m.Eligibility,
			ConsentRejected: m.ConsentRejected,
		}
	}
	e.state.Conversation = StateCompleted
	e.clearBusyLocked()
	e.stopTickerLocked()
	e.state.IsRecording = false
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) handleErrorMessage(m *protocol.ErrorMessage) {
	e.mu.Lock()
	e.state.ConnectionError = m.Content
	// Never leave the user stuck behind a busy indicator.
	e.state.WaitingForUser = true
	e.state.IsProcessing = false
	e.state.IsEvaluating = false
	e.mu.Unlock()
	e.notify()
}

// clearBusyLocked resets every busy/waiting flag. Caller holds e.mu.
func (e *Engine) clearBusyLocked() {
	e.state.AwaitingSubmission = false
	e.state.IsEvaluating = false
	e.state.IsProcessing = false
	e.state.WaitingForUser = false
	e.state.ShowTranscriptionConfirm = false
	e.state.UserHasResponded = false
}
