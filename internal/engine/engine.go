// Package engine implements the conversation orchestration core of the
// screening interview client: session lifecycle, the turn-taking state
// machine, mutually exclusive capture/playback, and the read-only state
// surface a presentation layer renders from.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/mbartova/medscreen/internal/audio"
	"github.com/mbartova/medscreen/internal/protocol"
	"github.com/mbartova/medscreen/internal/transport"
)

// Channel is the persistent bidirectional message channel the engine
// consumes. Satisfied by *transport.Channel.
type Channel interface {
	Messages() <-chan []byte
	Errors() <-chan error
	Done() <-chan struct{}
	Send(v any) error
	Close() error
}

// Connector opens sessions and channels. Satisfied by the transport client
// through NewConnector.
type Connector interface {
	StartSession(ctx context.Context, req transport.StartSessionRequest) (*transport.Session, error)
	Connect(ctx context.Context, session *transport.Session, studyID string) (Channel, error)
	SaveProgress(ctx context.Context, req transport.SaveProgressRequest) error
}

type backendConnector struct {
	client *transport.Client
}

func (b backendConnector) StartSession(ctx context.Context, req transport.StartSessionRequest) (*transport.Session, error) {
	return b.client.StartSession(ctx, req)
}

func (b backendConnector) Connect(ctx context.Context, session *transport.Session, studyID string) (Channel, error) {
	return b.client.Connect(ctx, session, studyID)
}

func (b backendConnector) SaveProgress(ctx context.Context, req transport.SaveProgressRequest) error {
	return b.client.SaveProgress(ctx, req)
}

// NewConnector adapts a transport client to the Connector interface.
func NewConnector(c *transport.Client) Connector {
	return backendConnector{client: c}
}

// Config wires an engine's collaborators.
type Config struct {
	ParticipantName string
	StudyID         string

	Transport Connector
	Recorder  audio.Recorder
	Player    audio.Player // may be nil; the interview then runs text-only
	Logger    *log.Logger

	// OnStateChange, when set, is invoked with a snapshot after every state
	// mutation. Called without internal locks held.
	OnStateChange func(State)
}

// Engine owns one interview attempt end to end: the session entity, the
// transcript, all turn flags, and the capture/playback handles. All
// transitions happen under one mutex; the only asynchronous boundary is the
// cancellable playback task.
type Engine struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	state      State
	transcript []TurnMessage
	result     *Result
	session    *transport.Session
	channel    Channel

	// Playback cancellation. playGen identifies the current playback task;
	// interrupting actions bump it so a superseded task cannot clobber flags.
	playGen    int
	playCancel context.CancelFunc

	// Recording duration ticker, running only while IsRecording.
	tickerStop chan struct{}

	closed bool
}

// New creates an engine in the not_started state. Ready to StartInterview.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		state:  State{Conversation: StateNotStarted},
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transcript returns a copy of the append-only transcript.
func (e *Engine) Transcript() []TurnMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TurnMessage, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Result returns the terminal outcome, nil until the interview completes.
func (e *Engine) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Session returns the session entity, nil before StartInterview succeeds.
func (e *Engine) Session() *transport.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// notify publishes a snapshot to the configured listener. Must be called
// without the mutex held.
func (e *Engine) notify() {
	if e.cfg.OnStateChange == nil {
		return
	}
	e.cfg.OnStateChange(e.Snapshot())
}

// StartInterview acquires the microphone, opens the session and connects the
// channel. Valid only from not_started; otherwise a no-op. On any failure the
// machine returns to not_started with ConnectionError set.
func (e *Engine) StartInterview(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Conversation != StateNotStarted {
		e.mu.Unlock()
		return nil
	}
	e.state.Conversation = StateStarting
	e.state.ConnectionError = ""
	e.mu.Unlock()
	e.notify()

	fail := func(err error) error {
		e.mu.Lock()
		e.state.Conversation = StateNotStarted
		e.state.ConnectionError = err.Error()
		e.mu.Unlock()
		e.notify()
		return err
	}

	if e.cfg.Recorder != nil {
		if err := e.cfg.Recorder.Initialize(ctx); err != nil {
			return fail(fmt.Errorf("microphone unavailable: %w", err))
		}
	}

	session, err := e.cfg.Transport.StartSession(ctx, transport.StartSessionRequest{
		ParticipantName: e.cfg.ParticipantName,
		StudyID:         e.cfg.StudyID,
	})
	if err != nil {
		return fail(err)
	}

	channel, err := e.cfg.Transport.Connect(ctx, session, e.cfg.StudyID)
	if err != nil {
		return fail(err)
	}

	e.mu.Lock()
	e.session = session
	e.channel = channel
	e.state.Conversation = StateConsent
	e.state.ConnectionError = ""
	e.mu.Unlock()
	e.notify()

	go e.run(channel)
	return nil
}

// run consumes channel events until the channel shuts down.
func (e *Engine) run(ch Channel) {
	for {
		select {
		case msg, ok := <-ch.Messages():
			if !ok {
				e.handleDisconnect()
				return
			}
			e.handleInbound(msg)

		case err, ok := <-ch.Errors():
			if !ok {
				e.handleDisconnect()
				return
			}
			e.logger.Printf("engine: transport error: %v", err)
			e.mu.Lock()
			e.state.ConnectionError = err.Error()
			e.state.WaitingForUser = true
			e.mu.Unlock()
			e.notify()

		case <-ch.Done():
			e.handleDisconnect()
			return
		}
	}
}

// handleDisconnect surfaces an unexpected channel loss. No automatic retry:
// mid-interview reconnection could duplicate or lose a turn.
func (e *Engine) handleDisconnect() {
	e.mu.Lock()
	if e.state.Conversation != StateCompleted && !e.closed && e.state.ConnectionError == "" {
		e.state.ConnectionError = "connection closed unexpectedly"
		e.state.WaitingForUser = true
	}
	e.mu.Unlock()
	e.notify()
}

// StopAgentSpeaking interrupts in-flight playback. Valid only while the
// agent is speaking and interruptible; otherwise a no-op with no error.
func (e *Engine) StopAgentSpeaking() {
	e.mu.Lock()
	if !e.state.IsAgentSpeaking || !e.state.CanInterruptSpeech {
		e.mu.Unlock()
		return
	}
	e.cancelPlaybackLocked()
	e.state.IsAgentSpeaking = false
	e.state.CanInterruptSpeech = false
	e.state.WaitingForUser = true
	e.mu.Unlock()
	e.notify()
}

// StartRecording begins audio capture. Recording takes priority over
// residual playback: any in-flight agent speech is interrupted first.
func (e *Engine) StartRecording() error {
	e.mu.Lock()
	if e.state.IsRecording || e.state.Conversation == StateCompleted {
		e.mu.Unlock()
		return nil
	}
	if e.state.IsAgentSpeaking {
		e.cancelPlaybackLocked()
		e.state.IsAgentSpeaking = false
		e.state.CanInterruptSpeech = false
	}

	if e.cfg.Recorder != nil {
		if err := e.cfg.Recorder.StartRecording(); err != nil {
			e.mu.Unlock()
			e.logger.Printf("engine: start recording failed: %v", err)
			return err
		}
	}

	e.state.IsRecording = true
	e.state.ShowTranscriptionConfirm = false
	e.state.WaitingForUser = false
	e.state.RecordingSeconds = 0
	e.startTickerLocked()
	ch := e.channel
	e.mu.Unlock()

	if ch != nil {
		if err := ch.Send(protocol.NewStartRecording()); err != nil {
			e.logger.Printf("engine: send start_recording failed: %v", err)
		}
	}
	e.notify()
	return nil
}

// StopRecording flushes capture and ships the payload. The turn is then
// server-bound: IsProcessing stays true until the next inbound message.
// No-op when no capture is active.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	if !e.state.IsRecording {
		e.mu.Unlock()
		return nil
	}
	e.stopTickerLocked()
	e.state.IsRecording = false

	var payload string
	var err error
	if e.cfg.Recorder != nil {
		payload, err = e.cfg.Recorder.StopRecording()
	}
	if err != nil {
		// The turn is lost but the interview must not deadlock.
		e.state.WaitingForUser = true
		e.mu.Unlock()
		e.logger.Printf("engine: stop recording failed: %v", err)
		e.notify()
		return err
	}

	e.state.IsProcessing = true
	ch := e.channel
	e.mu.Unlock()

	if ch != nil {
		if err := ch.Send(protocol.NewAudioData(payload)); err != nil {
			e.logger.Printf("engine: send audio_data failed: %v", err)
		}
	}
	e.notify()
	return nil
}

// RepeatCurrentQuestion asks the server to repeat the active question.
func (e *Engine) RepeatCurrentQuestion() {
	e.sendControl(protocol.ControlRepeatCurrent, false)
}

// RepeatLastQuestion goes back to the previous question. No-op on the first
// question.
func (e *Engine) RepeatLastQuestion() {
	e.mu.Lock()
	ok := e.state.CurrentQuestionNumber > 1
	e.mu.Unlock()
	if !ok {
		return
	}
	e.sendControl(protocol.ControlRepeatPrevious, false)
}

// SubmitResponse finalizes the answers for evaluation. Requires the server
// to have asked for submission; otherwise a no-op. The busy flag is set
// optimistically before any server acknowledgment.
func (e *Engine) SubmitResponse() {
	e.mu.Lock()
	ok := e.state.AwaitingSubmission
	e.mu.Unlock()
	if !ok {
		return
	}
	e.sendControl(protocol.ControlSubmit, true)
}

// HearInstructionAgain asks the server to repeat the submission instruction.
func (e *Engine) HearInstructionAgain() {
	e.sendControl(protocol.ControlHearInstruction, false)
}

// sendControl interrupts any playback, resets the local turn-confirmation
// flags, and sends a fixed control utterance. evaluating sets the optimistic
// busy echo used by SubmitResponse.
func (e *Engine) sendControl(content string, evaluating bool) {
	e.mu.Lock()
	if e.state.Conversation == StateCompleted {
		e.mu.Unlock()
		return
	}
	if e.state.IsAgentSpeaking {
		e.cancelPlaybackLocked()
		e.state.IsAgentSpeaking = false
		e.state.CanInterruptSpeech = false
	}
	e.state.ShowTranscriptionConfirm = false
	e.state.UserHasResponded = false
	e.state.WaitingForUser = false
	e.state.LastTranscription = ""
	if evaluating {
		e.state.IsEvaluating = true
	}
	ch := e.channel
	e.mu.Unlock()

	if ch != nil {
		if err := ch.Send(protocol.NewTextMessage(content)); err != nil {
			e.logger.Printf("engine: send control message failed: %v", err)
		}
	}
	e.notify()
}

// SaveProgress reports the partial interview to the backend so the attempt
// shows up for coordinators. No-op before a session exists or after the
// interview completed (the server already has the final record).
func (e *Engine) SaveProgress(ctx context.Context, exitReason string) error {
	e.mu.Lock()
	session := e.session
	state := e.state.Conversation
	msgs := make([]transport.SavedMessage, 0, len(e.transcript))
	for _, m := range e.transcript {
		msgType := "agent"
		if m.Role == RoleUser {
			msgType = "user"
		}
		msgs = append(msgs, transport.SavedMessage{
			ID:        m.ID,
			Type:      msgType,
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	e.mu.Unlock()

	if session == nil || state == StateNotStarted || state == StateCompleted {
		return nil
	}
	return e.cfg.Transport.SaveProgress(ctx, transport.SaveProgressRequest{
		SessionID:         session.SessionID,
		ParticipantID:     session.ParticipantID,
		StudyID:           e.cfg.StudyID,
		ExitReason:        exitReason,
		ConversationState: string(state),
		Messages:          msgs,
	})
}

// Close tears the engine down: playback cancelled, channel closed,
// microphone released. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelPlaybackLocked()
	e.stopTickerLocked()
	ch := e.channel
	e.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if e.cfg.Recorder != nil {
		_ = e.cfg.Recorder.Close()
	}
	return nil
}

// cancelPlaybackLocked preempts the current playback task, if any. The
// generation bump keeps the superseded task from applying its completion
// effects. Caller holds e.mu.
func (e *Engine) cancelPlaybackLocked() {
	e.playGen++
	if e.playCancel != nil {
		e.playCancel()
		e.playCancel = nil
	}
}

func (e *Engine) startTickerLocked() {
	stop := make(chan struct{})
	e.tickerStop = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.mu.Lock()
				if !e.state.IsRecording {
					e.mu.Unlock()
					return
				}
				e.state.RecordingSeconds++
				e.mu.Unlock()
				e.notify()
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
}

func (e *Engine) appendTranscriptLocked(role, content string) {
	e.transcript = append(e.transcript, TurnMessage{
		ID:        fmt.Sprintf("%s-%d", role, len(e.transcript)),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}
