// Package transport opens an interview session against the backend and
// maintains the persistent bidirectional websocket channel bound to it.
// Payload content is opaque here; semantics live in internal/protocol.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session identifies one interview attempt.
type Session struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// StartSessionRequest is the session-start payload.
type StartSessionRequest struct {
	ParticipantName string `json:"participant_name,omitempty"`
	StudyID         string `json:"study_id"`
}

// Client talks to the interview backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a transport client for the given backend base URL,
// e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer:     websocket.DefaultDialer,
	}
}

// StartSession performs the one-shot session-start call.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/start", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("session start failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session start rejected: status %d", resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("session start returned empty session_id")
	}
	return &session, nil
}

// SavedMessage is one transcript entry as shipped to the progress endpoint.
type SavedMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "agent" or "user"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SaveProgressRequest reports a partial interview when the participant
// leaves before finishing.
type SaveProgressRequest struct {
	SessionID         string         `json:"session_id"`
	ParticipantID     string         `json:"participant_id"`
	StudyID           string         `json:"study_id"`
	ExitReason        string         `json:"exit_reason"`
	ConversationState string         `json:"conversation_state"`
	Messages          []SavedMessage `json:"messages"`
}

// SaveProgress stores a partial interview so a coordinator sees the attempt.
func (c *Client) SaveProgress(ctx context.Context, req SaveProgressRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal progress request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/save-progress", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create progress request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("save progress failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save progress rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Connect opens the persistent channel bound to the session.
func (c *Client) Connect(ctx context.Context, session *Session, studyID string) (*Channel, error) {
	wsURL, err := c.channelURL(session.SessionID, studyID)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect channel: %w", err)
	}

	ch := &Channel{
		conn:     conn,
		messages: make(chan []byte, 64),
		errors:   make(chan error, 8),
		done:     make(chan struct{}),
	}

	ch.wg.Add(1)
	go ch.readLoop()

	return ch, nil
}

func (c *Client) channelURL(sessionID, studyID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/interview"
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("study_id", studyID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Channel is one open websocket bound to a session. Inbound frames arrive on
// Messages, read failures on Errors; both close after Done is signalled.
type Channel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	messages  chan []byte
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Messages returns the inbound frame channel.
func (ch *Channel) Messages() <-chan []byte {
	return ch.messages
}

// Errors returns the channel receiving read failures.
func (ch *Channel) Errors() <-chan error {
	return ch.errors
}

// Done is closed when the channel shuts down for any reason.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Send marshals v and writes it as one text frame.
func (ch *Channel) Send(v any) error {
	select {
	case <-ch.done:
		return fmt.Errorf("channel is closed")
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the channel down. Safe to call more than once.
func (ch *Channel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		close(ch.done)

		ch.writeMu.Lock()
		_ = ch.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ch.writeMu.Unlock()

		err = ch.conn.Close()

		ch.wg.Wait()
		close(ch.messages)
		close(ch.errors)
	})
	return err
}

func (ch *Channel) readLoop() {
	defer ch.wg.Done()

	for {
		select {
		case <-ch.done:
			return
		default:
		}

		_, msg, err := ch.conn.ReadMessage()
		if err != nil {
			select {
			case <-ch.done:
				return
			case ch.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		select {
		case <-ch.done:
			return
		case ch.messages <- msg:
		}
	}
}
