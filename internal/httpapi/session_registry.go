package httpapi

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is one participant session created by POST /api/session/start and
// later claimed by the interview websocket.
type Session struct {
	SessionID     string
	ParticipantID string
	CreatedAt     time.Time
}

// SessionRegistry tracks participant sessions and active websocket
// connections, and supports graceful draining. When draining is enabled, new
// connections are rejected while in-flight interviews finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Acquire(),
// preventing a TOCTOU race where StartDraining+Wait could be called between
// the draining check and wg.Add.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	sessions map[string]Session
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Session)}
}

// Register stores a freshly created session so the websocket endpoint can
// look up its participant ID.
func (sr *SessionRegistry) Register(s Session) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[s.SessionID] = s
}

// Lookup returns the session for an ID, if one was started.
func (sr *SessionRegistry) Lookup(sessionID string) (Session, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s, ok := sr.sessions[sessionID]
	return s, ok
}

// Acquire registers a new active interview connection. Returns false if the
// registry is draining, meaning no new connections should be accepted. The
// draining check and WaitGroup increment are performed atomically under a
// mutex.
func (sr *SessionRegistry) Acquire() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Release marks a connection as finished. Must be called exactly once per
// successful Acquire.
func (sr *SessionRegistry) Release() {
	sr.count.Add(-1)
	sr.wg.Done()
}

// StartDraining sets the draining flag so that future Acquire calls return
// false. This is safe to call concurrently with Acquire; the mutex ensures no
// Acquire can slip through after StartDraining returns.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently active interview connections.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until all active connections have finished.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
