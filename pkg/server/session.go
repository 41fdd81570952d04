package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/wirechat/pkg/protocol"
)

// DefaultOutboundQueueSize is the per-session frame buffer used when the
// config leaves it unset
const DefaultOutboundQueueSize = 256

// DefaultWriteTimeout bounds each frame write so a client that stops reading
// cannot hold its writer forever
const DefaultWriteTimeout = 10 * time.Second

// Session represents an active client connection
type Session struct {
	ID       uint64
	Conn     net.Conn
	ConnType string // "tcp" or "websocket"

	mu       sync.RWMutex // Protects username
	username string       // Empty until the handshake succeeds

	// Outbound frames. Every write to Conn goes through writeLoop, so frames
	// pushed by other sessions' handlers never interleave with our own.
	out        chan *protocol.Frame
	sendMu     sync.Mutex // Protects closed and the close of out
	closed     bool
	writerDone chan struct{}

	writeTimeout time.Duration // zero means no deadline

	metrics *Metrics
}

func newSession(id uint64, conn net.Conn, connType string, queueSize int, metrics *Metrics) *Session {
	if queueSize <= 0 {
		queueSize = DefaultOutboundQueueSize
	}
	return &Session{
		ID:         id,
		Conn:       conn,
		ConnType:   connType,
		out:        make(chan *protocol.Frame, queueSize),
		writerDone: make(chan struct{}),
		metrics:    metrics,
	}
}

// Username returns the account bound to this session, or ""
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// Send queues msg for delivery without blocking. A session whose queue is
// full is treated as dead: it is closed and Send reports false.
func (s *Session) Send(msg protocol.Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.out <- protocol.NewFrame(msg):
		return true
	default:
		errorLog.Printf("Session %d: outbound queue full, dropping connection", s.ID)
		s.closed = true
		close(s.out)
		s.Conn.Close()
		return false
	}
}

// Close stops accepting frames; already queued frames are still written
// before the connection is closed.
func (s *Session) Close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// Abort closes the connection immediately, discarding queued frames
func (s *Session) Abort() {
	s.Close()
	s.Conn.Close()
}

// Done is closed once the writer has exited and the connection is closed
func (s *Session) Done() <-chan struct{} {
	return s.writerDone
}

// writeLoop is the only writer of s.Conn
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer s.Conn.Close()

	for frame := range s.out {
		if s.writeTimeout > 0 {
			if err := s.Conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				debugLog.Printf("Session %d: set write deadline: %v", s.ID, err)
			}
		}
		if err := protocol.EncodeFrame(s.Conn, frame); err != nil {
			debugLog.Printf("Session %d: write failed (Command=%s): %v", s.ID, frame.Command, err)
			s.Abort()
			for range s.out {
			}
			return
		}
		s.metrics.RecordFrameSent(frame.Command)
		debugLog.Printf("Session %d → SEND: Command=%s PayloadLen=%d", s.ID, frame.Command, len(frame.Payload))
	}
}

// SessionManager manages all active sessions
type SessionManager struct {
	sessions     map[uint64]*Session
	byUser       map[string]*Session
	nextID       atomic.Uint64
	mu           sync.RWMutex
	metrics      *Metrics
	queueSize    int
	writeTimeout time.Duration
	closing      bool // set by CloseAll; later sessions are closed on arrival
}

// NewSessionManager creates a new session manager
func NewSessionManager(queueSize int) *SessionManager {
	return &SessionManager{
		sessions:     make(map[uint64]*Session),
		byUser:       make(map[string]*Session),
		queueSize:    queueSize,
		writeTimeout: DefaultWriteTimeout,
	}
}

// SetMetrics attaches metrics to the session manager
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession registers a connection and starts its writer
func (sm *SessionManager) CreateSession(conn net.Conn, connType string) *Session {
	sess := newSession(sm.nextID.Add(1), conn, connType, sm.queueSize, sm.metrics)
	sess.writeTimeout = sm.writeTimeout
	sm.add(sess)

	go sess.writeLoop()
	return sess
}

func (sm *SessionManager) add(sess *Session) {
	sm.mu.Lock()
	sm.sessions[sess.ID] = sess
	count := len(sm.sessions)
	closing := sm.closing
	sm.mu.Unlock()

	sm.metrics.RecordActiveSessions(count)
	sm.metrics.RecordSessionCreated()

	if closing {
		sess.Close()
	}
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// Lookup returns the live session logged in as username
func (sm *SessionManager) Lookup(username string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.byUser[username]
	return sess, ok
}

// Bind associates sess with username
func (sm *SessionManager) Bind(sess *Session, username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess.setUsername(username)
	sm.byUser[username] = sess
}

// Unbind clears the username association of sess
func (sm *SessionManager) Unbind(sess *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if name := sess.Username(); name != "" {
		if sm.byUser[name] == sess {
			delete(sm.byUser, name)
		}
		sess.setUsername("")
	}
}

// GetAllSessions returns all active sessions
func (sm *SessionManager) GetAllSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// RemoveSession removes a session and closes its connection once queued
// frames are flushed
func (sm *SessionManager) RemoveSession(sessionID uint64) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, sessionID)
	if name := sess.Username(); name != "" && sm.byUser[name] == sess {
		delete(sm.byUser, name)
	}
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	sm.metrics.RecordActiveSessions(sessionCount)
	sm.metrics.RecordSessionDisconnected()

	sess.Close()
}

// BroadcastToAll sends a message to all connected sessions
func (sm *SessionManager) BroadcastToAll(msg protocol.Message) {
	for _, sess := range sm.GetAllSessions() {
		if !sess.Send(msg) {
			debugLog.Printf("Session %d: broadcast of %s dropped", sess.ID, msg.Command())
		}
	}
}

// Count returns the number of open sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// CloseAll closes all sessions after their queued frames are written.
// Sessions added afterwards are closed immediately.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sm.closing = true
	sm.mu.Unlock()

	for _, sess := range sm.GetAllSessions() {
		sess.Close()
	}
}
